// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Authenticate, which resolves the caller identity for
// every API request. In jwt mode the bearer token issued by the identity
// provider is verified; in header mode (local development only) the
// X-User-ID header is trusted.
//
// The resolved uid is stored under the "userID" context key, which is the key
// the rate limiter, the access logger and the handlers read.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/auth"
	"github.com/tbourn/rent-share-backend/internal/config"
)

const (
	// HeaderUserID carries the caller uid in header auth mode.
	HeaderUserID = "X-User-ID"
	// HeaderUserName and HeaderUserEmail optionally carry profile claims in
	// header auth mode.
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"

	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"

	// queryTokenParam lets EventSource clients, which cannot set headers,
	// authenticate stream requests.
	queryTokenParam = "access_token"
)

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (*auth.Identity, error)
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Mode is config.AuthModeJWT or config.AuthModeHeader.
	Mode string
	// Verifier is required in jwt mode.
	Verifier TokenVerifier
	// PublicPrefixes are path prefixes served without authentication
	// (health, metrics, docs).
	PublicPrefixes []string
	// QueryTokenPaths are exact route paths that also accept ?access_token=.
	QueryTokenPaths []string
}

// Authenticate resolves the caller identity or aborts with 401. CORS
// preflight requests and public prefixes pass through untouched.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	queryPaths := make(map[string]struct{}, len(opts.QueryTokenPaths))
	for _, p := range opts.QueryTokenPaths {
		queryPaths[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || isPublic(c.Request.URL.Path, opts.PublicPrefixes) {
			c.Next()
			return
		}

		var (
			ident *auth.Identity
			err   error
		)
		switch opts.Mode {
		case config.AuthModeHeader:
			ident = headerIdentity(c)
		default:
			raw := bearerToken(c.GetHeader("Authorization"))
			if raw == "" {
				if _, ok := queryPaths[c.FullPath()]; ok {
					raw = c.Query(queryTokenParam)
				}
			}
			if raw == "" || opts.Verifier == nil {
				unauthorized(c, "missing bearer token")
				return
			}
			ident, err = opts.Verifier.Verify(raw)
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("token rejected")
				unauthorized(c, "invalid or expired token")
				return
			}
		}
		if ident == nil || ident.UserID == "" {
			unauthorized(c, "missing user identity")
			return
		}

		c.Set(ctxKeyUserID, ident.UserID)
		c.Set(ctxKeyIdentity, ident)
		c.Next()
	}
}

// UserIDFrom returns the authenticated uid, or "" when none was resolved.
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IdentityFrom returns the authenticated identity with its profile claims.
func IdentityFrom(c *gin.Context) *auth.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return &auth.Identity{UserID: UserIDFrom(c)}
}

func headerIdentity(c *gin.Context) *auth.Identity {
	uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if uid == "" {
		return nil
	}
	return &auth.Identity{
		UserID: uid,
		Name:   strings.TrimSpace(c.GetHeader(HeaderUserName)),
		Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
	}
}

func bearerToken(h string) string {
	scheme, tok, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
