package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/auth"
	"github.com/tbourn/rent-share-backend/internal/config"
)

var testAuthCfg = config.AuthConfig{Mode: config.AuthModeJWT, Secret: "test-secret", Issuer: "idp"}

func authRouter(opts AuthOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(opts))
	whoami := func(c *gin.Context) {
		id := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"uid": UserIDFrom(c), "name": id.Name, "email": id.Email})
	}
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/v1/me", whoami)
	r.GET("/api/v1/stream", whoami)
	r.OPTIONS("/api/v1/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func jwtOpts() AuthOptions {
	return AuthOptions{
		Mode:            config.AuthModeJWT,
		Verifier:        auth.NewVerifier(testAuthCfg),
		PublicPrefixes:  []string{"/health"},
		QueryTokenPaths: []string{"/api/v1/stream"},
	}
}

func signed(t *testing.T, uid string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.Sign(testAuthCfg, uid, "Ann", "ann@example.com", ttl)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return m
}

func TestAuthenticate_JWT_Bearer(t *testing.T) {
	r := authRouter(jwtOpts())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, "u-1", time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	m := decodeBody(t, w)
	if m["uid"] != "u-1" || m["name"] != "Ann" || m["email"] != "ann@example.com" {
		t.Fatalf("unexpected identity %+v", m)
	}
}

func TestAuthenticate_JWT_Rejections(t *testing.T) {
	r := authRouter(jwtOpts())
	cases := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing", "", "missing bearer token"},
		{"wrong scheme", "Basic abc", "missing bearer token"},
		{"garbage", "Bearer not-a-jwt", "invalid or expired token"},
		{"expired", "Bearer " + signed(t, "u-1", -time.Hour), "invalid or expired token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", w.Code)
			}
			if w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("missing WWW-Authenticate")
			}
			m := decodeBody(t, w)
			if m["code"] != "unauthorized" || m["message"] != tc.msg {
				t.Fatalf("unexpected body %+v", m)
			}
		})
	}
}

func TestAuthenticate_QueryTokenOnlyOnStreamPaths(t *testing.T) {
	r := authRouter(jwtOpts())
	tok := signed(t, "u-2", time.Hour)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stream?access_token="+tok, nil))
	if w.Code != http.StatusOK || decodeBody(t, w)["uid"] != "u-2" {
		t.Fatalf("stream with query token: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/me?access_token="+tok, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("query token must not work on /me, got %d", w.Code)
	}
}

func TestAuthenticate_PublicAndPreflight(t *testing.T) {
	r := authRouter(jwtOpts())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("public path status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
}

func TestAuthenticate_HeaderMode(t *testing.T) {
	r := authRouter(AuthOptions{Mode: config.AuthModeHeader})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(HeaderUserID, "  dev-1 ")
	req.Header.Set(HeaderUserName, "Dev")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if m := decodeBody(t, w); m["uid"] != "dev-1" || m["name"] != "Dev" {
		t.Fatalf("unexpected identity %+v", m)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d", w.Code)
	}
}

func TestIdentityFrom_FallsBackToUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyUserID, "u-9")
	if id := IdentityFrom(c); id.UserID != "u-9" || id.Name != "" {
		t.Fatalf("unexpected %+v", id)
	}
	if (bearerToken("bearer  xyz ")) != "xyz" {
		t.Fatalf("bearer parsing should be case-insensitive")
	}
}
