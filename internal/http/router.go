// Package httpapi wires the HTTP transport (Gin) to the marketplace services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// authentication, CORS, security headers, idempotency and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; all dependencies injected
//   - The live event stream stays outside gzip, the rate limiter and the
//     latency histograms
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/docs"
	"github.com/tbourn/rent-share-backend/internal/auth"
	"github.com/tbourn/rent-share-backend/internal/config"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/http/handlers"
	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/media"
	"github.com/tbourn/rent-share-backend/internal/repo"
	"github.com/tbourn/rent-share-backend/internal/services"
)

// Route paths relative to the API base path that get special treatment in
// the middleware chain.
const (
	StreamRoute = "/stream"
	UploadRoute = "/uploads"
)

// defaultBodyLimit caps JSON request bodies.
const defaultBodyLimit = 1 << 20

// Runtime carries the process-level collaborators that outlive a request.
// Every field is optional: a nil Events discards events, a nil Stream or
// Uploader makes the matching endpoint answer 503.
type Runtime struct {
	Events   events.Publisher
	Stream   handlers.Stream
	Uploader media.Uploader
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication,
// idempotency and rate limiting, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (larger for uploads)
//  6. Metrics
//  7. Authenticate: resolve the caller
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay, stream exempt)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, rt Runtime, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath
	streamPath := joinPath(apiBase, StreamRoute)
	uploadPath := joinPath(apiBase, UploadRoute)

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			middleware.HeaderUserEmail,
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limit; uploads get the media limit plus room for the
	// multipart envelope
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		uploadPath: cfg.Media.MaxBytes + defaultBodyLimit,
	}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(streamPath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured). It runs
	// before authentication so 401 and 429 replies still carry ACAO
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		cc := corsConfig()
		cc.AllowAllOrigins = true
		r.Use(cors.New(cc))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		cc := corsConfig()
		cc.AllowOrigins = cfg.CORS.AllowedOrigins
		r.Use(cors.New(cc))
	}

	// 8) Authentication
	authOpts := middleware.AuthOptions{
		Mode:            cfg.Auth.Mode,
		PublicPrefixes:  []string{"/health", "/metrics", "/swagger"},
		QueryTokenPaths: []string{streamPath},
	}
	if cfg.Auth.Mode == config.AuthModeJWT {
		authOpts.Verifier = auth.NewVerifier(cfg.Auth)
	}
	r.Use(middleware.Authenticate(authOpts))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Exempt(streamPath)
	r.Use(rl.Handler())

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if err := handlers.RegisterValidators(); err != nil {
		panic(err)
	}

	// Dependency injection: services ← db/events
	pub := rt.Events
	if pub == nil {
		pub = events.Nop{}
	}
	h := handlers.New(handlers.Deps{
		Users: &services.UserService{DB: db},
		Listings: &services.ListingService{
			DB:             db,
			SearchRadiusKM: cfg.Market.SearchRadiusKM,
			MaxRadiusKM:    cfg.Market.MaxRadiusKM,
			MaxCandidates:  cfg.Market.MaxSearchCandidates,
		},
		Transactions: &services.TransactionService{
			DB:                db,
			Events:            pub,
			DefaultRentalDays: cfg.Market.DefaultRentalDays,
			IdempotencyTTL:    cfg.IdempotencyTTL,
		},
		Chats: &services.ChatService{
			DB:              db,
			Events:          pub,
			MaxMessageRunes: services.DefaultMaxMessageRunes,
			IdempotencyTTL:  cfg.IdempotencyTTL,
		},
		Notifications: &services.NotificationService{DB: db, Events: pub},
		Reviews:       &services.ReviewService{DB: db, Events: pub},
		Uploader:      rt.Uploader,
		Stream:        rt.Stream,
	})

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Profiles
		api.POST("/users/me/sync", h.SyncProfile)
		api.GET("/users/me", h.GetMe)
		api.PATCH("/users/me", h.UpdateMe)
		api.PUT("/users/me/location", h.UpdateMyLocation)
		api.GET("/users/:id", h.GetUser)
		api.GET("/users/:id/listings", h.ListUserListings)
		api.GET("/users/:id/reviews", h.ListUserReviews)

		// Listings and requests
		api.POST("/listings", h.CreateListing)
		api.GET("/listings", h.SearchListings)
		api.GET("/listings/:id", h.GetListing)
		api.PATCH("/listings/:id", h.UpdateListing)
		api.DELETE("/listings/:id", h.DeleteListing)
		api.POST("/listings/:id/requests", h.CreateRequest)

		// Transactions
		api.GET("/transactions", h.ListTransactions)
		api.GET("/transactions/:id", h.GetTransaction)
		api.PUT("/transactions/:id/status", h.UpdateTransactionStatus)
		api.DELETE("/transactions/:id", h.DeleteTransaction)
		api.GET("/transactions/:id/chat", h.GetTransactionChat)
		api.POST("/transactions/:id/review", h.LeaveReview)

		// Chats and messages
		api.GET("/chats", h.ListChats)
		api.POST("/chats", h.StartChat)
		api.GET("/chats/:id", h.GetChat)
		api.GET("/chats/:id/messages", h.ListMessages)
		api.POST("/chats/:id/messages", h.PostMessage)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadCount)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)

		// Media and live updates
		api.POST(UploadRoute, h.UploadMedia)
		api.GET(StreamRoute, h.StreamEvents)
	}
}

// corsConfig is the CORS policy shared by both origin modes. Credentials
// stay off: tokens travel in the Authorization header, not cookies.
func corsConfig() cors.Config {
	return cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Routes in overrides (keyed by
// c.FullPath()) get their own cap. Requests exceeding the cap cause
// downstream body reads to fail with *http.MaxBytesError.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.FullPath()]; ok && n > 0 {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends route to the API base path the way gin groups do.
func joinPath(base, route string) string {
	if base == "" || base == "/" {
		return route
	}
	return base + route
}
