// Command server runs the Rent & Share marketplace API.
//
//	@title						Rent & Share API
//	@version					1.0
//	@description				Peer-to-peer marketplace for renting and swapping everyday items.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the token.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/rent-share-backend/internal/config"
	"github.com/tbourn/rent-share-backend/internal/events"
	httpapi "github.com/tbourn/rent-share-backend/internal/http"
	"github.com/tbourn/rent-share-backend/internal/media"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/realtime"
	"github.com/tbourn/rent-share-backend/internal/repo"
	"github.com/tbourn/rent-share-backend/internal/services"
	"github.com/tbourn/rent-share-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	heartbeatEvery = 25 * time.Second
	janitorEvery   = time.Hour
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

// run wires the server and blocks until ctx is done or the listener fails.
// ready, when set, receives the bound address once requests are accepted.
func run(ctx context.Context, cfg config.Config, ready func(addr string)) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing disabled")
		}
	}

	addr := ":" + cfg.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	hub := realtime.NewHub(log.Logger, heartbeatEvery)
	go hub.Start(ctx)

	pubs := events.Multi{hub}
	var rabbit *events.RabbitPublisher
	if cfg.Events.RabbitURL != "" {
		rabbit, err = events.DialRabbit(cfg.Events.RabbitURL, cfg.Events.Exchange)
		if err != nil {
			// live updates still work through the hub
			log.Error().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		} else {
			pubs = append(pubs, rabbit)
			log.Info().Str("exchange", cfg.Events.Exchange).Msg("publishing events to rabbitmq")
		}
	}

	rt := httpapi.Runtime{Events: pubs, Stream: hub}
	if cfg.Media.Configured() {
		rt.Uploader = media.NewCloudinaryUploader(cfg.Media, nil)
	} else {
		log.Warn().Msg("media CDN not configured, uploads disabled")
	}

	go services.RunIdempotencyJanitor(ctx, db, janitorEvery)

	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		cfg.APIBasePath + httpapi.StreamRoute,
	})))
	httpapi.RegisterRoutes(r, db, rt, cfg)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	log.Info().Str("addr", ln.Addr().String()).Str("version", version).Msg("listening")
	if ready != nil {
		ready(ln.Addr().String())
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := hub.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("hub shutdown")
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			log.Warn().Err(err).Msg("rabbitmq close")
		}
	}
	if err := shutdownOTel(shutCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	return runErr
}
