package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/biogate/biogate/internal/audit"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/config"
	"github.com/biogate/biogate/internal/directory"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/handler"
	"github.com/biogate/biogate/internal/lockdown"
	"github.com/biogate/biogate/internal/logger"
	"github.com/biogate/biogate/internal/middleware"
	"github.com/biogate/biogate/internal/ratelimit"
	"github.com/biogate/biogate/internal/router"
	"github.com/biogate/biogate/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting BioGate server")

	clk := clock.System()

	// Session store backend
	var sessions session.Store
	switch cfg.Sessions.Backend {
	case "redis":
		store, err := session.NewRedisStore(cfg.Redis, clk)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer store.Close()
		sessions = store
		log.Info().Msg("connected to Redis session store")
	default:
		sessions = session.NewMemoryStore(clk)
		log.Info().Msg("using in-memory session store")
	}

	// Token service with a fresh per-process signing key
	tokenSvc, err := session.NewTokenService(cfg.Sessions.Issuer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}
	log.Info().Msg("token service initialized")

	// Template integrity key lives and dies with the process, like the
	// in-memory templates it protects.
	integrityKey := make([]byte, 32)
	if _, err := rand.Read(integrityKey); err != nil {
		log.Fatal().Err(err).Msg("failed to generate integrity key")
	}
	verifier, err := biometric.NewIntegrityVerifier(integrityKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize integrity verifier")
	}

	// Core decision components
	dir := directory.New(clk)
	limiter := ratelimit.New(cfg.Security.RateLimiting.Window, cfg.Security.RateLimiting.MaxAttempts, clk)
	lock := lockdown.New(cfg.Security.Lockdown.ImpersonationThreshold, cfg.Security.Lockdown.Duration, clk)
	ring := audit.NewRing(cfg.Audit.RingSize, clk, log)

	eng := engine.New(cfg, dir, limiter, lock, verifier, ring, tokenSvc, sessions, clk, log)
	log.Info().
		Float64("threshold", cfg.Security.Similarity.Threshold).
		Int("impersonation_threshold", cfg.Security.Lockdown.ImpersonationThreshold).
		Msg("decision engine initialized")

	// Initialize handlers
	h := handler.New(eng, dir, ring, log, cfg)

	// Initialize middleware
	mw := middleware.New(log, cfg)

	// Set up router
	r := router.New(h, mw)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
