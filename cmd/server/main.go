package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sniplink/sniplink/internal/cache"
	"github.com/sniplink/sniplink/internal/config"
	"github.com/sniplink/sniplink/internal/handler"
	"github.com/sniplink/sniplink/internal/logger"
	"github.com/sniplink/sniplink/internal/middleware"
	"github.com/sniplink/sniplink/internal/repository"
	"github.com/sniplink/sniplink/internal/service"
)

func main() {
	// ============================================================
	// LOAD CONFIGURATION
	// ============================================================
	fmt.Println("📋 Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if cfg.IsDevelopment() {
		fmt.Printf("   Environment: %s\n", cfg.App.Environment)
		fmt.Printf("   Port: %s\n", cfg.Server.Port)
		fmt.Printf("   Database: %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
		fmt.Printf("   Base URL: %s\n", cfg.App.BaseURL)
	}

	// ============================================================
	// INITIALIZE LOGGER
	// ============================================================
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Log.Environment,
	})

	log.Info("starting sniplink",
		"level", cfg.Log.Level,
		"format", cfg.Log.Format,
		"environment", cfg.App.Environment)

	// ============================================================
	// INITIALIZE LAYERS
	// ============================================================
	fmt.Println("🗄️  Connecting to database...")
	repo, err := repository.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Error("Failed to initialize database", "error", err.Error())
		os.Exit(1)
	}

	var lookupCache cache.Cache
	if cfg.UseRedis() {
		log.Info("connecting to Redis...", "addr", cfg.Redis.Addr)
		redisCache, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err.Error())
			os.Exit(1)
		}
		lookupCache = redisCache
		log.Info("Redis connected successfully!")
	} else {
		log.Info("no REDIS_ADDR configured, using in-memory cache")
		lookupCache = cache.NewMemoryCache()
	}
	defer func() {
		if err := lookupCache.Close(); err != nil {
			log.Error("Failed to close cache", "error", err.Error())
		}
	}()

	fmt.Println("⚙️  Initializing service...")
	svc := service.NewURLService(repo, lookupCache, cfg.App.BaseURL, log)

	fmt.Println("🌐 Setting up HTTP handlers...")
	h := handler.NewURLHandler(svc, log)
	router := h.SetupRoutes()

	// ============================================================
	// BUILD MIDDLEWARE CHAIN
	// ============================================================
	middlewares := []middleware.Middleware{
		middleware.RequestID,
		middleware.RecoveryWithLogger(log),
		middleware.LoggingWithLogger(log),
	}
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			middleware.RateLimiterConfig{
				Rate:     cfg.RateLimit.Rate,
				Burst:    cfg.RateLimit.Burst,
				Interval: cfg.RateLimit.Interval,
				Cleanup:  cfg.RateLimit.Cleanup,
			},
			log,
		)
		middlewares = append(middlewares, rateLimiter.Middleware())
		log.Info("rate limiter enabled",
			"rate", cfg.RateLimit.Rate,
			"burst", cfg.RateLimit.Burst,
		)
	}

	wrappedRouter := middleware.Chain(router, middlewares...)

	// ============================================================
	// CREATE SERVER WITH CONFIG TIMEOUTS
	// ============================================================
	addr := ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      wrappedRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel to track server errors
	serverErr := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		if cfg.IsDevelopment() {
			fmt.Printf("🚀 Server starting on http://localhost%s\n", addr)
			fmt.Println("───────────────────────────────────────")
			fmt.Println("Endpoints:")
			fmt.Println("  POST /api/shorten               - Create short URL")
			fmt.Println("  GET  /{code}                    - Redirect to original")
			fmt.Println("  GET  /api/clicks/{code}         - Click count")
			fmt.Println("  GET  /api/unshorten/{code}      - Resolve without redirect")
			fmt.Println("  GET  /api/qr/{code}             - QR code PNG")
			fmt.Println("  GET  /health                    - Health check")
			fmt.Println("───────────────────────────────────────")
			fmt.Println("Press Ctrl+C to shutdown gracefully")
		}
		log.Info("server starting", "addr", "http://localhost"+addr)
		serverErr <- server.ListenAndServe()
	}()

	// ============================================================
	// WAIT FOR SHUTDOWN OR ERROR
	// ============================================================
	select {
	case err := <-serverErr:
		log.Error("server error", "error", err.Error())
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "error", err.Error())
			if err := server.Close(); err != nil {
				log.Error("forced shutdown failed", "error", err.Error())
			}
		}

		// Drain pending click increments before the store goes away
		svc.Close()

		if err := repo.Close(); err != nil {
			log.Error("failed to close database", "error", err.Error())
		}

		log.Info("server stopped")
	}
}
