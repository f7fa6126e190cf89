package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/cmclass/inbound-mail/internal/attachment"
	"github.com/cmclass/inbound-mail/internal/config"
	"github.com/cmclass/inbound-mail/internal/health"
	"github.com/cmclass/inbound-mail/internal/inbound"
	"github.com/cmclass/inbound-mail/internal/ingest"
	"github.com/cmclass/inbound-mail/internal/logger"
	"github.com/cmclass/inbound-mail/internal/mailsource"
	"github.com/cmclass/inbound-mail/internal/metrics"
	appmw "github.com/cmclass/inbound-mail/internal/middleware"
	"github.com/cmclass/inbound-mail/internal/repository"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())

	// Database connections: pgxpool for health checks and stats, sqlx
	// over the pgx stdlib driver for the repositories
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	db, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to open sqlx connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	log.Info("Connected to database",
		"host", cfg.Database.Host, "database", cfg.Database.DBName)

	statsCollector := metrics.NewDBStatsCollector(dbPool, db.DB, log)
	statsCollector.Start(15 * time.Second)
	defer statsCollector.Stop()

	// Attachment storage backend
	var attStore attachment.Store
	if cfg.Attachment.Backend == "s3" {
		attStore = attachment.NewS3Store(&cfg.Attachment)
		log.Info("Using S3 attachment storage", "bucket", cfg.Attachment.S3Bucket)
	} else {
		attStore = attachment.NewLocalStore(cfg.Attachment.PublicRoot, cfg.Attachment.BaseURL)
		log.Info("Using local attachment storage", "root", cfg.Attachment.PublicRoot)
	}

	repo := repository.NewMessageRepo(db)

	// Mail ingestion: poller + pipeline, opt-in via configuration
	pipeline := ingest.NewPipeline(ingest.PipelineConfig{
		Store:       repo,
		Attachments: attStore,
		Logger:      log,
	})
	poller := ingest.NewPoller(ingest.PollerConfig{
		Source:   mailsource.New(cfg.MailRecv),
		Pipeline: pipeline,
		Config:   cfg.MailRecv,
		Logger:   log,
	})
	poller.Start()

	// Admin query surface
	service := inbound.NewService(inbound.ServiceConfig{
		Repo:        repo,
		Attachments: attStore,
		Logger:      log,
	})
	handler := inbound.NewHandler(service, log)

	healthHandler := health.NewHandler(health.Config{
		DBPool:   dbPool,
		Receiver: poller,
		Version:  version,
	})

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	adminLimiter := appmw.NewClientRateLimiter(300, time.Minute)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(adminLimiter.Handler)
		inbound.RegisterRoutes(r, handler)
	})

	// Serve stored attachment files when using local storage
	if cfg.Attachment.Backend != "s3" {
		pattern, files := attachment.FileServer(cfg.Attachment.BaseURL, cfg.Attachment.PublicRoot)
		r.Get(pattern, files.ServeHTTP)
	}

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	healthHandler.SetReady(false)
	poller.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

// setupDatabase creates and configures the pgx connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
