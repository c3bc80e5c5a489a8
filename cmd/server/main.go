package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stockinsight/internal/analysis"
	"stockinsight/internal/api"
	"stockinsight/internal/config"
	"stockinsight/internal/ga4"
	"stockinsight/internal/logger"
	"stockinsight/internal/service"
	"stockinsight/internal/state"
	"stockinsight/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	thresholds, err := config.LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		logg.Fatal("invalid thresholds", "file", cfg.ThresholdsFile, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := api.Options{
		Thresholds:  thresholds,
		CSVService:  analysis.NewCSVService(cfg.ProductURLTemplate),
		URLTemplate: cfg.ProductURLTemplate,
		DefaultDB: service.DataSourceConfig{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN,
		},
		UploadDir:       cfg.UploadDir,
		MaxUploadBytes:  cfg.MaxUploadMB << 20,
		SchedulerSecret: cfg.SchedulerSecret,
		Log:             logg,
	}

	// Optional remote sources
	if cfg.R2.Enabled() {
		store, err := storage.NewR2Store(cfg.R2)
		if err != nil {
			logg.Fatal("failed to init R2", "error", err)
		}
		opts.Store = store
	} else {
		logg.Info("R2 not configured, remote product master disabled")
	}
	if cfg.GA4.Enabled() {
		client, err := ga4.NewClient(ctx, cfg.GA4)
		if err != nil {
			logg.Fatal("failed to init GA4", "error", err)
		}
		opts.Fetcher = client
		logg.Info("GA4 enabled", "brands", client.Brands())
	} else {
		logg.Info("GA4 not configured, metrics must be uploaded")
	}

	if cfg.SchedulerSecret == "" {
		logg.Info("SCHEDULER_SECRET not set, scheduled updates disabled")
	}

	handler := api.NewHandler(state.NewWorkspace(), opts)
	if err := handler.Bootstrap(ctx, cfg.ProductMasterFile, cfg.GA4.Brands()); err != nil {
		logg.Warn("startup data not restored", "error", err)
	}

	// Router Setup
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS - Allow frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Stock Insight API is running"))
	})

	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logg.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "origins", cfg.AllowedOrigins, "upload_dir", cfg.UploadDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("graceful shutdown failed", "error", err)
	}
}
