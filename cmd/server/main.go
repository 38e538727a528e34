package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesargomez89/tidepool/internal/cache"
	"github.com/cesargomez89/tidepool/internal/catalog"
	"github.com/cesargomez89/tidepool/internal/config"
	"github.com/cesargomez89/tidepool/internal/constants"
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/download"
	"github.com/cesargomez89/tidepool/internal/handlers"
	"github.com/cesargomez89/tidepool/internal/httpclient"
	"github.com/cesargomez89/tidepool/internal/logger"
	"github.com/cesargomez89/tidepool/internal/resolve"
	"github.com/cesargomez89/tidepool/internal/search"
	"github.com/cesargomez89/tidepool/internal/session"
	"github.com/cesargomez89/tidepool/internal/store"
	"github.com/cesargomez89/tidepool/internal/tagging"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Initialize DB
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	settingsRepo := store.NewSettingsRepo(db)

	// Working directory for transferred files
	downloadDir := filepath.Join(os.TempDir(), "tidepool")
	if err := os.MkdirAll(downloadDir, constants.DirPermissions); err != nil {
		appLogger.Error("Failed to create download dir", "path", downloadDir, "error", err)
		os.Exit(1)
	}

	// Initialize Session Driver
	automationURL := cfg.AutomationURL
	if saved, err := settingsRepo.Get(store.SettingAutomationURL); err == nil && saved != "" {
		automationURL = saved
	}
	client := httpclient.New(&http.Client{}, constants.DefaultRequestInterval)
	driver := session.NewHTTPDriver(automationURL, client, downloadDir, appLogger)

	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.SessionInitTimeout)
	if err := driver.Init(initCtx); err != nil {
		appLogger.Warn("Session init failed, continuing degraded", "error", err)
	}
	initCancel()

	queue := session.NewQueue(appLogger)
	defer queue.Close()

	// Initialize Search Engine
	fast := catalog.NewFastProvider(cfg.FastSearchURLs, &http.Client{Timeout: cfg.FastSearchTimeout}, appLogger)
	searchCache := cache.New[[]domain.Item](cfg.SearchCacheTTL, cfg.SearchCacheMax, nil)
	index := search.NewIndex()
	searchEngine := search.NewEngine(fast, driver, queue, searchCache, index, search.Timeouts{
		Fast:          cfg.FastSearchTimeout,
		Session:       cfg.SessionSearchTimeout,
		Pipeline:      cfg.SearchPipelineTimeout,
		AlbumTracks:   cfg.AlbumTracksTimeout,
		AlbumPipeline: cfg.AlbumPipelineTimeout,
	}, appLogger)

	// Initialize Resolver. It runs inside the download queue task, so it
	// talks to the driver directly instead of routing through the queue
	// again.
	resolver := resolve.New(index, func(ctx context.Context, query string, thorough bool) ([]domain.Item, error) {
		timeout := cfg.ResolveTimeout
		if thorough {
			timeout = cfg.ResolveRetryTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return driver.Search(ctx, query, domain.ItemTypeTrack, session.SearchOptions{
			Thorough: thorough,
			Limit:    constants.MaxResolveTrackResults,
		})
	}, appLogger)

	// Initialize Download Engine
	registry := download.NewRegistry(cfg.MaxJobs)
	artifacts := download.NewArtifactCache(cfg.ArtifactTTL, cfg.ArtifactMax, cfg.ArtifactSweep, appLogger)
	tagger := tagging.NewReader()
	defaultQuality := func() string {
		if saved, err := settingsRepo.Get(store.SettingQuality); err == nil && saved != "" {
			return saved
		}
		return cfg.Quality
	}
	downloads := download.NewEngine(registry, artifacts, resolver, driver, queue, tagger,
		cfg.DownloadTimeout, defaultQuality, appLogger)
	defer downloads.Close()

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Routes
	h := handlers.NewHandler(searchEngine, downloads, settingsRepo, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
