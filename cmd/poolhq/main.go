package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/camarigor/pool-hq/internal/alerts"
	"github.com/camarigor/pool-hq/internal/api"
	"github.com/camarigor/pool-hq/internal/collector"
	"github.com/camarigor/pool-hq/internal/config"
	"github.com/camarigor/pool-hq/internal/ratelimit"
	"github.com/camarigor/pool-hq/internal/storage"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	log.Println("PoolHQ starting...")

	// Load config (use defaults if file doesn't exist)
	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults", *configPath)
			cfg = config.DefaultConfig()
			// Save default config so it persists
			if saveErr := cfg.Save(*configPath); saveErr != nil {
				log.Printf("Warning: could not save default config: %v", saveErr)
			}
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Determine database path and ensure parent directory exists
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "poolhq.db"
	}
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rate limiter with background sweep of idle buckets
	limiter := ratelimit.New(
		float64(cfg.RateLimit.PerMinute)/60.0,
		cfg.RateLimit.Burst,
		cfg.RateLimit.IdleTimeout,
	)
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval)

	// Upstream proxy collector, scheduled when a proxy URL is configured
	var coll *collector.Collector
	var scheduler *cron.Cron
	if cfg.Proxy.URL != "" {
		client := collector.NewProxyClient(cfg.Proxy.URL, cfg.Proxy.Token)
		coll = collector.NewCollector(store, client)

		scheduler = cron.New()
		_, err := scheduler.AddFunc("@every "+cfg.Proxy.PollInterval.String(), func() {
			res, err := coll.CollectOnce(ctx)
			if err != nil {
				log.Printf("Scheduled collection failed: %v", err)
				return
			}
			log.Printf("Scheduled collection: %d snapshots, %d points across %d workers",
				res.SnapshotsCreated, res.PointsAwarded, res.WorkersProcessed)
		})
		if err != nil {
			log.Fatalf("Failed to schedule proxy collection: %v", err)
		}
		scheduler.Start()
		log.Printf("Proxy collection scheduled every %v from %s", cfg.Proxy.PollInterval, cfg.Proxy.URL)
	}

	// Alert engine watching liveness transitions and leader changes
	if cfg.Alerts.Enabled {
		engine := alerts.NewEngine(&alerts.Config{
			WebhookURL:      cfg.Alerts.WebhookURL,
			OnWorkerOffline: cfg.Alerts.OnWorkerOffline,
			OnNewLeader:     cfg.Alerts.OnNewLeader,
		}, store)
		go engine.Run(ctx, time.Minute)
		log.Println("Alert engine initialized")
	}

	// Initialize and start HTTP server
	server := api.NewServer(cfg, store, limiter, coll)
	go func() {
		log.Printf("HTTP server starting on http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("PoolHQ is running. Press Ctrl+C to stop.")

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("PoolHQ shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("PoolHQ stopped")
}
