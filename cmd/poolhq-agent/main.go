package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/camarigor/pool-hq/internal/config"
	"github.com/camarigor/pool-hq/internal/miner"
	"github.com/camarigor/pool-hq/internal/reporter"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "agent.json", "path to agent config file")
	flag.Parse()

	log.Println("PoolHQ agent starting...")

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, writing defaults", *configPath)
			cfg = config.DefaultAgentConfig()
			if saveErr := cfg.Save(*configPath); saveErr != nil {
				log.Printf("Warning: could not save default config: %v", saveErr)
			}
			log.Fatalf("Fill in wallet_address and worker_id in %s and restart", *configPath)
		}
		log.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Valid() {
		log.Fatalf("Incomplete config: pool_url, wallet_address, worker_id, threads and dashboard_url are required")
	}

	// The generated miner config lives next to the agent config
	minerConfigPath := filepath.Join(filepath.Dir(*configPath), "xmrig-config.json")
	mgr := miner.NewManager(cfg.XMRigPath, minerConfigPath)

	if err := mgr.Start(&miner.Config{
		PoolURL:       cfg.PoolURL,
		WalletAddress: cfg.WalletAddress,
		WorkerID:      cfg.WorkerID,
		Threads:       cfg.Threads,
		APIHost:       cfg.APIHost,
		APIPort:       cfg.APIPort,
	}); err != nil {
		log.Fatalf("Failed to start miner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := reporter.New(mgr, cfg.WorkerID, cfg.DashboardURL, cfg.ReportInterval)
	go rep.Run(ctx)

	log.Printf("Mining as %s, reporting to %s. Press Ctrl+C to stop.", cfg.WorkerID, cfg.DashboardURL)

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("PoolHQ agent shutting down...")

	cancel()
	if err := mgr.Stop(); err != nil {
		log.Printf("Miner stop error: %v", err)
	}

	log.Println("PoolHQ agent stopped")
}
