package miner

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// xmrigPool is one pool entry in the generated XMRig config. The worker ID
// doubles as pool password and rig-id so the pool attributes shares to it.
type xmrigPool struct {
	Coin      string `json:"coin"`
	URL       string `json:"url"`
	User      string `json:"user"`
	Pass      string `json:"pass"`
	RigID     string `json:"rig-id"`
	Keepalive bool   `json:"keepalive"`
	Enabled   bool   `json:"enabled"`
	TLS       bool   `json:"tls"`
}

type xmrigAPI struct {
	ID       string `json:"id"`
	WorkerID string `json:"worker-id"`
}

type xmrigHTTP struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Restricted bool   `json:"restricted"`
}

type xmrigCPU struct {
	Enabled        bool `json:"enabled"`
	HugePages      bool `json:"huge-pages"`
	MaxThreadsHint int  `json:"max-threads-hint"`
}

type xmrigConfig struct {
	API         xmrigAPI    `json:"api"`
	HTTP        xmrigHTTP   `json:"http"`
	Autosave    bool        `json:"autosave"`
	CPU         xmrigCPU    `json:"cpu"`
	OpenCL      bool        `json:"opencl"`
	CUDA        bool        `json:"cuda"`
	Pools       []xmrigPool `json:"pools"`
	Retries     int         `json:"retries"`
	RetryPause  int         `json:"retry-pause"`
	PrintTime   int         `json:"print-time"`
	DonateLevel int         `json:"donate-level"`
}

// writeConfigFile renders the XMRig JSON config for one mining run. The HTTP
// API stays restricted and bound to the configured (normally loopback) host.
func (m *Manager) writeConfigFile(cfg *Config) error {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 75
	}

	xc := xmrigConfig{
		API: xmrigAPI{
			ID:       cfg.WorkerID,
			WorkerID: cfg.WorkerID,
		},
		HTTP: xmrigHTTP{
			Enabled:    true,
			Host:       cfg.APIHost,
			Port:       cfg.APIPort,
			Restricted: true,
		},
		Autosave: true,
		CPU: xmrigCPU{
			Enabled:        true,
			HugePages:      true,
			MaxThreadsHint: threads,
		},
		Pools: []xmrigPool{
			{
				Coin:      "monero",
				URL:       cfg.PoolURL,
				User:      cfg.WalletAddress,
				Pass:      cfg.WorkerID,
				RigID:     cfg.WorkerID,
				Keepalive: true,
				Enabled:   true,
			},
		},
		Retries:     5,
		RetryPause:  5,
		PrintTime:   60,
		DonateLevel: 1,
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(xc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.configPath, data, 0644)
}
