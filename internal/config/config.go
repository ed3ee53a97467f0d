package config

import (
	"encoding/json"
	"os"
	"runtime"
	"time"
)

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// RateLimitConfig defines ingest admission settings
type RateLimitConfig struct {
	Burst         int           `json:"burst"`          // Bucket capacity per client
	PerMinute     int           `json:"per_minute"`     // Refill rate, tokens per minute
	IdleTimeout   time.Duration `json:"idle_timeout"`   // Drop buckets untouched this long
	SweepInterval time.Duration `json:"sweep_interval"` // How often to drop idle buckets
}

// ProxyConfig defines the upstream mining-proxy poller settings. When URL is
// empty the scheduled collection job is disabled and only direct worker
// reports feed the store.
type ProxyConfig struct {
	URL          string        `json:"url"`
	Token        string        `json:"token"`
	PollInterval time.Duration `json:"poll_interval"`
}

// AlertConfig defines webhook alerting settings
type AlertConfig struct {
	Enabled         bool   `json:"enabled"`
	WebhookURL      string `json:"webhook_url,omitempty"`
	OnWorkerOffline bool   `json:"on_worker_offline"`
	OnNewLeader     bool   `json:"on_new_leader"`
}

// Config is the dashboard server configuration
type Config struct {
	Server     ServerConfig    `json:"server"`
	RateLimit  RateLimitConfig `json:"rate_limit"`
	Proxy      ProxyConfig     `json:"proxy"`
	Alerts     AlertConfig     `json:"alerts"`
	DBPath     string          `json:"db_path"`
	CronSecret string          `json:"cron_secret"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Burst:         30,
			PerMinute:     30,
			IdleTimeout:   5 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Proxy: ProxyConfig{
			URL:          "",
			Token:        "",
			PollInterval: 10 * time.Minute,
		},
		Alerts: AlertConfig{
			Enabled:         false,
			OnWorkerOffline: true,
			OnNewLeader:     true,
		},
		DBPath:     "/data/poolhq.db",
		CronSecret: "",
	}
}

// Load reads configuration from a JSON file. Secrets can be overridden from
// the environment so they stay out of the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	config.applyEnv()

	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CRON_SECRET"); v != "" {
		c.CronSecret = v
	}
	if v := os.Getenv("PROXY_API_URL"); v != "" {
		c.Proxy.URL = v
	}
	if v := os.Getenv("PROXY_API_TOKEN"); v != "" {
		c.Proxy.Token = v
	}
}

// Save writes configuration to a JSON file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// AgentConfig is the desktop mining agent configuration
type AgentConfig struct {
	PoolURL        string        `json:"pool_url"`
	WalletAddress  string        `json:"wallet_address"`
	WorkerID       string        `json:"worker_id"` // Free-form, typically an email address
	Threads        int           `json:"threads"`
	AutoStart      bool          `json:"auto_start"`
	DashboardURL   string        `json:"dashboard_url"`
	XMRigPath      string        `json:"xmrig_path"`
	APIHost        string        `json:"api_host"`
	APIPort        int           `json:"api_port"`
	ReportInterval time.Duration `json:"report_interval"`
}

// DefaultAgentConfig returns an AgentConfig with sensible default values.
// Threads defaults to 75% of the machine's logical CPUs.
func DefaultAgentConfig() *AgentConfig {
	threads := runtime.NumCPU() * 75 / 100
	if threads < 1 {
		threads = 1
	}

	return &AgentConfig{
		PoolURL:        "brtnetwork.duckdns.org:3333",
		WalletAddress:  "",
		WorkerID:       "",
		Threads:        threads,
		AutoStart:      false,
		DashboardURL:   "https://brt-dashboard.vercel.app",
		XMRigPath:      "xmrig",
		APIHost:        "127.0.0.1",
		APIPort:        18080,
		ReportInterval: 5 * time.Second,
	}
}

// LoadAgent reads agent configuration from a JSON file
func LoadAgent(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultAgentConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Save writes agent configuration to a JSON file
func (c *AgentConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Valid reports whether the agent has everything it needs to mine and report.
func (c *AgentConfig) Valid() bool {
	return c.PoolURL != "" && c.WalletAddress != "" && c.WorkerID != "" &&
		c.Threads > 0 && c.DashboardURL != ""
}
