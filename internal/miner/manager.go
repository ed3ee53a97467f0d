// Package miner supervises an XMRig subprocess: start, stop with a forced
// kill escalation, restart, and polling of its local HTTP stats API. All
// actual mining happens inside the external binary.
package miner

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the supervisor's lifecycle phase.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// stopGrace is how long a stopped process gets to exit after SIGTERM before
// it is killed.
const stopGrace = 5 * time.Second

// Config describes one mining run.
type Config struct {
	PoolURL       string
	WalletAddress string
	WorkerID      string
	Threads       int
	APIHost       string
	APIPort       int
}

// Stats is a snapshot of the miner's counters from its HTTP API. Accepted
// and rejected are cumulative since the miner process started.
type Stats struct {
	Hashrate    float64 `json:"hashrate"`
	Hashrate1m  float64 `json:"hashrate1m"`
	Hashrate10m float64 `json:"hashrate10m"`
	Accepted    int64   `json:"accepted"`
	Rejected    int64   `json:"rejected"`
	Uptime      int64   `json:"uptime"`
}

// Manager owns at most one XMRig subprocess at a time.
type Manager struct {
	binaryPath string
	configPath string
	httpClient *http.Client

	mu     sync.Mutex
	state  State
	cfg    *Config
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewManager creates a Manager for the given XMRig binary. The generated
// config file is written next to configPath on every start.
func NewManager(binaryPath, configPath string) *Manager {
	return &Manager{
		binaryPath: binaryPath,
		configPath: configPath,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		state:      StateStopped,
	}
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRunning reports whether the subprocess is up.
func (m *Manager) IsRunning() bool {
	return m.State() == StateRunning
}

// Start writes the miner config file and spawns the subprocess.
func (m *Manager) Start(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStopped {
		return fmt.Errorf("miner is %s, cannot start", m.state)
	}

	if _, err := os.Stat(m.binaryPath); err != nil {
		return fmt.Errorf("miner binary not found at %s: %w", m.binaryPath, err)
	}

	m.state = StateStarting
	m.cfg = cfg

	if err := m.writeConfigFile(cfg); err != nil {
		m.state = StateStopped
		return fmt.Errorf("failed to write miner config: %w", err)
	}

	cmd := exec.Command(m.binaryPath, "--config", m.configPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.state = StateStopped
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.state = StateStopped
		return err
	}

	if err := cmd.Start(); err != nil {
		m.state = StateStopped
		return fmt.Errorf("failed to spawn miner: %w", err)
	}

	m.cmd = cmd
	m.exited = make(chan struct{})
	m.state = StateRunning

	go logOutput("xmrig", stdout)
	go logOutput("xmrig err", stderr)

	exited := m.exited
	go func() {
		err := cmd.Wait()
		if err != nil {
			log.Printf("Miner process exited: %v", err)
		} else {
			log.Printf("Miner process exited")
		}
		m.mu.Lock()
		m.state = StateStopped
		m.cmd = nil
		m.mu.Unlock()
		close(exited)
	}()

	log.Printf("Miner started: pool=%s worker=%s threads=%d", cfg.PoolURL, cfg.WorkerID, cfg.Threads)
	return nil
}

// Stop terminates the subprocess: SIGTERM first, SIGKILL after the grace
// period. Stopping an already-stopped miner is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning || m.cmd == nil {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	cmd := m.cmd
	exited := m.exited
	m.mu.Unlock()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process may have exited between the state check and the signal.
		if !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to signal miner: %w", err)
		}
	}

	select {
	case <-exited:
	case <-time.After(stopGrace):
		log.Printf("Miner did not exit within %v, killing", stopGrace)
		_ = cmd.Process.Kill()
		<-exited
	}

	return nil
}

// Restart stops the subprocess and starts it again with the same config.
func (m *Manager) Restart() error {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	if cfg == nil {
		return fmt.Errorf("miner has never been started")
	}

	if err := m.Stop(); err != nil {
		return err
	}
	return m.Start(cfg)
}

// summaryResponse matches XMRig's /2/summary JSON. Hashrate entries are null
// until enough samples accumulate.
type summaryResponse struct {
	Hashrate struct {
		Total []*float64 `json:"total"`
	} `json:"hashrate"`
	Results struct {
		SharesGood  int64 `json:"shares_good"`
		SharesTotal int64 `json:"shares_total"`
	} `json:"results"`
	Uptime float64 `json:"uptime"`
}

// Stats fetches current counters from the miner's HTTP API. Returns nil with
// no error when the miner is not running; a fetch failure never stops the
// subprocess.
func (m *Manager) Stats() (*Stats, error) {
	m.mu.Lock()
	cfg := m.cfg
	running := m.state == StateRunning
	m.mu.Unlock()

	if !running || cfg == nil {
		return nil, nil
	}

	url := fmt.Sprintf("http://%s:%d/2/summary", cfg.APIHost, cfg.APIPort)
	resp, err := m.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch miner stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var summary summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode miner stats: %w", err)
	}

	return &Stats{
		Hashrate:    hashrateAt(summary.Hashrate.Total, 0),
		Hashrate1m:  hashrateAt(summary.Hashrate.Total, 1),
		Hashrate10m: hashrateAt(summary.Hashrate.Total, 2),
		Accepted:    summary.Results.SharesGood,
		Rejected:    summary.Results.SharesTotal - summary.Results.SharesGood,
		Uptime:      int64(summary.Uptime),
	}, nil
}

func hashrateAt(total []*float64, i int) float64 {
	if i >= len(total) || total[i] == nil {
		return 0
	}
	return *total[i]
}

func logOutput(prefix string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Printf("[%s] %s", prefix, scanner.Text())
	}
}
