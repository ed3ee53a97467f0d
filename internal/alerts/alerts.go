// Package alerts sends Discord webhook notifications for worker liveness
// transitions and leaderboard leader changes.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/camarigor/pool-hq/internal/status"
	"github.com/camarigor/pool-hq/internal/storage"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertWorkerOffline AlertType = "worker_offline"
	AlertWorkerBack    AlertType = "worker_back"
	AlertNewLeader     AlertType = "new_leader"
)

// alertDisplay holds the visual representation for each alert type
type alertDisplay struct {
	Emoji string
	Title string
	Color int
}

var alertDisplayMap = map[AlertType]alertDisplay{
	AlertWorkerOffline: {Emoji: "🔴", Title: "Worker Offline", Color: 0xFF4444},
	AlertWorkerBack:    {Emoji: "🟢", Title: "Worker Back Online", Color: 0x00FF88},
	AlertNewLeader:     {Emoji: "👑", Title: "New Leaderboard Leader!", Color: 0xAA55FF},
}

func getAlertDisplay(t AlertType) alertDisplay {
	if d, ok := alertDisplayMap[t]; ok {
		return d
	}
	return alertDisplay{Emoji: "⚠️", Title: string(t), Color: 0x00D4FF}
}

// Config holds alert configuration
type Config struct {
	WebhookURL      string `json:"webhookUrl"`
	OnWorkerOffline bool   `json:"onWorkerOffline"`
	OnNewLeader     bool   `json:"onNewLeader"`
}

// Alert represents a triggered alert
type Alert struct {
	Type      AlertType                `json:"type"`
	Worker    string                   `json:"worker"`
	Message   string                   `json:"message"`
	Timestamp time.Time                `json:"timestamp"`
	Fields    []map[string]interface{} `json:"fields,omitempty"`
}

// Store is the slice of the storage layer the engine watches.
type Store interface {
	ListWorkers() ([]*storage.WorkerSummary, error)
	GetLeaderboard(limit int) ([]*storage.LeaderboardEntry, error)
}

// Engine watches the store for liveness transitions and leader changes. It
// keeps the last observed status per worker so each transition fires once.
type Engine struct {
	config *Config
	store  Store
	client *http.Client
	mu     sync.Mutex
	known  map[string]status.Status
	leader string
	seeded bool
}

// NewEngine creates an alert engine over the given store.
func NewEngine(config *Config, store Store) *Engine {
	return &Engine{
		config: config,
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
		known:  make(map[string]status.Status),
	}
}

// Run checks for transitions on the given interval until the context is
// canceled. The first pass only seeds state so a restart doesn't replay
// alerts for workers that went offline long ago.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.Check()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Check()
		}
	}
}

// Check runs one pass over worker liveness and the leaderboard.
func (e *Engine) Check() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()

	workers, err := e.store.ListWorkers()
	if err != nil {
		log.Printf("Alert check failed to list workers: %v", err)
		return
	}

	for _, w := range workers {
		st := status.Classify(w.LastSeenAt, now)
		prev, ok := e.known[w.Worker]
		e.known[w.Worker] = st

		if !e.seeded || !e.config.OnWorkerOffline {
			continue
		}

		if ok && prev != status.Offline && st == status.Offline {
			e.sendAlert(Alert{
				Type:      AlertWorkerOffline,
				Worker:    w.Worker,
				Message:   fmt.Sprintf("No snapshot from %s for over %v", w.Worker, status.OfflineThreshold),
				Timestamp: now,
			})
		}
		if ok && prev == status.Offline && st == status.Active {
			e.sendAlert(Alert{
				Type:      AlertWorkerBack,
				Worker:    w.Worker,
				Message:   fmt.Sprintf("%s is reporting again", w.Worker),
				Timestamp: now,
			})
		}
	}

	e.checkLeader(now)
	e.seeded = true
}

// checkLeader fires when a different worker takes the top leaderboard spot.
func (e *Engine) checkLeader(now time.Time) {
	board, err := e.store.GetLeaderboard(1)
	if err != nil {
		log.Printf("Alert check failed to read leaderboard: %v", err)
		return
	}
	if len(board) == 0 {
		return
	}

	top := board[0]
	previous := e.leader
	e.leader = top.Worker

	if !e.seeded || !e.config.OnNewLeader {
		return
	}
	if previous == "" || previous == top.Worker {
		return
	}

	e.sendAlert(Alert{
		Type:      AlertNewLeader,
		Worker:    top.Worker,
		Message:   fmt.Sprintf("%s is the new points leader!", top.Worker),
		Timestamp: now,
		Fields: []map[string]interface{}{
			{"name": "New Leader", "value": top.Worker, "inline": true},
			{"name": "Total Points", "value": fmt.Sprintf("%d", top.TotalPoints), "inline": true},
			{"name": "Previous Leader", "value": previous, "inline": true},
		},
	})
}

// buildDiscordPayload builds the JSON body for a Discord webhook embed.
func buildDiscordPayload(alert Alert) ([]byte, error) {
	d := getAlertDisplay(alert.Type)

	fields := alert.Fields
	if fields == nil {
		fields = []map[string]interface{}{
			{"name": "Worker", "value": alert.Worker, "inline": true},
		}
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("%s %s", d.Emoji, d.Title),
				"description": alert.Message,
				"color":       d.Color,
				"fields":      fields,
				"timestamp":   alert.Timestamp.Format(time.RFC3339),
				"footer": map[string]string{
					"text": "PoolHQ Alert System",
				},
			},
		},
	}

	return json.Marshal(payload)
}

// sendAlert delivers an alert via the configured webhook, or to the log when
// no webhook is set.
func (e *Engine) sendAlert(alert Alert) {
	if e.config.WebhookURL == "" {
		log.Printf("Alert [%s] %s: %s", alert.Type, alert.Worker, alert.Message)
		return
	}

	body, err := buildDiscordPayload(alert)
	if err != nil {
		log.Printf("Failed to marshal Discord payload: %v", err)
		return
	}

	go e.postWebhook(e.config.WebhookURL, body)
}

// postWebhook posts a payload to the given webhook URL
func (e *Engine) postWebhook(url string, body []byte) {
	resp, err := e.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("Failed to send Discord webhook: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("Discord webhook returned status %d", resp.StatusCode)
	}
}
