// Package reporter periodically uploads mining statistics from the local
// miner to the dashboard's contribution endpoint.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/camarigor/pool-hq/internal/miner"
)

// StatsSource supplies miner counters for one report cycle.
type StatsSource interface {
	IsRunning() bool
	Stats() (*miner.Stats, error)
}

// contribution is the POST /api/contributions request body.
type contribution struct {
	Worker      string  `json:"worker"`
	Hashrate1m  float64 `json:"hashrate1m"`
	Hashrate10m float64 `json:"hashrate10m"`
	Accepted    int64   `json:"accepted"`
	Rejected    int64   `json:"rejected"`
	TotalHashes int64   `json:"totalHashes"`
}

// contributionResponse is the subset of the dashboard's reply we act on.
type contributionResponse struct {
	Success       bool   `json:"success"`
	SnapshotID    int64  `json:"snapshotId"`
	PointsAwarded *int64 `json:"pointsAwarded,omitempty"`
	Message       string `json:"message"`
}

// Reporter posts one contribution snapshot per interval while the miner is
// running. A failed cycle is logged and skipped; the dashboard owns no retry
// expectations and the next cycle carries the same cumulative counters
// anyway.
type Reporter struct {
	source       StatsSource
	workerID     string
	dashboardURL string
	interval     time.Duration
	httpClient   *http.Client
}

// New creates a Reporter posting to {dashboardURL}/api/contributions.
func New(source StatsSource, workerID, dashboardURL string, interval time.Duration) *Reporter {
	return &Reporter{
		source:       source,
		workerID:     workerID,
		dashboardURL: dashboardURL,
		interval:     interval,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Run reports on each tick until the context is canceled.
func (r *Reporter) Run(ctx context.Context) {
	log.Printf("Contribution reporting started (interval: %v)", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Contribution reporting stopped")
			return
		case <-ticker.C:
			if err := r.ReportOnce(ctx); err != nil {
				log.Printf("Contribution report skipped: %v", err)
			}
		}
	}
}

// ReportOnce fetches current stats and posts a single contribution. It does
// nothing when the miner is not running or has no stats yet.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	if !r.source.IsRunning() {
		return nil
	}

	stats, err := r.source.Stats()
	if err != nil {
		return err
	}
	if stats == nil {
		return nil
	}

	body := contribution{
		Worker:      r.workerID,
		Hashrate1m:  stats.Hashrate1m,
		Hashrate10m: stats.Hashrate10m,
		Accepted:    stats.Accepted,
		Rejected:    stats.Rejected,
		TotalHashes: stats.Accepted * 1000, // Rough estimate
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.dashboardURL+"/api/contributions", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("dashboard returned %d", resp.StatusCode)
	}

	var result contributionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	if result.PointsAwarded != nil {
		log.Printf("Contribution reported: %s earned %d points", r.workerID, *result.PointsAwarded)
	}

	return nil
}
