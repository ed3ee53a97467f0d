package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camarigor/pool-hq/internal/status"
	"github.com/camarigor/pool-hq/internal/storage"
)

const leaderboardLimit = 100

// contributionRequest is the POST /api/contributions body. Hashrate fields
// are pointers so a missing field is distinguishable from an explicit zero;
// share counters default to zero when absent.
type contributionRequest struct {
	Worker      string   `json:"worker"`
	Hashrate1m  *float64 `json:"hashrate1m"`
	Hashrate10m *float64 `json:"hashrate10m"`
	Accepted    int64    `json:"accepted"`
	Rejected    int64    `json:"rejected"`
	TotalHashes int64    `json:"totalHashes"`
}

type contributionResponse struct {
	Success       bool   `json:"success"`
	SnapshotID    int64  `json:"snapshotId"`
	PointsAwarded *int64 `json:"pointsAwarded,omitempty"`
	Message       string `json:"message"`
}

// WorkerView is a worker summary with its derived liveness status.
type WorkerView struct {
	Worker        string        `json:"worker"`
	Status        status.Status `json:"status"`
	Hashrate1m    float64       `json:"hashrate1m"`
	Hashrate10m   float64       `json:"hashrate10m"`
	TotalAccepted int64         `json:"totalAccepted"`
	TotalRejected int64         `json:"totalRejected"`
	TotalPoints   int64         `json:"totalPoints"`
	LastSeenAt    time.Time     `json:"lastSeenAt"`
}

// WorkerDetailView is the per-worker detail response.
type WorkerDetailView struct {
	Worker          string                 `json:"worker"`
	Status          status.Status          `json:"status"`
	CurrentHashrate float64                `json:"currentHashrate"`
	TotalAccepted   int64                  `json:"totalAccepted"`
	TotalRejected   int64                  `json:"totalRejected"`
	TotalPoints     int64                  `json:"totalPoints"`
	LastSeenAt      time.Time              `json:"lastSeenAt"`
	RecentSnapshots []*storage.Snapshot    `json:"recentSnapshots"`
	RecentPoints    []*storage.LedgerEntry `json:"recentPoints"`
}

// handlePostContribution records one worker snapshot and derives a points
// award from the accepted-share delta.
// POST /api/contributions
func (s *Server) handlePostContribution(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientKey(r)) {
		s.errorResponse(w, http.StatusTooManyRequests,
			"Rate limit exceeded", "Too many requests. Please try again later.")
		return
	}

	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Validation error", "Invalid JSON body")
		return
	}

	if req.Worker == "" {
		s.errorResponse(w, http.StatusBadRequest, "Validation error", "Worker ID is required")
		return
	}
	if req.Hashrate1m == nil || req.Hashrate10m == nil {
		s.errorResponse(w, http.StatusBadRequest, "Validation error", "Hashrate data is required")
		return
	}
	if *req.Hashrate1m < 0 || *req.Hashrate10m < 0 ||
		req.Accepted < 0 || req.Rejected < 0 || req.TotalHashes < 0 {
		s.errorResponse(w, http.StatusBadRequest, "Validation error", "Negative values are not allowed")
		return
	}

	snap := &storage.Snapshot{
		Worker:      req.Worker,
		Hashrate1m:  *req.Hashrate1m,
		Hashrate10m: *req.Hashrate10m,
		Accepted:    req.Accepted,
		Rejected:    req.Rejected,
		TotalHashes: req.TotalHashes,
	}

	award, err := s.storage.RecordContribution(snap)
	if err != nil {
		log.Printf("Error recording contribution: %v", err)
		s.errorResponse(w, http.StatusInternalServerError,
			"Internal server error", "Failed to record contribution")
		return
	}

	s.hub.Broadcast(Message{Type: "snapshot", Data: snap})

	resp := contributionResponse{
		Success:    true,
		SnapshotID: snap.ID,
		Message:    "Contribution recorded successfully",
	}
	if award != nil {
		resp.PointsAwarded = &award.Points
		resp.Message = fmt.Sprintf("Contribution recorded. Earned %d points!", award.Points)
		s.hub.Broadcast(Message{Type: "points", Data: map[string]interface{}{
			"worker": snap.Worker,
			"points": award.Points,
			"reason": award.Reason,
		}})
	}

	s.jsonResponse(w, http.StatusCreated, resp)
}

// handleGetWorkers returns every worker's newest snapshot, lifetime totals
// and liveness status, ordered by most recently seen.
// GET /api/workers
func (s *Server) handleGetWorkers(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.storage.ListWorkers()
	if err != nil {
		log.Printf("Error fetching workers: %v", err)
		s.errorResponse(w, http.StatusInternalServerError,
			"Internal server error", "Failed to fetch workers")
		return
	}

	now := time.Now()
	workers := make([]WorkerView, 0, len(summaries))
	for _, sum := range summaries {
		workers = append(workers, WorkerView{
			Worker:        sum.Worker,
			Status:        status.Classify(sum.LastSeenAt, now),
			Hashrate1m:    sum.Hashrate1m,
			Hashrate10m:   sum.Hashrate10m,
			TotalAccepted: sum.TotalAccepted,
			TotalRejected: sum.TotalRejected,
			TotalPoints:   sum.TotalPoints,
			LastSeenAt:    sum.LastSeenAt,
		})
	}

	w.Header().Set("Cache-Control", "public, s-maxage=5, stale-while-revalidate=10")
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"workers":   workers,
		"timestamp": now.UTC(),
	})
}

// handleGetWorkerDetail returns detailed statistics for one worker.
// GET /api/workers/{workerID}
func (s *Server) handleGetWorkerDetail(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")

	detail, err := s.storage.GetWorkerDetail(workerID)
	if errors.Is(err, storage.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "Not found", "Worker not found")
		return
	}
	if err != nil {
		log.Printf("Error fetching worker details: %v", err)
		s.errorResponse(w, http.StatusInternalServerError,
			"Internal server error", "Failed to fetch worker details")
		return
	}

	view := WorkerDetailView{
		Worker:          detail.Worker,
		Status:          status.Classify(detail.LastSeenAt, time.Now()),
		CurrentHashrate: detail.CurrentHashrate,
		TotalAccepted:   detail.TotalAccepted,
		TotalRejected:   detail.TotalRejected,
		TotalPoints:     detail.TotalPoints,
		LastSeenAt:      detail.LastSeenAt,
		RecentSnapshots: detail.RecentSnapshots,
		RecentPoints:    detail.RecentPoints,
	}

	w.Header().Set("Cache-Control", "public, s-maxage=5, stale-while-revalidate=10")
	s.jsonResponse(w, http.StatusOK, view)
}

// handleGetLeaderboard returns the ranked list of workers with positive
// lifetime points.
// GET /api/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	leaderboard, err := s.storage.GetLeaderboard(leaderboardLimit)
	if err != nil {
		log.Printf("Error fetching leaderboard: %v", err)
		s.errorResponse(w, http.StatusInternalServerError,
			"Internal server error", "Failed to fetch leaderboard")
		return
	}

	if leaderboard == nil {
		leaderboard = []*storage.LeaderboardEntry{}
	}

	w.Header().Set("Cache-Control", "public, s-maxage=10, stale-while-revalidate=30")
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"leaderboard": leaderboard,
		"timestamp":   time.Now().UTC(),
	})
}

// PoolStats aggregates the fleet by liveness band.
type PoolStats struct {
	TotalWorkers    int     `json:"totalWorkers"`
	ActiveWorkers   int     `json:"activeWorkers"`
	InactiveWorkers int     `json:"inactiveWorkers"`
	OfflineWorkers  int     `json:"offlineWorkers"`
	TotalHashrate   float64 `json:"totalHashrate"` // Sum of active workers' 10m hashrate
}

// handleGetStats returns pool aggregate stats
// GET /api/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.storage.ListWorkers()
	if err != nil {
		log.Printf("Error fetching stats: %v", err)
		s.errorResponse(w, http.StatusInternalServerError,
			"Internal server error", "Failed to fetch stats")
		return
	}

	now := time.Now()
	var stats PoolStats
	stats.TotalWorkers = len(summaries)
	for _, sum := range summaries {
		switch status.Classify(sum.LastSeenAt, now) {
		case status.Active:
			stats.ActiveWorkers++
			stats.TotalHashrate += sum.Hashrate10m
		case status.Inactive:
			stats.InactiveWorkers++
		default:
			stats.OfflineWorkers++
		}
	}

	w.Header().Set("Cache-Control", "public, s-maxage=5, stale-while-revalidate=10")
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleCronSnapshot pulls every worker from the mining proxy and ingests a
// snapshot for each, gated by the shared cron secret.
// POST /api/cron/snapshot
func (s *Server) handleCronSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CronSecret == "" || r.Header.Get("Authorization") != "Bearer "+s.cfg.CronSecret {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized", "Invalid cron secret")
		return
	}

	if s.collector == nil {
		s.errorResponse(w, http.StatusServiceUnavailable,
			"Proxy not configured", "No upstream proxy is configured")
		return
	}

	result, err := s.collector.CollectOnce(r.Context())
	if err != nil {
		log.Printf("Error in cron snapshot job: %v", err)
		s.errorResponse(w, http.StatusInternalServerError,
			"Snapshot job failed", err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// clientKey extracts the rate-limit key from the request. RealIP middleware
// has already folded X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// jsonResponse writes v as JSON with the given status code
func (s *Server) jsonResponse(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// errorResponse writes the standard error JSON shape
func (s *Server) errorResponse(w http.ResponseWriter, code int, errKind, message string) {
	s.jsonResponse(w, code, map[string]string{
		"error":   errKind,
		"message": message,
	})
}
