package storage

import "time"

// Snapshot is one immutable report of a worker's cumulative share counters
// and instantaneous hashrates. Accepted/rejected are cumulative totals as
// reported by the worker's own process, not deltas.
type Snapshot struct {
	ID          int64     `json:"id"`
	Worker      string    `json:"worker"`
	Timestamp   time.Time `json:"ts"`
	Hashrate1m  float64   `json:"hashrate1m"`
	Hashrate10m float64   `json:"hashrate10m"`
	Accepted    int64     `json:"accepted"`
	Rejected    int64     `json:"rejected"`
	TotalHashes int64     `json:"totalHashes"`
}

// LedgerEntry is one immutable points award derived from a positive
// accepted-share delta between consecutive snapshots.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	Worker    string    `json:"worker"`
	Timestamp time.Time `json:"ts"`
	Points    int64     `json:"points"`
	Reason    string    `json:"reason"`
}

// WorkerSummary joins a worker's newest snapshot with its lifetime share
// maxima and ledger point sum.
type WorkerSummary struct {
	Worker        string    `json:"worker"`
	LastSeenAt    time.Time `json:"lastSeenAt"`
	Hashrate1m    float64   `json:"hashrate1m"`
	Hashrate10m   float64   `json:"hashrate10m"`
	TotalAccepted int64     `json:"totalAccepted"`
	TotalRejected int64     `json:"totalRejected"`
	TotalPoints   int64     `json:"totalPoints"`
}

// WorkerDetail is the full per-worker read shape: summary plus recent
// snapshot and points history, newest first.
type WorkerDetail struct {
	Worker          string         `json:"worker"`
	LastSeenAt      time.Time      `json:"lastSeenAt"`
	CurrentHashrate float64        `json:"currentHashrate"`
	TotalAccepted   int64          `json:"totalAccepted"`
	TotalRejected   int64          `json:"totalRejected"`
	TotalPoints     int64          `json:"totalPoints"`
	RecentSnapshots []*Snapshot    `json:"recentSnapshots"`
	RecentPoints    []*LedgerEntry `json:"recentPoints"`
}

// LeaderboardEntry is a ranked row over workers with positive point totals.
type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	Worker           string  `json:"worker"`
	TotalPoints      int64   `json:"totalPoints"`
	TotalHashes      int64   `json:"totalHashes"`
	AverageHashrate  float64 `json:"averageHashrate"`
	UptimePercentage float64 `json:"uptimePercentage"`
}
