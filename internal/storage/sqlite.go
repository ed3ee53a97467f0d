package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/camarigor/pool-hq/internal/points"
)

// ErrNotFound is returned by read queries for a worker that has never
// submitted a snapshot.
var ErrNotFound = errors.New("worker not found")

// SQLiteStorage provides SQLite-based storage for worker snapshots and the
// points ledger. Both tables are append-only; nothing is ever updated or
// deleted.
type SQLiteStorage struct {
	db *sql.DB
}

const timeFormat = "2006-01-02 15:04:05"

// parseTimestamp parses a timestamp string from SQLite in multiple formats.
// All timestamps are stored in UTC.
func parseTimestamp(s string) time.Time {
	// Try RFC3339 first (modernc/sqlite driver converts DATETIME columns to this format)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// Fallback to simple format (stored as UTC)
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// NewSQLiteStorage opens a SQLite database at the given path,
// runs migrations, and enables WAL mode
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit to single connection to avoid SQLite locking issues. This also
	// serializes the ingest transaction, so two concurrent submissions for
	// the same worker cannot both diff against the same prior snapshot.
	db.SetMaxOpenConns(1)

	// Set busy timeout to 5 seconds to handle concurrent writes
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate creates the necessary tables and indexes
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS worker_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker TEXT NOT NULL,
		ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		hashrate_1m REAL NOT NULL DEFAULT 0,
		hashrate_10m REAL NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		total_hashes INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_worker_snapshots_worker ON worker_snapshots(worker);
	CREATE INDEX IF NOT EXISTS idx_worker_snapshots_ts ON worker_snapshots(ts);
	CREATE INDEX IF NOT EXISTS idx_worker_snapshots_worker_ts ON worker_snapshots(worker, ts);

	CREATE TABLE IF NOT EXISTS points_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker TEXT NOT NULL,
		ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		points INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_points_ledger_worker ON points_ledger(worker);
	CREATE INDEX IF NOT EXISTS idx_points_ledger_ts ON points_ledger(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// RecordContribution inserts a snapshot stamped with the current ingest time
// and derives a points award against the worker's immediately preceding
// snapshot, all inside one transaction. The snapshot insert and the prior
// read are atomic, so a delta can never be consumed twice by racing
// submissions.
//
// A failure in the points derivation does not fail the ingest: the snapshot
// still commits and the award degrades to nil. The report itself is worth
// more than the reward bookkeeping.
func (s *SQLiteStorage) RecordContribution(snap *Snapshot) (*points.Award, error) {
	now := time.Now().UTC()
	snap.Timestamp = now

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO worker_snapshots (worker, ts, hashrate_1m, hashrate_10m, accepted, rejected, total_hashes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Worker, now.Format(timeFormat),
		snap.Hashrate1m, snap.Hashrate10m,
		snap.Accepted, snap.Rejected, snap.TotalHashes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	snap.ID = id

	award, err := s.awardInTx(tx, snap)
	if err != nil {
		// Best-effort secondary effect: keep the snapshot, drop the award.
		log.Printf("Points derivation for %s failed: %v", snap.Worker, err)
		award = nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit contribution: %w", err)
	}

	return award, nil
}

// awardInTx fetches the snapshot immediately preceding the one just written
// and appends a ledger entry when the accepted delta is strictly positive.
func (s *SQLiteStorage) awardInTx(tx *sql.Tx, snap *Snapshot) (*points.Award, error) {
	var prevAccepted int64
	err := tx.QueryRow(`
		SELECT accepted FROM worker_snapshots
		WHERE worker = ? AND id < ?
		ORDER BY ts DESC, id DESC
		LIMIT 1`,
		snap.Worker, snap.ID,
	).Scan(&prevAccepted)
	if err == sql.ErrNoRows {
		// First-ever snapshot for this worker: no baseline, no award.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch previous snapshot: %w", err)
	}

	award := points.Evaluate(&prevAccepted, snap.Accepted)
	if award == nil {
		return nil, nil
	}

	_, err = tx.Exec(`
		INSERT INTO points_ledger (worker, ts, points, reason)
		VALUES (?, ?, ?, ?)`,
		snap.Worker, snap.Timestamp.Format(timeFormat), award.Points, award.Reason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return award, nil
}

// GetSnapshots retrieves snapshots for a worker since a given time, newest first
func (s *SQLiteStorage) GetSnapshots(worker string, since time.Time, limit int) ([]*Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, worker, ts, hashrate_1m, hashrate_10m, accepted, rejected, total_hashes
		FROM worker_snapshots
		WHERE worker = ? AND ts >= ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`,
		worker, since.UTC().Format(timeFormat), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*Snapshot
	for rows.Next() {
		snap := &Snapshot{}
		var ts string
		err := rows.Scan(&snap.ID, &snap.Worker, &ts,
			&snap.Hashrate1m, &snap.Hashrate10m,
			&snap.Accepted, &snap.Rejected, &snap.TotalHashes)
		if err != nil {
			return nil, err
		}
		snap.Timestamp = parseTimestamp(ts)
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// GetLedgerEntries retrieves the most recent ledger entries for a worker, newest first
func (s *SQLiteStorage) GetLedgerEntries(worker string, limit int) ([]*LedgerEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, worker, ts, points, reason
		FROM points_ledger
		WHERE worker = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`,
		worker, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		e := &LedgerEntry{}
		var ts string
		if err := rows.Scan(&e.ID, &e.Worker, &ts, &e.Points, &e.Reason); err != nil {
			return nil, err
		}
		e.Timestamp = parseTimestamp(ts)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetTotalPoints returns the fold over the ledger for a worker. The ledger
// sum is the only definition of a worker's total points.
func (s *SQLiteStorage) GetTotalPoints(worker string) (int64, error) {
	var total int64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(points), 0) FROM points_ledger WHERE worker = ?`,
		worker,
	).Scan(&total)
	return total, err
}

// ListWorkers returns every distinct worker's newest snapshot joined with
// its lifetime accepted/rejected maxima and ledger point sum, ordered by
// newest-snapshot time descending.
func (s *SQLiteStorage) ListWorkers() ([]*WorkerSummary, error) {
	rows, err := s.db.Query(`
		WITH latest AS (
			SELECT worker, MAX(id) AS snap_id
			FROM worker_snapshots
			GROUP BY worker
		),
		totals AS (
			SELECT worker, MAX(accepted) AS total_accepted, MAX(rejected) AS total_rejected
			FROM worker_snapshots
			GROUP BY worker
		),
		worker_points AS (
			SELECT worker, COALESCE(SUM(points), 0) AS total_points
			FROM points_ledger
			GROUP BY worker
		)
		SELECT s.worker, s.ts, s.hashrate_1m, s.hashrate_10m,
		       t.total_accepted, t.total_rejected,
		       COALESCE(wp.total_points, 0)
		FROM latest l
		JOIN worker_snapshots s ON s.id = l.snap_id
		JOIN totals t ON t.worker = s.worker
		LEFT JOIN worker_points wp ON wp.worker = s.worker
		ORDER BY s.ts DESC, s.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []*WorkerSummary
	for rows.Next() {
		w := &WorkerSummary{}
		var ts string
		err := rows.Scan(&w.Worker, &ts, &w.Hashrate1m, &w.Hashrate10m,
			&w.TotalAccepted, &w.TotalRejected, &w.TotalPoints)
		if err != nil {
			return nil, err
		}
		w.LastSeenAt = parseTimestamp(ts)
		workers = append(workers, w)
	}

	return workers, rows.Err()
}

// GetWorkerDetail returns the full detail shape for one worker: latest
// snapshot, lifetime maxima, point sum, up to the last 100 snapshots in a
// trailing 24 hour window and the last 50 ledger entries.
// Returns ErrNotFound when the worker has never submitted a snapshot.
func (s *SQLiteStorage) GetWorkerDetail(worker string) (*WorkerDetail, error) {
	d := &WorkerDetail{Worker: worker}

	var ts string
	err := s.db.QueryRow(`
		SELECT ts, hashrate_1m
		FROM worker_snapshots
		WHERE worker = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1`,
		worker,
	).Scan(&ts, &d.CurrentHashrate)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.LastSeenAt = parseTimestamp(ts)

	err = s.db.QueryRow(`
		SELECT MAX(accepted), MAX(rejected)
		FROM worker_snapshots
		WHERE worker = ?`,
		worker,
	).Scan(&d.TotalAccepted, &d.TotalRejected)
	if err != nil {
		return nil, err
	}

	if d.TotalPoints, err = s.GetTotalPoints(worker); err != nil {
		return nil, err
	}

	since := time.Now().Add(-24 * time.Hour)
	if d.RecentSnapshots, err = s.GetSnapshots(worker, since, 100); err != nil {
		return nil, err
	}

	if d.RecentPoints, err = s.GetLedgerEntries(worker, 50); err != nil {
		return nil, err
	}

	return d, nil
}

// GetLeaderboard ranks workers with a positive lifetime point sum by total
// points descending, capped at limit entries. Uptime percentage is observed
// snapshot count over the count expected from one report every 300 seconds
// across the worker's observed span (first to last snapshot), as a
// percentage rounded to two decimals.
func (s *SQLiteStorage) GetLeaderboard(limit int) ([]*LeaderboardEntry, error) {
	rows, err := s.db.Query(`
		WITH worker_points AS (
			SELECT worker, COALESCE(SUM(points), 0) AS total_points
			FROM points_ledger
			GROUP BY worker
		),
		worker_hashes AS (
			SELECT worker,
			       MAX(total_hashes) AS total_hashes,
			       AVG(hashrate_10m) AS avg_hashrate,
			       COUNT(*) AS snapshot_count,
			       CAST(strftime('%s', MAX(ts)) AS INTEGER) - CAST(strftime('%s', MIN(ts)) AS INTEGER) AS span_seconds
			FROM worker_snapshots
			GROUP BY worker
		)
		SELECT wp.worker, wp.total_points,
		       COALESCE(wh.total_hashes, 0),
		       COALESCE(wh.avg_hashrate, 0),
		       CASE WHEN COALESCE(wh.span_seconds, 0) > 0
		            THEN ROUND(wh.snapshot_count * 100.0 / (wh.span_seconds / 300.0), 2)
		            ELSE 0
		       END AS uptime_percentage
		FROM worker_points wp
		LEFT JOIN worker_hashes wh ON wh.worker = wp.worker
		WHERE wp.total_points > 0
		ORDER BY wp.total_points DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaderboard []*LeaderboardEntry
	for rows.Next() {
		e := &LeaderboardEntry{}
		err := rows.Scan(&e.Worker, &e.TotalPoints, &e.TotalHashes,
			&e.AverageHashrate, &e.UptimePercentage)
		if err != nil {
			return nil, err
		}
		e.Rank = len(leaderboard) + 1
		leaderboard = append(leaderboard, e)
	}

	return leaderboard, rows.Err()
}

// Vacuum compacts the database file
func (s *SQLiteStorage) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	if err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
