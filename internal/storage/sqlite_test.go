package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "poolhq-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	storage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		storage.Close()
		os.RemoveAll(tmpDir)
	}

	return storage, cleanup
}

// insertSnapshotAt writes a snapshot row with an explicit timestamp, for
// tests that need history spread over time.
func insertSnapshotAt(t *testing.T, s *SQLiteStorage, worker string, ts time.Time, accepted int64, hashrate10m float64) {
	t.Helper()

	_, err := s.db.Exec(`
		INSERT INTO worker_snapshots (worker, ts, hashrate_1m, hashrate_10m, accepted, rejected, total_hashes)
		VALUES (?, ?, ?, ?, ?, 0, 0)`,
		worker, ts.UTC().Format(timeFormat), hashrate10m, hashrate10m, accepted,
	)
	if err != nil {
		t.Fatalf("failed to insert snapshot: %v", err)
	}
}

func record(t *testing.T, s *SQLiteStorage, worker string, accepted int64) *Snapshot {
	t.Helper()

	snap := &Snapshot{
		Worker:      worker,
		Hashrate1m:  1200,
		Hashrate10m: 1150,
		Accepted:    accepted,
		Rejected:    1,
		TotalHashes: accepted * 1000,
	}
	if _, err := s.RecordContribution(snap); err != nil {
		t.Fatalf("failed to record contribution: %v", err)
	}
	return snap
}

func TestRecordContribution(t *testing.T) {
	t.Run("FirstSnapshotAwardsNothing", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		snap := &Snapshot{Worker: "rig-01", Hashrate1m: 1000, Hashrate10m: 900, Accepted: 50}
		award, err := storage.RecordContribution(snap)
		if err != nil {
			t.Fatalf("failed to record contribution: %v", err)
		}

		if award != nil {
			t.Errorf("expected no award for first snapshot, got %d points", award.Points)
		}
		if snap.ID == 0 {
			t.Error("expected snapshot ID to be assigned")
		}
		if snap.Timestamp.IsZero() {
			t.Error("expected snapshot timestamp to be stamped")
		}

		entries, err := storage.GetLedgerEntries("rig-01", 10)
		if err != nil {
			t.Fatalf("failed to get ledger entries: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty ledger, got %d entries", len(entries))
		}
	})

	t.Run("PositiveDeltaAppendsLedgerEntry", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		record(t, storage, "rig-01", 50)

		snap := &Snapshot{Worker: "rig-01", Accepted: 57}
		award, err := storage.RecordContribution(snap)
		if err != nil {
			t.Fatalf("failed to record contribution: %v", err)
		}

		if award == nil {
			t.Fatal("expected an award for a positive delta")
		}
		if award.Points != 7 {
			t.Errorf("expected 7 points, got %d", award.Points)
		}

		entries, err := storage.GetLedgerEntries("rig-01", 10)
		if err != nil {
			t.Fatalf("failed to get ledger entries: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 ledger entry, got %d", len(entries))
		}
		if entries[0].Points != 7 {
			t.Errorf("expected 7 points in ledger, got %d", entries[0].Points)
		}
		if entries[0].Reason != "Accepted 7 shares" {
			t.Errorf("unexpected reason: %q", entries[0].Reason)
		}
	})

	t.Run("FlatAndDecreasingCountsAwardNothing", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		record(t, storage, "rig-01", 50)

		for _, accepted := range []int64{50, 3} {
			award, err := storage.RecordContribution(&Snapshot{Worker: "rig-01", Accepted: accepted})
			if err != nil {
				t.Fatalf("failed to record contribution: %v", err)
			}
			if award != nil {
				t.Errorf("accepted=%d: expected no award, got %d points", accepted, award.Points)
			}
		}

		entries, err := storage.GetLedgerEntries("rig-01", 10)
		if err != nil {
			t.Fatalf("failed to get ledger entries: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty ledger, got %d entries", len(entries))
		}
	})

	t.Run("TotalPointsIsLedgerSum", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		// Deltas: baseline, +5, reset, +5 from the reset baseline, flat.
		for _, accepted := range []int64{10, 15, 2, 7, 7} {
			record(t, storage, "rig-01", accepted)
		}

		total, err := storage.GetTotalPoints("rig-01")
		if err != nil {
			t.Fatalf("failed to get total points: %v", err)
		}
		if total != 10 {
			t.Errorf("expected 10 total points, got %d", total)
		}
	})

	t.Run("WorkersDoNotShareBaselines", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		record(t, storage, "rig-01", 100)

		// A different worker's first snapshot must not diff against rig-01.
		award, err := storage.RecordContribution(&Snapshot{Worker: "rig-02", Accepted: 500})
		if err != nil {
			t.Fatalf("failed to record contribution: %v", err)
		}
		if award != nil {
			t.Errorf("expected no award for rig-02's first snapshot, got %d points", award.Points)
		}
	})
}

func TestListWorkers(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()

	record(t, storage, "rig-01", 10)
	record(t, storage, "rig-01", 15)
	record(t, storage, "rig-02", 3)

	workers, err := storage.ListWorkers()
	if err != nil {
		t.Fatalf("failed to list workers: %v", err)
	}

	if len(workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(workers))
	}

	byName := map[string]*WorkerSummary{}
	for _, w := range workers {
		byName[w.Worker] = w
	}

	rig1, ok := byName["rig-01"]
	if !ok {
		t.Fatal("rig-01 missing from listing")
	}
	if rig1.TotalAccepted != 15 {
		t.Errorf("expected lifetime accepted 15, got %d", rig1.TotalAccepted)
	}
	if rig1.TotalPoints != 5 {
		t.Errorf("expected 5 points, got %d", rig1.TotalPoints)
	}
	if rig1.LastSeenAt.IsZero() {
		t.Error("expected last seen timestamp to be set")
	}

	rig2, ok := byName["rig-02"]
	if !ok {
		t.Fatal("rig-02 missing from listing")
	}
	if rig2.TotalPoints != 0 {
		t.Errorf("expected 0 points for rig-02, got %d", rig2.TotalPoints)
	}
}

func TestGetWorkerDetail(t *testing.T) {
	t.Run("UnknownWorker", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		_, err := storage.GetWorkerDetail("ghost")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("KnownWorker", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		record(t, storage, "rig-01", 10)
		record(t, storage, "rig-01", 18)

		detail, err := storage.GetWorkerDetail("rig-01")
		if err != nil {
			t.Fatalf("failed to get worker detail: %v", err)
		}

		if detail.Worker != "rig-01" {
			t.Errorf("expected worker rig-01, got %s", detail.Worker)
		}
		if detail.TotalAccepted != 18 {
			t.Errorf("expected lifetime accepted 18, got %d", detail.TotalAccepted)
		}
		if detail.TotalPoints != 8 {
			t.Errorf("expected 8 points, got %d", detail.TotalPoints)
		}
		if len(detail.RecentSnapshots) != 2 {
			t.Errorf("expected 2 recent snapshots, got %d", len(detail.RecentSnapshots))
		}
		if len(detail.RecentPoints) != 1 {
			t.Errorf("expected 1 recent ledger entry, got %d", len(detail.RecentPoints))
		}
	})

	t.Run("SnapshotWindowExcludesOldHistory", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		insertSnapshotAt(t, storage, "rig-01", time.Now().Add(-48*time.Hour), 5, 1000)
		record(t, storage, "rig-01", 10)

		detail, err := storage.GetWorkerDetail("rig-01")
		if err != nil {
			t.Fatalf("failed to get worker detail: %v", err)
		}

		if len(detail.RecentSnapshots) != 1 {
			t.Errorf("expected 1 snapshot inside the 24h window, got %d", len(detail.RecentSnapshots))
		}
	})
}

func TestGetLeaderboard(t *testing.T) {
	t.Run("RanksByPointsAndExcludesZero", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		record(t, storage, "low", 10)
		record(t, storage, "low", 13)
		record(t, storage, "high", 10)
		record(t, storage, "high", 60)
		record(t, storage, "idle", 10) // baseline only, no points

		board, err := storage.GetLeaderboard(100)
		if err != nil {
			t.Fatalf("failed to get leaderboard: %v", err)
		}

		if len(board) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(board))
		}
		if board[0].Worker != "high" || board[0].TotalPoints != 50 || board[0].Rank != 1 {
			t.Errorf("unexpected first entry: %+v", board[0])
		}
		if board[1].Worker != "low" || board[1].TotalPoints != 3 || board[1].Rank != 2 {
			t.Errorf("unexpected second entry: %+v", board[1])
		}
	})

	t.Run("LimitCapsEntries", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		for _, worker := range []string{"a", "b", "c"} {
			record(t, storage, worker, 10)
			record(t, storage, worker, 20)
		}

		board, err := storage.GetLeaderboard(2)
		if err != nil {
			t.Fatalf("failed to get leaderboard: %v", err)
		}
		if len(board) != 2 {
			t.Errorf("expected 2 entries with limit 2, got %d", len(board))
		}
	})

	t.Run("UptimeFromObservedSpan", func(t *testing.T) {
		storage, cleanup := setupTestDB(t)
		defer cleanup()

		// 4 snapshots over 1500 seconds: 5 expected at one per 300s, so 80%.
		base := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
		accepted := int64(10)
		for i := 0; i < 4; i++ {
			insertSnapshotAt(t, storage, "rig-01", base.Add(time.Duration(i)*500*time.Second), accepted, 1000)
			accepted += 5
		}
		// The ledger sum must be positive for the worker to rank at all.
		if _, err := storage.db.Exec(`
			INSERT INTO points_ledger (worker, ts, points, reason)
			VALUES ('rig-01', ?, 15, 'Accepted 15 shares')`,
			base.UTC().Format(timeFormat),
		); err != nil {
			t.Fatalf("failed to seed ledger: %v", err)
		}

		board, err := storage.GetLeaderboard(10)
		if err != nil {
			t.Fatalf("failed to get leaderboard: %v", err)
		}
		if len(board) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(board))
		}
		if board[0].UptimePercentage != 80.0 {
			t.Errorf("expected 80%% uptime, got %v", board[0].UptimePercentage)
		}
	})
}

func TestGetSnapshots(t *testing.T) {
	storage, cleanup := setupTestDB(t)
	defer cleanup()

	record(t, storage, "rig-01", 10)
	record(t, storage, "rig-01", 20)
	record(t, storage, "rig-01", 30)

	snaps, err := storage.GetSnapshots("rig-01", time.Now().Add(-time.Hour), 2)
	if err != nil {
		t.Fatalf("failed to get snapshots: %v", err)
	}

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots with limit 2, got %d", len(snaps))
	}
	// Newest first.
	if snaps[0].Accepted != 30 || snaps[1].Accepted != 20 {
		t.Errorf("expected newest-first ordering, got accepted %d then %d",
			snaps[0].Accepted, snaps[1].Accepted)
	}
}
