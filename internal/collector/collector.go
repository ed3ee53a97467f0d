package collector

import (
	"context"
	"log"
	"time"

	"github.com/camarigor/pool-hq/internal/storage"
)

// Result summarizes one collection pass over the proxy's workers.
type Result struct {
	Success          bool      `json:"success"`
	SnapshotsCreated int       `json:"snapshotsCreated"`
	PointsAwarded    int64     `json:"pointsAwarded"`
	WorkersProcessed int       `json:"workersProcessed"`
	Timestamp        time.Time `json:"timestamp"`
}

// Collector pulls every worker's counters from the mining proxy and records
// them through the same ingest path as direct reports. On this path
// totalHashes is computed as accepted+rejected; direct reports store the
// client-supplied figure. The two are deliberately not reconciled.
type Collector struct {
	storage *storage.SQLiteStorage
	client  *ProxyClient

	// SnapshotChan carries ingested snapshots for live broadcast. Sends are
	// non-blocking; slow consumers miss events.
	SnapshotChan chan *storage.Snapshot
}

// NewCollector creates a Collector over the given store and proxy client.
func NewCollector(store *storage.SQLiteStorage, client *ProxyClient) *Collector {
	return &Collector{
		storage:      store,
		client:       client,
		SnapshotChan: make(chan *storage.Snapshot, 100),
	}
}

// CollectOnce fetches the proxy's workers and ingests one snapshot per
// worker. Per-worker failures are logged and skipped so one bad row cannot
// abort the whole pass.
func (c *Collector) CollectOnce(ctx context.Context) (*Result, error) {
	workers, err := c.client.FetchWorkers(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Success:          true,
		WorkersProcessed: len(workers),
		Timestamp:        time.Now().UTC(),
	}

	for workerID, w := range workers {
		snap := &storage.Snapshot{
			Worker:      workerID,
			Hashrate1m:  hashrateAt(w.Hashrate.Total, 1),
			Hashrate10m: hashrateAt(w.Hashrate.Total, 2),
			Accepted:    w.Accepted,
			Rejected:    w.Rejected,
			TotalHashes: w.Accepted + w.Rejected,
		}

		award, err := c.storage.RecordContribution(snap)
		if err != nil {
			log.Printf("Collect %s failed: %v", workerID, err)
			continue
		}
		result.SnapshotsCreated++
		if award != nil {
			result.PointsAwarded += award.Points
		}

		select {
		case c.SnapshotChan <- snap:
		default:
		}
	}

	return result, nil
}
