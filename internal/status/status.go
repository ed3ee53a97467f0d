// Package status classifies worker liveness from elapsed time since the
// worker's last snapshot.
package status

import "time"

// Status is a worker's liveness classification.
type Status string

const (
	Active   Status = "active"
	Inactive Status = "inactive"
	Offline  Status = "offline"
)

// Thresholds for the three liveness bands. A worker that reported within
// ActiveThreshold is active, within OfflineThreshold inactive, beyond it
// offline.
const (
	ActiveThreshold  = 60 * time.Second
	OfflineThreshold = 5 * time.Minute
)

// Classify maps the elapsed time since lastSeenAt to a liveness status.
// Elapsed times exactly on a boundary fall into the less-active band.
func Classify(lastSeenAt, now time.Time) Status {
	elapsed := now.Sub(lastSeenAt)

	switch {
	case elapsed < ActiveThreshold:
		return Active
	case elapsed < OfflineThreshold:
		return Inactive
	default:
		return Offline
	}
}

// IsActive reports whether the worker is in the active band.
func IsActive(lastSeenAt, now time.Time) bool {
	return Classify(lastSeenAt, now) == Active
}

// IsOffline reports whether the worker is in the offline band.
func IsOffline(lastSeenAt, now time.Time) bool {
	return Classify(lastSeenAt, now) == Offline
}
