package status

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    Status
	}{
		{"JustReported", 0, Active},
		{"ThirtySeconds", 30 * time.Second, Active},
		{"JustUnderActiveBoundary", ActiveThreshold - time.Millisecond, Active},
		{"ExactlyOneMinute", ActiveThreshold, Inactive},
		{"NinetySeconds", 90 * time.Second, Inactive},
		{"JustUnderOfflineBoundary", OfflineThreshold - time.Millisecond, Inactive},
		{"ExactlyFiveMinutes", OfflineThreshold, Offline},
		{"TenMinutes", 10 * time.Minute, Offline},
		{"Days", 72 * time.Hour, Offline},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(now.Add(-tc.elapsed), now)
			if got != tc.want {
				t.Errorf("Classify(now-%v) = %s, want %s", tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	now := time.Now()

	if !IsActive(now.Add(-10*time.Second), now) {
		t.Error("expected worker seen 10s ago to be active")
	}
	if IsActive(now.Add(-2*time.Minute), now) {
		t.Error("expected worker seen 2m ago to not be active")
	}
	if !IsOffline(now.Add(-20*time.Minute), now) {
		t.Error("expected worker seen 20m ago to be offline")
	}
	if IsOffline(now.Add(-2*time.Minute), now) {
		t.Error("expected worker seen 2m ago to not be offline")
	}
}
