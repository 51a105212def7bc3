package service

import (
	"context"
	"encoding/json"
	"time"
)

// loadLedger returns the recorded attempt timestamps in epoch milliseconds.
// Absent or corrupt ledgers read as empty.
func (a *RateAcquirer) loadLedger(ctx context.Context) []int64 {
	raw, found, err := a.store.Get(ctx, LedgerKey)
	if err != nil {
		a.log.Warn("Failed to read request ledger", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var stamps []int64
	if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
		a.log.Warn("Ignoring unreadable request ledger", "error", err)
		return nil
	}
	return stamps
}

// withinWindow keeps the stamps newer than now-window. The input is not modified.
func withinWindow(stamps []int64, now time.Time, window time.Duration) []int64 {
	cutoff := now.Add(-window).UnixMilli()
	recent := make([]int64, 0, len(stamps))
	for _, ts := range stamps {
		if ts > cutoff {
			recent = append(recent, ts)
		}
	}
	return recent
}

func (a *RateAcquirer) attemptsInWindow(ctx context.Context, now time.Time) int {
	return len(withinWindow(a.loadLedger(ctx), now, a.window))
}

// recordAttempt appends now and writes back the pruned ledger.
func (a *RateAcquirer) recordAttempt(ctx context.Context, now time.Time) {
	stamps := append(a.loadLedger(ctx), now.UnixMilli())
	stamps = withinWindow(stamps, now, a.window)

	data, err := json.Marshal(stamps)
	if err == nil {
		err = a.store.Set(ctx, LedgerKey, string(data))
	}
	if err != nil {
		a.log.Warn("Failed to record remote attempt", "error", err)
	}
}
