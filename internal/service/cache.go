package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"savings-rate-service/internal/domain/model"
)

const (
	CacheKey  = "exchange-rate-cache"
	LedgerKey = "exchange-rate-requests"
)

// isoMillis matches the ISO-8601 form browsers write for Date#toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var errCorruptEntry = errors.New("corrupt cache entry")

type cacheRecord struct {
	Rate        float64 `json:"rate"`
	LastUpdated string  `json:"lastUpdated"`
	Origin      string  `json:"origin,omitempty"`
	// Source is the pre-origin field name, still present in older stores.
	Source    string `json:"source,omitempty"`
	ExpiresAt int64  `json:"expiresAt"`
}

func encodeCacheEntry(entry model.CacheEntry) (string, error) {
	data, err := json.Marshal(cacheRecord{
		Rate:        entry.Rate,
		LastUpdated: entry.ProducedAt.UTC().Format(isoMillis),
		Origin:      string(entry.Origin),
		ExpiresAt:   entry.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return string(data), nil
}

func decodeCacheEntry(raw string) (model.CacheEntry, error) {
	var rec cacheRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.CacheEntry{}, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}

	if rec.Rate <= 0 {
		return model.CacheEntry{}, fmt.Errorf("%w: non-positive rate %v", errCorruptEntry, rec.Rate)
	}

	producedAt, err := time.Parse(time.RFC3339Nano, rec.LastUpdated)
	if err != nil {
		return model.CacheEntry{}, fmt.Errorf("%w: bad lastUpdated: %v", errCorruptEntry, err)
	}

	origin := normalizeOrigin(rec.Origin, rec.Source)
	if !origin.Valid() {
		return model.CacheEntry{}, fmt.Errorf("%w: unknown origin %q", errCorruptEntry, rec.Origin+rec.Source)
	}

	return model.CacheEntry{
		Rate:       rec.Rate,
		ProducedAt: producedAt.UTC(),
		Origin:     origin,
		ExpiresAt:  time.UnixMilli(rec.ExpiresAt).UTC(),
	}, nil
}

func normalizeOrigin(origin, legacy string) model.Origin {
	if origin != "" {
		return model.Origin(origin)
	}
	switch legacy {
	case "api":
		return model.OriginRemote
	case "mock":
		return model.OriginSynthetic
	}
	return model.Origin(legacy)
}

// readCache returns the stored entry if it is still valid at now. With purge
// set, expired or unreadable entries are removed from the store.
func (a *RateAcquirer) readCache(ctx context.Context, now time.Time, purge bool) (model.CacheEntry, bool) {
	raw, found, err := a.store.Get(ctx, CacheKey)
	if err != nil {
		a.log.Warn("Failed to read cache entry", "error", err)
		return model.CacheEntry{}, false
	}
	if !found {
		a.log.Debug("Cache miss", "key", CacheKey)
		return model.CacheEntry{}, false
	}

	entry, err := decodeCacheEntry(raw)
	if err == nil && entry.ValidAt(now) {
		a.log.Debug("Cache hit", "key", CacheKey, "origin", entry.Origin)
		return entry, true
	}

	if err != nil {
		a.log.Warn("Ignoring unreadable cache entry", "error", err)
	} else {
		a.log.Debug("Cache entry expired", "key", CacheKey, "expires_at", entry.ExpiresAt)
	}

	if purge {
		if err := a.store.Remove(ctx, CacheKey); err != nil {
			a.log.Warn("Failed to purge cache entry", "error", err)
		}
	}
	return model.CacheEntry{}, false
}

// writeCache overwrites the single cache slot. Failures are logged only: the
// rate has already been computed and must still reach the caller.
func (a *RateAcquirer) writeCache(ctx context.Context, rate float64, origin model.Origin, now time.Time) {
	raw, err := encodeCacheEntry(model.CacheEntry{
		Rate:       rate,
		ProducedAt: now,
		Origin:     origin,
		ExpiresAt:  now.Add(a.ttl),
	})
	if err == nil {
		err = a.store.Set(ctx, CacheKey, raw)
	}
	if err != nil {
		a.log.Warn("Failed to cache exchange rate", "error", err, "origin", origin)
		return
	}
	a.log.Debug("Cache set", "key", CacheKey, "origin", origin, "rate", rate)
}
