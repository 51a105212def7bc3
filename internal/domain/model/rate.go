package model

import (
	"fmt"
	"time"

	"savings-rate-service/pkg/utils"
)

type CurrencyPair struct {
	BaseCurrency   Currency `json:"base_currency"`
	TargetCurrency Currency `json:"target_currency"`
}

func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s-%s", p.BaseCurrency, p.TargetCurrency)
}

// Source tells the host how trustworthy a RateSample is.
type Source string

const (
	SourceRemote    Source = "remote"
	SourceCached    Source = "cached"
	SourceSynthetic Source = "synthetic"
)

func (s Source) Description() string {
	switch s {
	case SourceRemote:
		return "Live exchange rate from API"
	case SourceCached:
		return "Cached exchange rate data"
	case SourceSynthetic:
		return "Simulated rate (API unavailable)"
	default:
		return "Unknown data source"
	}
}

type RateSample struct {
	Rate       float64   `json:"rate"`
	ObservedAt time.Time `json:"observed_at"`
	Source     Source    `json:"source"`
}

// Origin is where a cached rate came from. Reading it back always yields
// SourceCached, whatever the origin.
type Origin string

const (
	OriginRemote    Origin = "remote"
	OriginSynthetic Origin = "synthetic"
)

func (o Origin) Valid() bool {
	return o == OriginRemote || o == OriginSynthetic
}

type CacheEntry struct {
	Rate       float64
	ProducedAt time.Time
	Origin     Origin
	ExpiresAt  time.Time
}

// ValidAt reports whether the entry may still be served at now.
func (e CacheEntry) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Inspection is the read-only health view polled by the debug inspector.
type Inspection struct {
	HasCache       bool           `json:"has_cache"`
	CacheAge       *time.Duration `json:"cache_age,omitempty"`
	CacheOrigin    *Origin        `json:"cache_origin,omitempty"`
	RemainingQuota int            `json:"remaining_quota"`
}

// InspectionReport is the wire form of an Inspection shared by the HTTP API
// and ratectl: age in milliseconds plus a "1h 2m 3s" rendering.
type InspectionReport struct {
	HasCache       bool    `json:"has_cache"`
	CacheAgeMillis *int64  `json:"cache_age_ms,omitempty"`
	CacheAge       string  `json:"cache_age,omitempty"`
	CacheOrigin    *Origin `json:"cache_origin,omitempty"`
	RemainingQuota int     `json:"remaining_quota"`
	QuotaLimit     int     `json:"quota_limit"`
}

func NewInspectionReport(info Inspection, limit int) InspectionReport {
	report := InspectionReport{
		HasCache:       info.HasCache,
		CacheOrigin:    info.CacheOrigin,
		RemainingQuota: info.RemainingQuota,
		QuotaLimit:     limit,
	}
	if info.CacheAge != nil {
		ms := info.CacheAge.Milliseconds()
		report.CacheAgeMillis = &ms
		report.CacheAge = utils.FormatAge(*info.CacheAge)
	}
	return report
}
