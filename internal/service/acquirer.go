package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"golang.org/x/sync/singleflight"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

const (
	DefaultMaxPerHour = 100
	DefaultWindow     = time.Hour
	DefaultCacheTTL   = time.Hour
	DefaultTimeout    = 8 * time.Second
)

var (
	ErrMalformedRate = errors.New("malformed rate")
	ErrNoValidCache  = errors.New("no valid cache entry")
)

// RateAcquirer decides, per request, between the remote source, the cached
// rate and a synthetic one. Fetch never fails; the sample's Source tells the
// caller how far to trust the number.
type RateAcquirer struct {
	store     ports.KVStore
	source    ports.RateSource
	clock     ports.Clock
	noise     func() float64
	recorder  ports.Recorder
	publisher ports.SamplePublisher
	log       *logger.Logger

	maxPerHour int
	window     time.Duration
	ttl        time.Duration
	timeout    time.Duration
	baseline   float64

	flight *singleflight.Group
}

type Option func(*RateAcquirer)

func WithClock(clock ports.Clock) Option {
	return func(a *RateAcquirer) { a.clock = clock }
}

// WithNoise replaces the random term of the synthetic rate. f must return values in [0, 1).
func WithNoise(f func() float64) Option {
	return func(a *RateAcquirer) { a.noise = f }
}

func WithQuota(maxPerWindow int, window time.Duration) Option {
	return func(a *RateAcquirer) {
		a.maxPerHour = maxPerWindow
		a.window = window
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(a *RateAcquirer) { a.ttl = ttl }
}

func WithTimeout(d time.Duration) Option {
	return func(a *RateAcquirer) { a.timeout = d }
}

func WithBaseline(baseline float64) Option {
	return func(a *RateAcquirer) { a.baseline = baseline }
}

func WithRecorder(r ports.Recorder) Option {
	return func(a *RateAcquirer) { a.recorder = r }
}

func WithPublisher(p ports.SamplePublisher) Option {
	return func(a *RateAcquirer) { a.publisher = p }
}

// WithSingleFlight coalesces concurrent Fetch (and concurrent ForceRefresh)
// calls into a single decision shared by every waiter.
func WithSingleFlight() Option {
	return func(a *RateAcquirer) { a.flight = &singleflight.Group{} }
}

func NewRateAcquirer(store ports.KVStore, source ports.RateSource, log *logger.Logger, opts ...Option) *RateAcquirer {
	a := &RateAcquirer{
		store:      store,
		source:     source,
		clock:      ports.ClockFunc(time.Now),
		noise:      rand.Float64,
		recorder:   nopRecorder{},
		publisher:  nopPublisher{},
		log:        log,
		maxPerHour: DefaultMaxPerHour,
		window:     DefaultWindow,
		ttl:        DefaultCacheTTL,
		timeout:    DefaultTimeout,
		baseline:   DefaultBaseline,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch returns the best rate available right now. With single-flight on,
// the shared decision is detached from any one caller's cancellation.
func (a *RateAcquirer) Fetch(ctx context.Context) model.RateSample {
	if a.flight == nil {
		return a.acquire(ctx)
	}
	v, _, _ := a.flight.Do("fetch", func() (any, error) {
		return a.acquire(context.WithoutCancel(ctx)), nil
	})
	return v.(model.RateSample)
}

// ForceRefresh drops the cached rate and fetches again. The quota still applies.
func (a *RateAcquirer) ForceRefresh(ctx context.Context) model.RateSample {
	refresh := func(ctx context.Context) model.RateSample {
		if err := a.store.Remove(ctx, CacheKey); err != nil {
			a.log.Warn("Failed to invalidate cache entry", "error", err)
		}
		return a.acquire(ctx)
	}

	if a.flight == nil {
		return refresh(ctx)
	}
	v, _, _ := a.flight.Do("refresh", func() (any, error) {
		return refresh(context.WithoutCancel(ctx)), nil
	})
	return v.(model.RateSample)
}

func (a *RateAcquirer) RemainingQuota(ctx context.Context) int {
	return a.remaining(ctx, a.clock.Now())
}

func (a *RateAcquirer) QuotaLimit() int {
	return a.maxPerHour
}

func (a *RateAcquirer) remaining(ctx context.Context, now time.Time) int {
	return max(0, a.maxPerHour-a.attemptsInWindow(ctx, now))
}

// Inspect reports cache and quota health without calling the remote source
// or touching stored state.
func (a *RateAcquirer) Inspect(ctx context.Context) model.Inspection {
	now := a.clock.Now()
	info := model.Inspection{RemainingQuota: a.remaining(ctx, now)}

	entry, ok := a.readCache(ctx, now, false)
	if !ok {
		return info
	}

	age := now.Sub(entry.ProducedAt)
	origin := entry.Origin
	info.HasCache = true
	info.CacheAge = &age
	info.CacheOrigin = &origin
	return info
}

// Clear deletes the cache entry and the request ledger.
func (a *RateAcquirer) Clear(ctx context.Context) error {
	var errs []error
	if err := a.store.Remove(ctx, CacheKey); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove cache entry: %w", err))
	}
	if err := a.store.Remove(ctx, LedgerKey); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove request ledger: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.log.Info("Cleared cached rate and request ledger")
	return nil
}

type strategy struct {
	name    string
	acquire func(ctx context.Context, now time.Time) (model.RateSample, error)
}

// plan lists the strategies to try, in order, for a request at now.
func (a *RateAcquirer) plan(ctx context.Context, now time.Time) []strategy {
	synthetic := strategy{name: "synthetic", acquire: a.fromSynthetic}

	if used := a.attemptsInWindow(ctx, now); used >= a.maxPerHour {
		a.log.Warn("Rate limit reached, using synthetic exchange rate", "attempts", used, "limit", a.maxPerHour)
		return []strategy{synthetic}
	}

	return []strategy{
		{name: "remote", acquire: a.fromRemote},
		{name: "cached", acquire: a.fromCache},
		synthetic,
	}
}

func (a *RateAcquirer) acquire(ctx context.Context) model.RateSample {
	now := a.clock.Now()

	for _, s := range a.plan(ctx, now) {
		sample, err := s.acquire(ctx, now)
		if err != nil {
			a.log.Warn("Rate strategy failed", "strategy", s.name, "error", err)
			continue
		}
		a.report(ctx, sample, now)
		return sample
	}

	// synthetic is always last in the plan and cannot fail
	sample, _ := a.fromSynthetic(ctx, now)
	a.report(ctx, sample, now)
	return sample
}

func (a *RateAcquirer) fromRemote(ctx context.Context, now time.Time) (model.RateSample, error) {
	a.recordAttempt(ctx, now)

	started := time.Now()
	t := timeout.New[float64](timeout.Config{DefaultTimeout: a.timeout})
	raw, err := t.Execute(ctx, a.timeout, func(ctx context.Context) (float64, error) {
		return a.callSource(ctx)
	})
	elapsed := time.Since(started)

	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		a.recorder.ObserveRemote(outcome, elapsed)
		return model.RateSample{}, fmt.Errorf("remote fetch failed: %w", err)
	}

	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		a.recorder.ObserveRemote("malformed", elapsed)
		return model.RateSample{}, fmt.Errorf("%w: %v", ErrMalformedRate, raw)
	}

	rate := roundRate(raw)
	if rate <= 0 {
		a.recorder.ObserveRemote("malformed", elapsed)
		return model.RateSample{}, fmt.Errorf("%w: %v rounds to zero", ErrMalformedRate, raw)
	}
	a.recorder.ObserveRemote("success", elapsed)

	a.writeCache(ctx, rate, model.OriginRemote, now)
	a.log.Info("Fetched exchange rate from remote source", "rate", rate, "elapsed", elapsed)

	return model.RateSample{Rate: rate, ObservedAt: now, Source: model.SourceRemote}, nil
}

type sourceResult struct {
	rate float64
	err  error
}

// callSource returns as soon as ctx is done, even if the source ignores ctx.
// The abandoned call finishes in the background.
func (a *RateAcquirer) callSource(ctx context.Context) (float64, error) {
	done := make(chan sourceResult, 1)
	go func() {
		rate, err := a.source.FetchRate(ctx)
		done <- sourceResult{rate: rate, err: err}
	}()

	select {
	case res := <-done:
		return res.rate, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (a *RateAcquirer) fromCache(ctx context.Context, now time.Time) (model.RateSample, error) {
	entry, ok := a.readCache(ctx, now, true)
	if !ok {
		return model.RateSample{}, ErrNoValidCache
	}
	a.log.Info("Serving cached exchange rate", "rate", entry.Rate, "origin", entry.Origin)
	return model.RateSample{Rate: entry.Rate, ObservedAt: entry.ProducedAt, Source: model.SourceCached}, nil
}

func (a *RateAcquirer) fromSynthetic(ctx context.Context, now time.Time) (model.RateSample, error) {
	rate := syntheticRate(a.baseline, now, a.noise())
	a.writeCache(ctx, rate, model.OriginSynthetic, now)
	a.log.Info("Using synthetic exchange rate", "rate", rate)
	return model.RateSample{Rate: rate, ObservedAt: now, Source: model.SourceSynthetic}, nil
}

func (a *RateAcquirer) report(ctx context.Context, sample model.RateSample, now time.Time) {
	a.recorder.ObserveSample(sample.Source)
	a.recorder.SetQuotaRemaining(a.remaining(ctx, now))

	if err := a.publisher.Publish(ctx, sample); err != nil {
		a.log.Warn("Failed to publish rate sample", "error", err, "source", sample.Source)
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveSample(model.Source) {}
func (nopRecorder) ObserveRemote(string, time.Duration) {}
func (nopRecorder) SetQuotaRemaining(int) {}
func (nopRecorder) SetCacheAge(time.Duration, bool) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.RateSample) error { return nil }

var _ ports.RateAcquirer = (*RateAcquirer)(nil)
