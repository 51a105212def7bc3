package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

var baseTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MockKVStore struct {
	mu     sync.Mutex
	values map[string]string

	GetErr    error
	SetErr    error
	RemoveErr error
}

func newMockStore() *MockKVStore {
	return &MockKVStore{values: make(map[string]string)}
}

func (m *MockKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MockKVStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.values[key] = value
	return nil
}

func (m *MockKVStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	delete(m.values, key)
	return nil
}

func (m *MockKVStore) raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MockKVStore) ledger(t *testing.T) []int64 {
	t.Helper()
	raw, ok := m.raw(LedgerKey)
	if !ok {
		return nil
	}
	var stamps []int64
	if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
		t.Fatalf("Failed to decode ledger: %v", err)
	}
	return stamps
}

func (m *MockKVStore) cacheEntry(t *testing.T) model.CacheEntry {
	t.Helper()
	raw, ok := m.raw(CacheKey)
	if !ok {
		t.Fatal("Expected a cache entry")
	}
	entry, err := decodeCacheEntry(raw)
	if err != nil {
		t.Fatalf("Failed to decode cache entry: %v", err)
	}
	return entry
}

func (m *MockKVStore) seedLedger(t *testing.T, stamps []int64) {
	t.Helper()
	data, _ := json.Marshal(stamps)
	m.values[LedgerKey] = string(data)
}

func (m *MockKVStore) seedCache(t *testing.T, entry model.CacheEntry) {
	t.Helper()
	raw, err := encodeCacheEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	m.values[CacheKey] = raw
}

type countingSource struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (float64, error)
}

func (s *countingSource) FetchRate(ctx context.Context) (float64, error) {
	s.calls.Add(1)
	return s.fn(ctx)
}

func succeeding(rate float64) *countingSource {
	return &countingSource{fn: func(context.Context) (float64, error) { return rate, nil }}
}

func failing() *countingSource {
	return &countingSource{fn: func(context.Context) (float64, error) { return 0, errors.New("connection refused") }}
}

func newTestAcquirer(store ports.KVStore, source ports.RateSource, clock *fakeClock, opts ...Option) *RateAcquirer {
	opts = append([]Option{WithClock(clock), WithNoise(func() float64 { return 0.5 })}, opts...)
	return NewRateAcquirer(store, source, logger.Discard(), opts...)
}

func recentStamps(n int, now time.Time) []int64 {
	stamps := make([]int64, n)
	for i := range stamps {
		stamps[i] = now.Add(-time.Duration(i+1) * time.Second).UnixMilli()
	}
	return stamps
}

func TestRateAcquirer_FetchEndToEnd(t *testing.T) {
	store := newMockStore()
	source := succeeding(83.777)
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime})

	sample := acq.Fetch(context.Background())

	if sample.Rate != 83.78 || sample.Source != model.SourceRemote {
		t.Fatalf("Expected 83.78 remote, got %+v", sample)
	}
	if !sample.ObservedAt.Equal(baseTime) {
		t.Errorf("Expected observedAt %v, got %v", baseTime, sample.ObservedAt)
	}
	if got := len(store.ledger(t)); got != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", got)
	}

	entry := store.cacheEntry(t)
	if entry.Rate != 83.78 || entry.Origin != model.OriginRemote {
		t.Errorf("Expected cached 83.78 remote, got %+v", entry)
	}
	if !entry.ExpiresAt.Equal(baseTime.Add(DefaultCacheTTL)) {
		t.Errorf("Expected expiry at %v, got %v", baseTime.Add(DefaultCacheTTL), entry.ExpiresAt)
	}
}

func TestRateAcquirer_QuotaMonotonicity(t *testing.T) {
	testCases := []struct {
		name     string
		attempts int
		expected int
	}{
		{"No attempts", 0, 100},
		{"One attempt", 1, 99},
		{"Some attempts", 37, 63},
		{"At limit", 100, 0},
		{"Over limit floors at zero", 150, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockStore()
			store.seedLedger(t, recentStamps(tc.attempts, baseTime))
			acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

			if got := acq.RemainingQuota(context.Background()); got != tc.expected {
				t.Errorf("Expected remaining %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestRateAcquirer_QuotaCountsFailedAttempts(t *testing.T) {
	store := newMockStore()
	clock := &fakeClock{now: baseTime}
	acq := newTestAcquirer(store, failing(), clock)

	for n := 1; n <= 5; n++ {
		acq.Fetch(context.Background())
		clock.Advance(time.Second)
		if got := acq.RemainingQuota(context.Background()); got != 100-n {
			t.Errorf("After %d attempts expected remaining %d, got %d", n, 100-n, got)
		}
	}
}

func TestRateAcquirer_QuotaWindowSlides(t *testing.T) {
	store := newMockStore()
	clock := &fakeClock{now: baseTime}
	store.seedLedger(t, []int64{
		baseTime.Add(-2 * time.Hour).UnixMilli(),
		baseTime.Add(-time.Hour).UnixMilli(),
		baseTime.Add(-30 * time.Minute).UnixMilli(),
	})
	acq := newTestAcquirer(store, succeeding(83.1), clock)

	if got := acq.RemainingQuota(context.Background()); got != 99 {
		t.Fatalf("Expected stamps at or before the window edge to be ignored, remaining=%d", got)
	}
	if got := len(store.ledger(t)); got != 3 {
		t.Errorf("RemainingQuota must not rewrite the ledger, got %d entries", got)
	}

	acq.Fetch(context.Background())

	stamps := store.ledger(t)
	if len(stamps) != 2 {
		t.Fatalf("Expected pruned ledger of 2 entries, got %v", stamps)
	}
	if stamps[1] != baseTime.UnixMilli() {
		t.Errorf("Expected newest stamp to be now, got %d", stamps[1])
	}

	clock.Advance(31 * time.Minute)
	if got := acq.RemainingQuota(context.Background()); got != 99 {
		t.Errorf("Expected old attempt to age out, remaining=%d", got)
	}
}

func TestRateAcquirer_QuotaExhaustionForcesSynthetic(t *testing.T) {
	store := newMockStore()
	store.seedLedger(t, recentStamps(100, baseTime))
	store.seedCache(t, model.CacheEntry{
		Rate:       82.1,
		ProducedAt: baseTime.Add(-time.Minute),
		Origin:     model.OriginRemote,
		ExpiresAt:  baseTime.Add(59 * time.Minute),
	})
	source := succeeding(83.777)
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime})

	sample := acq.Fetch(context.Background())

	if sample.Source != model.SourceSynthetic {
		t.Fatalf("Expected synthetic sample, got %+v", sample)
	}
	if !sample.ObservedAt.Equal(baseTime) {
		t.Errorf("Expected observedAt now, got %v", sample.ObservedAt)
	}
	if source.calls.Load() != 0 {
		t.Errorf("Expected no remote call, got %d", source.calls.Load())
	}
	if got := len(store.ledger(t)); got != 100 {
		t.Errorf("Expected ledger unchanged at 100, got %d", got)
	}
	if entry := store.cacheEntry(t); entry.Origin != model.OriginSynthetic || entry.Rate != sample.Rate {
		t.Errorf("Expected synthetic rate to be cached, got %+v", entry)
	}
}

func TestRateAcquirer_CachePrecedenceOnFailure(t *testing.T) {
	producedAt := baseTime.Add(-10 * time.Minute)
	store := newMockStore()
	store.seedCache(t, model.CacheEntry{
		Rate:       82.15,
		ProducedAt: producedAt,
		Origin:     model.OriginRemote,
		ExpiresAt:  producedAt.Add(time.Hour),
	})
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	sample := acq.Fetch(context.Background())

	if sample.Source != model.SourceCached || sample.Rate != 82.15 {
		t.Fatalf("Expected cached 82.15, got %+v", sample)
	}
	if !sample.ObservedAt.Equal(producedAt) {
		t.Errorf("Expected observedAt to keep cache time %v, got %v", producedAt, sample.ObservedAt)
	}
	if got := len(store.ledger(t)); got != 1 {
		t.Errorf("Failed attempt must still count, ledger=%d", got)
	}
}

func TestRateAcquirer_CachedSyntheticReadsAsCached(t *testing.T) {
	store := newMockStore()
	store.seedCache(t, model.CacheEntry{
		Rate:       83.61,
		ProducedAt: baseTime.Add(-time.Minute),
		Origin:     model.OriginSynthetic,
		ExpiresAt:  baseTime.Add(time.Hour),
	})
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	if sample := acq.Fetch(context.Background()); sample.Source != model.SourceCached {
		t.Errorf("Expected cached source regardless of origin, got %+v", sample)
	}
}

func TestRateAcquirer_CacheExpiry(t *testing.T) {
	store := newMockStore()
	store.seedCache(t, model.CacheEntry{
		Rate:       80.01,
		ProducedAt: baseTime.Add(-2 * time.Hour),
		Origin:     model.OriginRemote,
		ExpiresAt:  baseTime.Add(-time.Hour),
	})
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	info := acq.Inspect(context.Background())
	if info.HasCache || info.CacheAge != nil || info.CacheOrigin != nil {
		t.Errorf("Expected expired entry to be absent, got %+v", info)
	}
	if _, ok := store.raw(CacheKey); !ok {
		t.Error("Inspect must not purge the expired entry")
	}

	sample := acq.Fetch(context.Background())
	if sample.Source != model.SourceSynthetic {
		t.Fatalf("Expected synthetic fallback, got %+v", sample)
	}
	if entry := store.cacheEntry(t); entry.Origin != model.OriginSynthetic || !entry.ValidAt(baseTime) {
		t.Errorf("Expected fresh synthetic entry, got %+v", entry)
	}
}

func TestRateAcquirer_ExpiryBoundaryIsExclusive(t *testing.T) {
	store := newMockStore()
	store.seedCache(t, model.CacheEntry{
		Rate:       81.5,
		ProducedAt: baseTime.Add(-time.Hour),
		Origin:     model.OriginRemote,
		ExpiresAt:  baseTime,
	})
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	if info := acq.Inspect(context.Background()); info.HasCache {
		t.Error("Entry expiring exactly now must be invalid")
	}
}

func TestRateAcquirer_CacheWriteRoundTrip(t *testing.T) {
	store := newMockStore()
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	acq.writeCache(context.Background(), 83.50, model.OriginRemote, baseTime)
	entry, ok := acq.readCache(context.Background(), baseTime, true)

	if !ok {
		t.Fatal("Expected valid entry right after write")
	}
	if entry.Rate != 83.50 || entry.Origin != model.OriginRemote {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if !entry.ProducedAt.Equal(baseTime) {
		t.Errorf("Expected producedAt %v, got %v", baseTime, entry.ProducedAt)
	}
}

func TestRateAcquirer_ForceRefreshBypassesCache(t *testing.T) {
	store := newMockStore()
	store.seedCache(t, model.CacheEntry{
		Rate:       80.00,
		ProducedAt: baseTime.Add(-time.Minute),
		Origin:     model.OriginRemote,
		ExpiresAt:  baseTime.Add(59 * time.Minute),
	})
	acq := newTestAcquirer(store, succeeding(84.123), &fakeClock{now: baseTime})

	sample := acq.ForceRefresh(context.Background())

	if sample.Source != model.SourceRemote || sample.Rate != 84.12 {
		t.Fatalf("Expected remote 84.12, got %+v", sample)
	}
	entry := store.cacheEntry(t)
	if entry.Rate != 84.12 || !entry.ProducedAt.Equal(baseTime) {
		t.Errorf("Expected cache to be overwritten, got %+v", entry)
	}
}

func TestRateAcquirer_ForceRefreshRespectsQuota(t *testing.T) {
	store := newMockStore()
	store.seedLedger(t, recentStamps(100, baseTime))
	source := succeeding(84.0)
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime})

	sample := acq.ForceRefresh(context.Background())

	if sample.Source != model.SourceSynthetic {
		t.Errorf("Expected synthetic under exhausted quota, got %+v", sample)
	}
	if source.calls.Load() != 0 {
		t.Error("Expected no remote call")
	}
}

func TestRateAcquirer_ForceRefreshWithoutCacheFallsToSynthetic(t *testing.T) {
	store := newMockStore()
	store.seedCache(t, model.CacheEntry{
		Rate:       80.00,
		ProducedAt: baseTime,
		Origin:     model.OriginRemote,
		ExpiresAt:  baseTime.Add(time.Hour),
	})
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	if sample := acq.ForceRefresh(context.Background()); sample.Source != model.SourceSynthetic {
		t.Errorf("Expected synthetic once the cache was dropped, got %+v", sample)
	}
}

func TestRateAcquirer_TimeoutFallsBack(t *testing.T) {
	store := newMockStore()
	source := &countingSource{fn: func(ctx context.Context) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime}, WithTimeout(20*time.Millisecond))

	started := time.Now()
	sample := acq.Fetch(context.Background())

	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("Expected the call to be aborted promptly, took %v", elapsed)
	}
	if sample.Source != model.SourceSynthetic {
		t.Errorf("Expected synthetic after timeout, got %+v", sample)
	}
	if got := len(store.ledger(t)); got != 1 {
		t.Errorf("Timed-out attempt must count, ledger=%d", got)
	}
}

func TestRateAcquirer_TimeoutWithSourceIgnoringContext(t *testing.T) {
	store := newMockStore()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	source := &countingSource{fn: func(ctx context.Context) (float64, error) {
		<-release
		return 83.1, nil
	}}
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime}, WithTimeout(50*time.Millisecond))

	started := time.Now()
	sample := acq.Fetch(context.Background())

	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("Expected Fetch to return at the timeout, took %v", elapsed)
	}
	if sample.Source != model.SourceSynthetic {
		t.Errorf("Expected synthetic after timeout, got %+v", sample)
	}
}

func TestRateAcquirer_MalformedRemoteValues(t *testing.T) {
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1), 0.001} {
		t.Run(fmt.Sprint(bad), func(t *testing.T) {
			store := newMockStore()
			acq := newTestAcquirer(store, succeeding(bad), &fakeClock{now: baseTime})

			if sample := acq.Fetch(context.Background()); sample.Source != model.SourceSynthetic {
				t.Errorf("Expected synthetic for %v, got %+v", bad, sample)
			}
		})
	}
}

func TestRateAcquirer_CorruptStateReadsAsEmpty(t *testing.T) {
	store := newMockStore()
	store.values[CacheKey] = "{not json"
	store.values[LedgerKey] = `"garbage"`
	acq := newTestAcquirer(store, succeeding(83.2), &fakeClock{now: baseTime})

	if got := acq.RemainingQuota(context.Background()); got != 100 {
		t.Errorf("Expected full quota, got %d", got)
	}
	if info := acq.Inspect(context.Background()); info.HasCache {
		t.Error("Expected corrupt cache to read as absent")
	}

	sample := acq.Fetch(context.Background())
	if sample.Source != model.SourceRemote || sample.Rate != 83.2 {
		t.Errorf("Expected remote 83.2, got %+v", sample)
	}
	if got := len(store.ledger(t)); got != 1 {
		t.Errorf("Expected ledger rebuilt with 1 entry, got %d", got)
	}
}

func TestRateAcquirer_PersistenceFailuresAreSwallowed(t *testing.T) {
	store := newMockStore()
	store.SetErr = errors.New("quota exceeded")
	store.RemoveErr = errors.New("read-only")
	acq := newTestAcquirer(store, succeeding(83.456), &fakeClock{now: baseTime})

	sample := acq.Fetch(context.Background())
	if sample.Source != model.SourceRemote || sample.Rate != 83.46 {
		t.Errorf("Expected remote 83.46 despite write failures, got %+v", sample)
	}

	sample = acq.ForceRefresh(context.Background())
	if sample.Source != model.SourceRemote {
		t.Errorf("Expected remote despite remove failure, got %+v", sample)
	}

	if err := acq.Clear(context.Background()); err == nil {
		t.Error("Expected Clear to report the store error")
	}
}

func TestRateAcquirer_UnreadableStoreStillServes(t *testing.T) {
	store := newMockStore()
	store.GetErr = errors.New("storage unavailable")
	acq := newTestAcquirer(store, failing(), &fakeClock{now: baseTime})

	if sample := acq.Fetch(context.Background()); sample.Source != model.SourceSynthetic || sample.Rate <= 0 {
		t.Errorf("Expected a usable synthetic rate, got %+v", sample)
	}
}

func TestRateAcquirer_Inspect(t *testing.T) {
	store := newMockStore()
	clock := &fakeClock{now: baseTime}
	source := succeeding(83.4)
	acq := newTestAcquirer(store, source, clock)

	empty := acq.Inspect(context.Background())
	if empty.HasCache || empty.RemainingQuota != 100 {
		t.Errorf("Unexpected initial inspection %+v", empty)
	}

	acq.Fetch(context.Background())
	clock.Advance(90 * time.Second)
	ledgerBefore, _ := store.raw(LedgerKey)
	cacheBefore, _ := store.raw(CacheKey)

	info := acq.Inspect(context.Background())

	if !info.HasCache || info.CacheAge == nil || *info.CacheAge != 90*time.Second {
		t.Errorf("Expected 90s old cache, got %+v", info)
	}
	if info.CacheOrigin == nil || *info.CacheOrigin != model.OriginRemote {
		t.Errorf("Expected remote origin, got %+v", info.CacheOrigin)
	}
	if info.RemainingQuota != 99 {
		t.Errorf("Expected 99 remaining, got %d", info.RemainingQuota)
	}

	ledgerAfter, _ := store.raw(LedgerKey)
	cacheAfter, _ := store.raw(CacheKey)
	if ledgerAfter != ledgerBefore || cacheAfter != cacheBefore {
		t.Error("Inspect must not mutate stored state")
	}
	if source.calls.Load() != 1 {
		t.Errorf("Inspect must not call the remote source, calls=%d", source.calls.Load())
	}
}

func TestRateAcquirer_Clear(t *testing.T) {
	store := newMockStore()
	store.seedLedger(t, recentStamps(100, baseTime))
	source := succeeding(83.9)
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime})

	acq.Fetch(context.Background())
	if err := acq.Clear(context.Background()); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	info := acq.Inspect(context.Background())
	if info.HasCache || info.RemainingQuota != 100 {
		t.Errorf("Expected pristine state, got %+v", info)
	}

	if sample := acq.Fetch(context.Background()); sample.Source != model.SourceRemote {
		t.Errorf("Expected first-call behaviour after Clear, got %+v", sample)
	}
}

func TestRateAcquirer_SingleFlightCoalesces(t *testing.T) {
	store := newMockStore()
	release := make(chan struct{})
	source := &countingSource{fn: func(ctx context.Context) (float64, error) {
		<-release
		return 83.3, nil
	}}
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime}, WithSingleFlight())

	const callers = 5
	results := make([]model.RateSample, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = acq.Fetch(context.Background())
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := source.calls.Load(); got != 1 {
		t.Errorf("Expected 1 remote call, got %d", got)
	}
	if got := len(store.ledger(t)); got != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", got)
	}
	for _, r := range results {
		if r.Source != model.SourceRemote || r.Rate != 83.3 {
			t.Errorf("Expected shared remote sample, got %+v", r)
		}
	}
}

func TestRateAcquirer_SingleFlightIgnoresCallerCancellation(t *testing.T) {
	source := &countingSource{fn: func(ctx context.Context) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 83.6, nil
	}}
	acq := newTestAcquirer(newMockStore(), source, &fakeClock{now: baseTime}, WithSingleFlight())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sample := acq.Fetch(ctx); sample.Source != model.SourceRemote || sample.Rate != 83.6 {
		t.Errorf("Expected remote sample despite cancelled caller, got %+v", sample)
	}
	if sample := acq.ForceRefresh(ctx); sample.Source != model.SourceRemote {
		t.Errorf("Expected remote refresh despite cancelled caller, got %+v", sample)
	}
}

type recordingRecorder struct {
	mu        sync.Mutex
	sources   []model.Source
	outcomes  []string
	remaining int
}

func (r *recordingRecorder) ObserveSample(s model.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
}

func (r *recordingRecorder) ObserveRemote(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingRecorder) SetQuotaRemaining(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = n
}

func (r *recordingRecorder) SetCacheAge(time.Duration, bool) {}

type MockPublisher struct {
	PublishFunc func(ctx context.Context, sample model.RateSample) error
}

func (m *MockPublisher) Publish(ctx context.Context, sample model.RateSample) error {
	return m.PublishFunc(ctx, sample)
}

func TestRateAcquirer_ReportsTelemetry(t *testing.T) {
	store := newMockStore()
	rec := &recordingRecorder{}
	var published []model.RateSample
	pub := &MockPublisher{PublishFunc: func(ctx context.Context, s model.RateSample) error {
		published = append(published, s)
		return errors.New("broker down")
	}}
	source := succeeding(83.0)
	clock := &fakeClock{now: baseTime}
	acq := newTestAcquirer(store, source, clock, WithRecorder(rec), WithPublisher(pub))

	first := acq.Fetch(context.Background())
	source.fn = func(context.Context) (float64, error) { return 0, errors.New("boom") }
	clock.Advance(time.Minute)
	second := acq.Fetch(context.Background())

	if first.Source != model.SourceRemote || second.Source != model.SourceCached {
		t.Fatalf("Unexpected sources %v, %v", first.Source, second.Source)
	}
	if len(rec.sources) != 2 || rec.sources[0] != model.SourceRemote || rec.sources[1] != model.SourceCached {
		t.Errorf("Unexpected recorded sources %v", rec.sources)
	}
	if len(rec.outcomes) != 2 || rec.outcomes[0] != "success" || rec.outcomes[1] != "error" {
		t.Errorf("Unexpected remote outcomes %v", rec.outcomes)
	}
	if rec.remaining != 98 {
		t.Errorf("Expected remaining gauge 98, got %d", rec.remaining)
	}
	if len(published) != 2 {
		t.Errorf("Expected both samples published, got %d", len(published))
	}
}

func TestRateAcquirer_CustomQuota(t *testing.T) {
	store := newMockStore()
	source := failing()
	acq := newTestAcquirer(store, source, &fakeClock{now: baseTime}, WithQuota(2, time.Minute))

	acq.Fetch(context.Background())
	acq.Fetch(context.Background())
	acq.Fetch(context.Background())

	if got := source.calls.Load(); got != 2 {
		t.Errorf("Expected 2 remote calls under a quota of 2, got %d", got)
	}
	if acq.QuotaLimit() != 2 || acq.RemainingQuota(context.Background()) != 0 {
		t.Errorf("Unexpected quota state limit=%d remaining=%d", acq.QuotaLimit(), acq.RemainingQuota(context.Background()))
	}
}
