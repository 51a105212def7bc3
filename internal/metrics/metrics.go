package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RateSamplesTotal        *prometheus.CounterVec
	RemoteAttemptsTotal     *prometheus.CounterVec
	RemoteRequestDuration   prometheus.Histogram
	QuotaRemaining          prometheus.Gauge
	CacheAgeSeconds         prometheus.Gauge
	InspectionRequestsTotal prometheus.Counter
}

var _ ports.Recorder = (*Metrics)(nil)

// NewMetrics registers collectors on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		RateSamplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_samples_total",
				Help: "Exchange rate samples returned, by source",
			},
			[]string{"source"},
		),

		RemoteAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_remote_attempts_total",
				Help: "Remote exchange rate lookups, by outcome",
			},
			[]string{"outcome"},
		),

		RemoteRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rate_remote_duration_seconds",
				Help:    "Remote exchange rate lookup duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
		),

		QuotaRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_quota_remaining",
				Help: "Remote lookups left in the trailing quota window",
			},
		),

		CacheAgeSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_cache_age_seconds",
				Help: "Age of the cached exchange rate, -1 when nothing valid is cached",
			},
		),

		InspectionRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_inspections_total",
				Help: "Total number of inspect requests",
			},
		),
	}
}

func (m *Metrics) ObserveSample(source model.Source) {
	m.RateSamplesTotal.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) ObserveRemote(outcome string, elapsed time.Duration) {
	m.RemoteAttemptsTotal.WithLabelValues(outcome).Inc()
	m.RemoteRequestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SetQuotaRemaining(remaining int) {
	m.QuotaRemaining.Set(float64(remaining))
}

func (m *Metrics) SetCacheAge(age time.Duration, present bool) {
	if !present {
		m.CacheAgeSeconds.Set(-1)
		return
	}
	m.CacheAgeSeconds.Set(age.Seconds())
}
