package ports

import (
	"context"
	"time"

	"savings-rate-service/internal/domain/model"
)

// RateSource performs one remote lookup of the USD->INR conversion factor.
// Implementations should honour ctx; the acquirer stops waiting at its
// timeout regardless.
type RateSource interface {
	FetchRate(ctx context.Context) (float64, error)
}

type RateSourceFunc func(ctx context.Context) (float64, error)

func (f RateSourceFunc) FetchRate(ctx context.Context) (float64, error) {
	return f(ctx)
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// Recorder receives acquisition telemetry.
type Recorder interface {
	ObserveSample(source model.Source)
	ObserveRemote(outcome string, elapsed time.Duration)
	SetQuotaRemaining(remaining int)
	SetCacheAge(age time.Duration, present bool)
}

// SamplePublisher forwards acquired samples to downstream consumers.
type SamplePublisher interface {
	Publish(ctx context.Context, sample model.RateSample) error
}
