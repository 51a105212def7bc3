package service

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseline = 83.5

	dailyAmplitude  = 0.3
	hourlyAmplitude = 0.2
	noiseAmplitude  = 0.2
)

// syntheticRate composes a plausible stand-in rate: baseline, a slow daily
// wave, a faster hourly wave and bounded noise. noise must be in [0, 1); the
// result stays within baseline +/- 0.7.
func syntheticRate(baseline float64, now time.Time, noise float64) float64 {
	noise = math.Min(math.Max(noise, 0), 1)

	ms := float64(now.UnixMilli())
	daily := math.Sin(ms/float64(24*time.Hour/time.Millisecond)) * dailyAmplitude
	hourly := math.Sin(ms/float64(time.Hour/time.Millisecond)) * hourlyAmplitude
	jitter := (noise - 0.5) * 2 * noiseAmplitude

	return roundRate(baseline + daily + hourly + jitter)
}

func roundRate(rate float64) float64 {
	return decimal.NewFromFloat(rate).Round(2).InexactFloat64()
}
