package ports

import (
	"context"

	"savings-rate-service/internal/domain/model"
)

type RateAcquirer interface {
	Fetch(ctx context.Context) model.RateSample
	ForceRefresh(ctx context.Context) model.RateSample
	RemainingQuota(ctx context.Context) int
	QuotaLimit() int
	Inspect(ctx context.Context) model.Inspection
	Clear(ctx context.Context) error
}
