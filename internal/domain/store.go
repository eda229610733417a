package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetManyByID(ctx context.Context, ids []string) (map[string]Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	ListArchivable(ctx context.Context, resolvedBefore time.Time, limit int) ([]Market, error)
	MarkHistoryArchived(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// PricePointStore persists market price history.
type PricePointStore interface {
	InsertBatch(ctx context.Context, points []PricePoint) error
	ListRange(ctx context.Context, marketID string, from, to time.Time, limit int) ([]PricePoint, error)
	LastTimestamp(ctx context.Context, marketID string) (time.Time, error)
	DeleteByMarket(ctx context.Context, marketID string) (int64, error)
}
