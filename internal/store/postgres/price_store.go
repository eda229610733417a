package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// PricePointStore implements domain.PricePointStore using PostgreSQL.
type PricePointStore struct {
	db DB
}

// NewPricePointStore creates a PricePointStore backed by the given pool.
func NewPricePointStore(db DB) *PricePointStore {
	return &PricePointStore{db: db}
}

// InsertBatch stores price points, ignoring samples already present.
func (s *PricePointStore) InsertBatch(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	const query = `
		INSERT INTO price_points (market_id, ts, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id, ts) DO NOTHING`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query, p.MarketID, p.Timestamp, p.Price)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert price point batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRange returns the market's points with from <= ts <= to in time
// order. A non-positive limit returns every point in the range.
func (s *PricePointStore) ListRange(ctx context.Context, marketID string, from, to time.Time, limit int) ([]domain.PricePoint, error) {
	query := `SELECT ts, price FROM price_points
		WHERE market_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts`
	args := []any{marketID, from, to}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price points %s: %w", marketID, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		p := domain.PricePoint{MarketID: marketID}
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("postgres: scan price point %s: %w", marketID, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list price points %s rows: %w", marketID, err)
	}
	return points, nil
}

// LastTimestamp returns the newest stored sample time for the market, or
// domain.ErrNotFound when it has none.
func (s *PricePointStore) LastTimestamp(ctx context.Context, marketID string) (time.Time, error) {
	var ts *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT MAX(ts) FROM price_points WHERE market_id = $1`, marketID,
	).Scan(&ts)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("postgres: last price point %s: %w", marketID, err)
	}
	if ts == nil {
		return time.Time{}, domain.ErrNotFound
	}
	return *ts, nil
}

// DeleteByMarket removes all points of a market and reports how many went.
func (s *PricePointStore) DeleteByMarket(ctx context.Context, marketID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM price_points WHERE market_id = $1`, marketID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete price points %s: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.PricePointStore = (*PricePointStore)(nil)
