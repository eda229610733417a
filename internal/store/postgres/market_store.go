package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	db DB
}

// NewMarketStore creates a new MarketStore backed by the given pool.
func NewMarketStore(db DB) *MarketStore {
	return &MarketStore{db: db}
}

// history_archived is owned by the archiver and never overwritten by sync.
const upsertMarketSQL = `
	INSERT INTO markets (
		id, question, slug, outcome_1, outcome_2,
		token_id_1, token_id_2, status,
		created_at, close_time, resolution_time, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question        = EXCLUDED.question,
		slug            = EXCLUDED.slug,
		outcome_1       = EXCLUDED.outcome_1,
		outcome_2       = EXCLUDED.outcome_2,
		token_id_1      = EXCLUDED.token_id_1,
		token_id_2      = EXCLUDED.token_id_2,
		status          = EXCLUDED.status,
		created_at      = EXCLUDED.created_at,
		close_time      = EXCLUDED.close_time,
		resolution_time = EXCLUDED.resolution_time,
		updated_at      = NOW()`

func upsertArgs(m domain.Market) []any {
	return []any{
		m.ID, m.Question, m.Slug,
		m.Outcomes[0], m.Outcomes[1],
		m.TokenIDs[0], m.TokenIDs[1],
		string(m.Status),
		m.CreatedAt, m.CloseTime, m.ResolutionTime,
	}
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if _, err := s.db.Exec(ctx, upsertMarketSQL, upsertArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketSQL, upsertArgs(m)...)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `id, question, slug, outcome_1, outcome_2,
	token_id_1, token_id_2, status,
	created_at, close_time, resolution_time, history_archived, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug,
		&m.Outcomes[0], &m.Outcomes[1],
		&m.TokenIDs[0], &m.TokenIDs[1],
		&status,
		&m.CreatedAt, &m.CloseTime, &m.ResolutionTime,
		&m.HistoryArchived, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return markets, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetManyByID returns the stored markets among ids, keyed by id. Missing ids
// are simply absent from the result.
func (s *MarketStore) GetManyByID(ctx context.Context, ids []string) (map[string]domain.Market, error) {
	out := make(map[string]domain.Market, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get markets by id: %w", err)
	}
	markets, err := collectMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets by id: %w", err)
	}
	for _, m := range markets {
		out[m.ID] = m
	}
	return out, nil
}

// ListActive returns active markets with pagination and optional creation
// time filtering.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	markets, err := collectMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active markets: %w", err)
	}
	return markets, nil
}

// ListArchivable returns resolved markets whose history is still in the
// database and whose resolution happened before the cutoff.
func (s *MarketStore) ListArchivable(ctx context.Context, resolvedBefore time.Time, limit int) ([]domain.Market, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE history_archived = FALSE
		   AND resolution_time IS NOT NULL
		   AND resolution_time < $1
		 ORDER BY resolution_time
		 LIMIT $2`,
		resolvedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list archivable markets: %w", err)
	}
	markets, err := collectMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan archivable markets: %w", err)
	}
	return markets, nil
}

// MarkHistoryArchived flags a market's price history as living in cold storage.
func (s *MarketStore) MarkHistoryArchived(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE markets SET history_archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark market %s archived: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark market %s archived: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
