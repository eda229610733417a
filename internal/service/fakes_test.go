package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarketStore struct {
	mu       sync.Mutex
	markets  map[string]domain.Market
	getCalls int
	archived []string
}

func newFakeMarketStore(ms ...domain.Market) *fakeMarketStore {
	s := &fakeMarketStore{markets: map[string]domain.Market{}}
	for _, m := range ms {
		s.markets[m.ID] = m
	}
	return s
}

func (s *fakeMarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *fakeMarketStore) UpsertBatch(ctx context.Context, ms []domain.Market) error {
	for _, m := range ms {
		_ = s.Upsert(ctx, m)
	}
	return nil
}

func (s *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) GetManyByID(_ context.Context, ids []string) (map[string]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.Market{}
	for _, id := range ids {
		if m, ok := s.markets[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (s *fakeMarketStore) ListActive(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeMarketStore) ListArchivable(_ context.Context, before time.Time, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.HistoryArchived && m.ResolutionTime != nil && m.ResolutionTime.Before(before) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMarketStore) MarkHistoryArchived(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.HistoryArchived = true
	s.markets[id] = m
	s.archived = append(s.archived, id)
	return nil
}

func (s *fakeMarketStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type fakeCache struct {
	mu          sync.Mutex
	items       map[string]domain.Market
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{items: map[string]domain.Market{}} }

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[m.ID] = m
	return nil
}

func (c *fakeCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.items[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu   sync.Mutex
	sent []published
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, published{channel, payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type fakePointStore struct {
	mu     sync.Mutex
	points map[string][]domain.PricePoint
}

func newFakePointStore() *fakePointStore {
	return &fakePointStore{points: map[string][]domain.PricePoint{}}
}

func (s *fakePointStore) InsertBatch(_ context.Context, ps []domain.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.points[p.MarketID] = append(s.points[p.MarketID], p)
	}
	return nil
}

func (s *fakePointStore) ListRange(_ context.Context, id string, from, to time.Time, _ int) ([]domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PricePoint
	for _, p := range s.points[id] {
		if !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePointStore) LastTimestamp(_ context.Context, id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.points[id]
	if len(ps) == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	return ps[len(ps)-1].Timestamp, nil
}

func (s *fakePointStore) DeleteByMarket(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.points[id])
	delete(s.points, id)
	return int64(n), nil
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]domain.PricePoint
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: map[string][]domain.PricePoint{}}
}

func (a *fakeArchive) Write(_ context.Context, id string, ps []domain.PricePoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[id] = append([]domain.PricePoint(nil), ps...)
	return nil
}

func (a *fakeArchive) Read(_ context.Context, id string, from, to time.Time) ([]domain.PricePoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ps, ok := a.objects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var out []domain.PricePoint
	for _, p := range ps {
		if !p.Timestamp.Before(from) && (to.IsZero() || !p.Timestamp.After(to)) {
			out = append(out, p)
		}
	}
	return out, nil
}
