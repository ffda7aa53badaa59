package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// In-memory store stubs backing the service tests. Each is a map under a
// mutex; lookups return domain.ErrNotFound like the real stores.

type stubStreamStore struct {
	mu      sync.Mutex
	streams map[domain.ID]domain.Stream
}

func newStubStreamStore() *stubStreamStore {
	return &stubStreamStore{streams: make(map[domain.ID]domain.Stream)}
}

func (s *stubStreamStore) Create(ctx context.Context, st domain.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[st.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.streams[st.ID] = st
	return nil
}

func (s *stubStreamStore) Update(ctx context.Context, st domain.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[st.ID]; !ok {
		return domain.ErrNotFound
	}
	s.streams[st.ID] = st
	return nil
}

func (s *stubStreamStore) GetByID(ctx context.Context, id domain.ID) (domain.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return domain.Stream{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *stubStreamStore) ListByHost(ctx context.Context, host domain.ID, opts domain.ListOpts) ([]domain.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stream
	for _, st := range s.streams {
		if st.Host == host {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *stubStreamStore) ListTerminal(ctx context.Context, endedBefore int64, opts domain.ListOpts) ([]domain.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stream
	for _, st := range s.streams {
		if st.Status.Terminal() && st.EndTime != nil && *st.EndTime < endedBefore {
			out = append(out, st)
		}
	}
	return out, nil
}

type stubDonorStore struct {
	mu     sync.Mutex
	donors map[domain.ID]domain.DonorAccount
}

func newStubDonorStore() *stubDonorStore {
	return &stubDonorStore{donors: make(map[domain.ID]domain.DonorAccount)}
}

func (s *stubDonorStore) Create(ctx context.Context, d domain.DonorAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donors[d.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.donors[d.ID] = d
	return nil
}

func (s *stubDonorStore) Update(ctx context.Context, d domain.DonorAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donors[d.ID]; !ok {
		return domain.ErrNotFound
	}
	s.donors[d.ID] = d
	return nil
}

func (s *stubDonorStore) GetByID(ctx context.Context, id domain.ID) (domain.DonorAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donors[id]
	if !ok {
		return domain.DonorAccount{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *stubDonorStore) ListByStream(ctx context.Context, stream domain.ID, opts domain.ListOpts) ([]domain.DonorAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DonorAccount
	for _, d := range s.donors {
		if d.Stream == stream {
			out = append(out, d)
		}
	}
	return out, nil
}

type stubMarketStore struct {
	mu      sync.Mutex
	markets map[domain.ID]domain.BettingMarket
}

func newStubMarketStore() *stubMarketStore {
	return &stubMarketStore{markets: make(map[domain.ID]domain.BettingMarket)}
}

func cloneMarket(m domain.BettingMarket) domain.BettingMarket {
	out := m
	out.Outcomes = append([]domain.MarketOutcome(nil), m.Outcomes...)
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		out.WinningOutcome = &w
	}
	return out
}

func (s *stubMarketStore) Create(ctx context.Context, m domain.BettingMarket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *stubMarketStore) Update(ctx context.Context, m domain.BettingMarket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *stubMarketStore) GetByID(ctx context.Context, id domain.ID) (domain.BettingMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.BettingMarket{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (s *stubMarketStore) GetByStream(ctx context.Context, stream domain.ID) (domain.BettingMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.Stream == stream {
			return cloneMarket(m), nil
		}
	}
	return domain.BettingMarket{}, domain.ErrNotFound
}

type stubPositionStore struct {
	mu        sync.Mutex
	positions map[domain.ID]domain.BettorPosition
}

func newStubPositionStore() *stubPositionStore {
	return &stubPositionStore{positions: make(map[domain.ID]domain.BettorPosition)}
}

func clonePosition(p domain.BettorPosition) domain.BettorPosition {
	out := p
	out.Positions = append([]domain.OutcomePosition(nil), p.Positions...)
	return out
}

func (s *stubPositionStore) Create(ctx context.Context, p domain.BettorPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[p.ID] = clonePosition(p)
	return nil
}

func (s *stubPositionStore) Update(ctx context.Context, p domain.BettorPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.positions[p.ID] = clonePosition(p)
	return nil
}

func (s *stubPositionStore) GetByID(ctx context.Context, id domain.ID) (domain.BettorPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.BettorPosition{}, domain.ErrNotFound
	}
	return clonePosition(p), nil
}

func (s *stubPositionStore) ListByMarket(ctx context.Context, market domain.ID, opts domain.ListOpts) ([]domain.BettorPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BettorPosition
	for _, p := range s.positions {
		if p.Market == market {
			out = append(out, clonePosition(p))
		}
	}
	return out, nil
}

type stubResolutionStore struct {
	mu          sync.Mutex
	resolutions map[domain.ID]domain.MarketResolution
}

func newStubResolutionStore() *stubResolutionStore {
	return &stubResolutionStore{resolutions: make(map[domain.ID]domain.MarketResolution)}
}

func (s *stubResolutionStore) Create(ctx context.Context, r domain.MarketResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolutions[r.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.resolutions[r.ID] = r
	return nil
}

func (s *stubResolutionStore) Update(ctx context.Context, r domain.MarketResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolutions[r.ID]; !ok {
		return domain.ErrNotFound
	}
	s.resolutions[r.ID] = r
	return nil
}

func (s *stubResolutionStore) GetByMarket(ctx context.Context, market domain.ID) (domain.MarketResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resolutions {
		if r.Market == market {
			return r, nil
		}
	}
	return domain.MarketResolution{}, domain.ErrNotFound
}

func (s *stubResolutionStore) GetByRequestID(ctx context.Context, requestID string) (domain.MarketResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resolutions {
		if r.RequestID == requestID {
			return r, nil
		}
	}
	return domain.MarketResolution{}, domain.ErrNotFound
}

type stubAuditStore struct {
	mu     sync.Mutex
	events []domain.Event
}

func newStubAuditStore() *stubAuditStore {
	return &stubAuditStore{}
}

func (s *stubAuditStore) Log(ctx context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *stubAuditStore) ListByStream(ctx context.Context, stream domain.ID, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.events {
		if e.Stream == stream {
			out = append(out, domain.AuditEntry{Event: e})
		}
	}
	return out, nil
}

func (s *stubAuditStore) ListByMarket(ctx context.Context, market domain.ID, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.events {
		if e.Market == market {
			out = append(out, domain.AuditEntry{Event: e})
		}
	}
	return out, nil
}

func (s *stubAuditStore) DeleteByStream(ctx context.Context, stream domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	for _, e := range s.events {
		if e.Stream != stream {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

// testLogger returns a quiet logger for the service tests.
func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// actorID builds a deterministic identity from a label.
func actorID(label string) domain.ID {
	var id domain.ID
	copy(id[:], label)
	return id
}
