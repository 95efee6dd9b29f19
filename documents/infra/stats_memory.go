package infra

import (
	"context"
	"sync"

	"document-submitter/documents/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     map[string]int64
	byGroup   map[string]map[string]int64
	lastEvent domain.StatsEvent

	trackGroups bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackGroups(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackGroups = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:   make(map[string]int64),
		byGroup: make(map[string]map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	s.lastEvent = ev
	if s.trackGroups && ev.ProductGroup != "" {
		g := s.byGroup[ev.ProductGroup]
		if g == nil {
			g = make(map[string]int64)
			s.byGroup[ev.ProductGroup] = g
		}
		g[ev.Outcome]++
	}
	return nil
}

// Total devolve uma cópia dos contadores por outcome.
func (s *MemoryStatsStore) Total() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.total)
}

func (s *MemoryStatsStore) ByGroup(group string) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byGroup[group])
}

func (s *MemoryStatsStore) Last() domain.StatsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEvent
}

func copyCounters(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
