package infra

import (
	"context"
	"strings"
	"sync"
	"time"

	"document-submitter/documents/domain"

	"golang.org/x/time/rate"
)

// GroupRate é o ritmo de envio de um grupo de produto: RPS envios por segundo
// com rajadas de até Burst. RPS <= 0 deixa o grupo sem espaçamento.
type GroupRate struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func (r GroupRate) limit() rate.Limit {
	if r.RPS <= 0 {
		return rate.Inf
	}
	return rate.Limit(r.RPS)
}

// PacerStore espaça envios por grupo de produto (x/time/rate), antes do PermitPool.
// Grupos sem ritmo próprio usam o padrão. Limitadores de grupos parados há mais de
// idleTTL são descartados pelo janitor e recriados no próximo envio.
//
// Não limita quantos envios estão em voo: isso é do PermitPool.
type PacerStore struct {
	mu     sync.Mutex
	groups map[string]*groupPacer

	def       GroupRate
	overrides map[string]GroupRate

	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type groupPacer struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type PacerOption func(*PacerStore)

func WithIdleTTL(d time.Duration) PacerOption {
	return func(s *PacerStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) PacerOption {
	return func(s *PacerStore) { s.cleanupEvery = d }
}

// WithGroupRate dá a um grupo de produto um ritmo diferente do padrão.
func WithGroupRate(group string, r GroupRate) PacerOption {
	return func(s *PacerStore) { s.overrides[groupKey(group)] = r }
}

// NewPacerStore cria o pacer com o ritmo padrão rps/burst para todos os grupos.
func NewPacerStore(rps float64, burst int, opts ...PacerOption) *PacerStore {
	s := &PacerStore{
		groups:       make(map[string]*groupPacer),
		def:          GroupRate{RPS: rps, Burst: burst},
		overrides:    make(map[string]GroupRate),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait implementa domain.Pacer: bloqueia até o grupo poder enviar ou ctx encerrar.
func (s *PacerStore) Wait(ctx context.Context, group string) error {
	return s.Limiter(group).Wait(ctx)
}

// RateFor devolve o ritmo efetivo do grupo.
func (s *PacerStore) RateFor(group string) GroupRate {
	if r, ok := s.overrides[groupKey(group)]; ok {
		return r
	}
	return s.def
}

// Limiter devolve o limitador do grupo, criando-o se preciso.
// Nomes de grupo são comparados sem espaços e sem diferenciar maiúsculas.
func (s *PacerStore) Limiter(group string) *rate.Limiter {
	key := groupKey(group)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gp, ok := s.groups[key]; ok {
		gp.lastSeen = now
		return gp.lim
	}

	r := s.RateFor(key)
	lim := rate.NewLimiter(r.limit(), r.Burst)
	s.groups[key] = &groupPacer{lim: lim, lastSeen: now}
	return lim
}

// Cleanup descarta limitadores parados e devolve quantos removeu.
func (s *PacerStore) Cleanup() int {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, gp := range s.groups {
		if gp.lastSeen.Before(cutoff) {
			delete(s.groups, k)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Cleanup a cada cleanupEvery até ctx encerrar.
func (s *PacerStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

func groupKey(group string) string {
	return strings.ToLower(strings.TrimSpace(group))
}

var _ domain.Pacer = (*PacerStore)(nil)
