package infra

import (
	"container/list"
	"context"
	"sync"
	"time"

	"document-submitter/documents/domain"

	"github.com/pkg/errors"
)

// PermitPool é um semáforo de contagem com recarga periódica.
//
// A cada `period` o número de permissões disponíveis volta a ser `capacity`,
// independente de quantas ainda não foram devolvidas. Isso aproxima "no máximo N
// envios por período" com janelas fixas: rajadas na virada do período podem
// passar do limite de uma janela deslizante real.
//
// Todas as mutações de `available` acontecem sob mu.
type PermitPool struct {
	mu        sync.Mutex
	capacity  int
	available int
	period    time.Duration
	waiters   list.List // de *waiter, em ordem de chegada
	closed    bool

	onRefill func(available int)

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type waiter struct {
	ready chan struct{}
	// err é escrito sob mu antes de fechar ready.
	err error
}

type PermitPoolOption func(*PermitPool)

// WithRefillHook registra uma função chamada depois de cada recarga do timer,
// com as permissões que sobraram depois de atender a fila.
func WithRefillHook(fn func(available int)) PermitPoolOption {
	return func(p *PermitPool) { p.onRefill = fn }
}

// NewPermitPool cria o pool cheio e inicia a goroutine de recarga.
// A primeira recarga acontece um período completo depois da criação.
// Pare com Close.
func NewPermitPool(limit int, period time.Duration, opts ...PermitPoolOption) (*PermitPool, error) {
	if limit < 1 {
		return nil, errors.Errorf("limit must be >= 1, got %d", limit)
	}
	if period <= 0 {
		return nil, errors.Errorf("period must be > 0, got %s", period)
	}

	p := &PermitPool{
		capacity:  limit,
		available: limit,
		period:    period,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.refillLoop()
	return p, nil
}

func (p *PermitPool) Capacity() int         { return p.capacity }
func (p *PermitPool) Period() time.Duration { return p.period }

func (p *PermitPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Waiting devolve quantos chamadores estão bloqueados em Acquire.
func (p *PermitPool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Len()
}

// Acquire bloqueia até obter uma permissão, até ctx encerrar ou até o pool fechar.
// Quem chega não passa na frente de quem já está na fila.
// Em caso de erro nenhuma permissão foi consumida.
func (p *PermitPool) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ErrPoolClosed
	}
	if p.available > 0 && p.waiters.Len() == 0 {
		p.available--
		p.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		p.mu.Lock()
		select {
		case <-w.ready:
			// recebeu a permissão junto com o cancelamento: devolve.
			if w.err == nil {
				p.releaseLocked()
			}
		default:
			p.waiters.Remove(elem)
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Release devolve uma permissão. Nunca passa de capacity.
// Só deve ser chamado depois de um Acquire bem sucedido.
func (p *PermitPool) Release() {
	p.mu.Lock()
	p.releaseLocked()
	p.mu.Unlock()
}

// Refill define available = capacity (não soma) e acorda quem está na fila.
func (p *PermitPool) Refill() {
	p.refill()
}

func (p *PermitPool) refill() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = p.capacity
	p.grantLocked()
	return p.available
}

// Close para a recarga e rejeita com domain.ErrPoolClosed tanto quem está na
// fila quanto Acquires futuros. Pode ser chamado mais de uma vez.
func (p *PermitPool) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done

		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		for e := p.waiters.Front(); e != nil; e = e.Next() {
			w := e.Value.(*waiter)
			w.err = domain.ErrPoolClosed
			close(w.ready)
		}
		p.waiters.Init()
	})
	return nil
}

func (p *PermitPool) releaseLocked() {
	if p.available < p.capacity {
		p.available++
	}
	p.grantLocked()
}

// grantLocked entrega permissões livres aos primeiros da fila.
func (p *PermitPool) grantLocked() {
	for p.available > 0 {
		front := p.waiters.Front()
		if front == nil {
			return
		}
		w := p.waiters.Remove(front).(*waiter)
		p.available--
		close(w.ready)
	}
}

func (p *PermitPool) refillLoop() {
	t := time.NewTicker(p.period)
	defer close(p.done)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			available := p.refill()
			if p.onRefill != nil {
				p.onRefill(available)
			}
		}
	}
}

var _ domain.PermitPool = (*PermitPool)(nil)
