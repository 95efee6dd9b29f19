package domain

import (
	"context"
	"time"
)

const (
	OutcomeAccepted = "accepted"
	// SuccessStatus é o único status HTTP tratado como sucesso.
	SuccessStatus = 200
)

// StatsEvent representa o resultado de uma tentativa de envio.
//
// Observação: cuidado com cardinalidade ao indexar por ProductGroup em bases
// como Redis/Prometheus.
type StatsEvent struct {
	ID           string
	Outcome      string // OutcomeAccepted ou Kind.String()
	StatusCode   int
	ProductGroup string

	// Wait é o tempo esperando permissão; Duration é o tempo total da chamada.
	Wait     time.Duration
	Duration time.Duration

	At time.Time
}

// Outcome converte o erro de um envio no rótulo usado em estatísticas e métricas.
func Outcome(err error) string {
	if err == nil {
		return OutcomeAccepted
	}
	return KindOf(err).String()
}

// StatsStore é a estratégia de persistência para estatísticas de envio.
//
// Implementações podem armazenar em Redis, memória, etc.
// O serviço trata erro como best-effort (não derruba o envio).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
