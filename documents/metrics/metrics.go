// Package metrics expõe os coletores prometheus do envio de documentos.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa os coletores de um Client. Cada Client tem os seus: dois clients
// no mesmo processo não dividem gauges.
//
// Todos os métodos aceitam receiver nil (sem métricas).
type Metrics struct {
	// Counter: envios por resultado (accepted, bad_status, transport, ...)
	SubmissionsTotal *prometheus.CounterVec
	// Histogram: tempo esperando permissão
	PermitWaitDuration prometheus.Histogram
	// Histogram: duração do POST
	SendDuration prometheus.Histogram
	// Gauge: envios entre Acquire e Release
	InFlight prometheus.Gauge
	Refills  prometheus.Counter

	factory promauto.Factory
}

// New cria os coletores e os registra em reg. Com reg nil nada é registrado.
//
// Para mais de um Client no mesmo registry, diferencie com
// prometheus.WrapRegistererWith(prometheus.Labels{"client": ...}, reg).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		SubmissionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_submissions_total",
				Help: "Total document submissions by outcome",
			},
			[]string{"outcome"},
		),
		PermitWaitDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "documents_permit_wait_seconds",
				Help:    "Time spent waiting for a submission permit",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		SendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "documents_send_duration_seconds",
				Help:    "Duration of the outbound create document call",
				Buckets: prometheus.DefBuckets,
			},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "documents_in_flight",
				Help: "Number of submissions currently holding a permit",
			},
		),
		Refills: f.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_permit_refills_total",
				Help: "Total periodic permit pool refills",
			},
		),
	}
	m.factory = f
	return m
}

// TrackAvailable registra o gauge de permissões livres, lido de available a cada coleta.
// Chame uma vez por Metrics.
func (m *Metrics) TrackAvailable(available func() int) {
	if m == nil {
		return
	}
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "documents_permits_available",
			Help: "Permits currently available in the pool",
		},
		func() float64 { return float64(available()) },
	)
}

func (m *Metrics) Acquired(wait time.Duration) {
	if m == nil {
		return
	}
	m.PermitWaitDuration.Observe(wait.Seconds())
	m.InFlight.Inc()
}

func (m *Metrics) Released() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

func (m *Metrics) Sent(d time.Duration) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(d.Seconds())
}

func (m *Metrics) Finished(outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refilled() {
	if m == nil {
		return
	}
	m.Refills.Inc()
}
