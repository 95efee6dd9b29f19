package documents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"document-submitter/documents/domain"
	"document-submitter/documents/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const longPeriod = time.Hour

// endpoint é um servidor fake que segura cada requisição até unblock (se bloqueante)
// e mede quantas estão ativas ao mesmo tempo.
type endpoint struct {
	srv       *httptest.Server
	block     chan struct{}
	once      sync.Once
	status    atomic.Int32
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func newEndpoint(t *testing.T, blocking bool) *endpoint {
	t.Helper()
	e := &endpoint{block: make(chan struct{})}
	e.status.Store(http.StatusOK)
	if !blocking {
		e.unblock()
	}

	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)
		n := e.active.Add(1)
		for {
			m := e.maxActive.Load()
			if n <= m || e.maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-e.block:
		case <-r.Context().Done():
		}
		e.active.Add(-1)
		w.WriteHeader(int(e.status.Load()))
	}))
	t.Cleanup(func() {
		e.unblock()
		e.srv.Close()
	})
	return e
}

func (e *endpoint) unblock() { e.once.Do(func() { close(e.block) }) }

type countingDoer struct {
	calls atomic.Int32
	next  Doer
}

func (d *countingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return d.next.Do(req)
}

func newTestClient(t *testing.T, e *endpoint, period time.Duration, limit int, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithEndpoint(e.srv.URL)}, opts...)
	c, err := New(period, limit, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func doc() *Document {
	return &Document{ProductGroup: "milk", Payload: map[string]string{"doc_id": "1"}}
}

// submitAsync dispara n envios e devolve o canal de resultados.
func submitAsync(c *Client, n int) <-chan error {
	out := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { out <- c.CreateDocument(context.Background(), doc(), "sig") }()
	}
	return out
}

func collect(t *testing.T, results <-chan error, n int) []error {
	t.Helper()
	errs := make([]error, 0, n)
	for i := 0; i < n; i++ {
		select {
		case err := <-results:
			errs = append(errs, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d submissions finished", i, n)
		}
	}
	return errs
}

func TestNew_ValidatesArguments(t *testing.T) {
	_, err := New(time.Second, 0)
	require.Error(t, err)

	_, err = New(0, 1)
	require.Error(t, err)

	_, err = New(time.Second, 1, WithEndpoint(""))
	require.Error(t, err)
}

func TestCreateDocument_InvalidInputMakesNoNetworkCalls(t *testing.T) {
	e := newEndpoint(t, false)
	doer := &countingDoer{next: e.srv.Client()}
	c := newTestClient(t, e, longPeriod, 1, WithHTTPClient(doer))

	err := c.CreateDocument(context.Background(), nil, "sig")
	require.True(t, IsKind(err, KindInvalidInput), "got %v", err)

	err = c.CreateDocument(context.Background(), doc(), "")
	require.True(t, IsKind(err, KindInvalidInput), "got %v", err)

	require.Zero(t, doer.calls.Load())
	require.Zero(t, e.calls.Load())
	require.Equal(t, 1, c.Available())
}

func TestCreateDocument_EmptyPayloadMakesNoNetworkCalls(t *testing.T) {
	e := newEndpoint(t, false)
	doer := &countingDoer{next: e.srv.Client()}
	c := newTestClient(t, e, longPeriod, 1, WithHTTPClient(doer))

	for name, payload := range map[string]any{
		"typed nil bytes": []byte(nil),
		"empty bytes":     []byte{},
	} {
		err := c.CreateDocument(context.Background(), &Document{Payload: payload}, "sig")
		require.True(t, IsKind(err, KindInvalidInput), "%s: got %v", name, err)
	}

	require.Zero(t, doer.calls.Load())
	require.Zero(t, e.calls.Load())
	require.Equal(t, 1, c.Available())
}

func TestCreateDocument_StatusOKIsSuccess(t *testing.T) {
	e := newEndpoint(t, false)
	stats := infra.NewMemoryStatsStore()
	c := newTestClient(t, e, longPeriod, 2, WithStats(stats))

	require.NoError(t, c.CreateDocument(context.Background(), doc(), "sig"))
	require.Equal(t, int32(1), e.calls.Load())
	require.Equal(t, 2, c.Available())
	require.Equal(t, map[string]int64{domain.OutcomeAccepted: 1}, stats.Total())
}

func TestCreateDocument_BadStatusReleasesPermit(t *testing.T) {
	const limit = 2
	e := newEndpoint(t, false)
	e.status.Store(http.StatusInternalServerError)
	c := newTestClient(t, e, longPeriod, limit)

	err := c.CreateDocument(context.Background(), doc(), "sig")
	var derr *Error
	require.True(t, errors.As(err, &derr), "got %v", err)
	require.Equal(t, KindBadStatus, derr.Kind)
	require.Equal(t, http.StatusInternalServerError, derr.StatusCode)
	require.Equal(t, limit, c.Available())

	// sem recarga (período longo): se a permissão não tivesse voltado, isto travaria
	e.status.Store(http.StatusOK)
	for _, err := range collect(t, submitAsync(c, limit), limit) {
		require.NoError(t, err)
	}
}

func TestCreateDocument_SerializationErrorReleasesPermit(t *testing.T) {
	e := newEndpoint(t, false)
	c := newTestClient(t, e, longPeriod, 1)

	bad := &Document{Payload: map[string]any{"fn": func() {}}}
	err := c.CreateDocument(context.Background(), bad, "sig")
	require.True(t, IsKind(err, KindSerialization), "got %v", err)
	require.Equal(t, 1, c.Available())
	require.Zero(t, e.calls.Load())
}

func TestCreateDocument_LimitBoundsConcurrentSendsUntilRefill(t *testing.T) {
	const limit, total = 2, 5
	e := newEndpoint(t, true)
	c := newTestClient(t, e, longPeriod, limit)

	results := submitAsync(c, total)

	require.Eventually(t, func() bool {
		return e.active.Load() == limit && c.pool.Waiting() == total-limit
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(limit), e.maxActive.Load())

	// recarga: novo lote passa mesmo sem nenhum envio anterior ter terminado
	c.pool.Refill()
	require.Eventually(t, func() bool {
		return e.active.Load() == 2*limit && c.pool.Waiting() == total-2*limit
	}, time.Second, time.Millisecond)

	e.unblock()
	for _, err := range collect(t, results, total) {
		require.NoError(t, err)
	}
	require.Equal(t, int32(total), e.calls.Load())
	require.LessOrEqual(t, c.Available(), limit)
}

func TestCreateDocument_TimerRefillAdmitsWithoutReleases(t *testing.T) {
	const limit, total = 2, 5
	e := newEndpoint(t, true)
	c := newTestClient(t, e, 100*time.Millisecond, limit)

	results := submitAsync(c, total)

	// nenhum envio termina enquanto bloqueado: só a recarga periódica libera os demais
	require.Eventually(t, func() bool { return e.active.Load() == total }, 2*time.Second, 5*time.Millisecond)

	e.unblock()
	for _, err := range collect(t, results, total) {
		require.NoError(t, err)
	}
}

func TestCreateDocument_CancelWhileWaitingConsumesNothing(t *testing.T) {
	e := newEndpoint(t, true)
	c := newTestClient(t, e, longPeriod, 1)

	first := submitAsync(c, 1)
	require.Eventually(t, func() bool { return e.active.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() { second <- c.CreateDocument(ctx, doc(), "sig") }()
	require.Eventually(t, func() bool { return c.pool.Waiting() == 1 }, time.Second, time.Millisecond)

	cancel()
	err := <-second
	require.True(t, IsKind(err, KindCancelled), "got %v", err)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, c.Available())
	require.Equal(t, int32(1), e.calls.Load())

	e.unblock()
	require.NoError(t, collect(t, first, 1)[0])
	require.Equal(t, 1, c.Available())
}

func TestClose_RejectsWaitingSubmissions(t *testing.T) {
	e := newEndpoint(t, true)
	c, err := New(longPeriod, 1, WithEndpoint(e.srv.URL))
	require.NoError(t, err)

	first := submitAsync(c, 1)
	require.Eventually(t, func() bool { return e.active.Load() == 1 }, time.Second, time.Millisecond)

	second := submitAsync(c, 1)
	require.Eventually(t, func() bool { return c.pool.Waiting() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	err = collect(t, second, 1)[0]
	require.True(t, IsKind(err, KindCancelled), "got %v", err)
	require.ErrorIs(t, err, ErrClosed)

	// o envio em andamento termina normalmente
	e.unblock()
	require.NoError(t, collect(t, first, 1)[0])

	err = c.CreateDocument(context.Background(), doc(), "sig")
	require.ErrorIs(t, err, ErrClosed)
}

func TestCreateDocument_UsesPacerPerProductGroup(t *testing.T) {
	e := newEndpoint(t, false)
	pacer := infra.NewPacerStore(0.02, 1)
	c := newTestClient(t, e, longPeriod, 5, WithPacer(pacer))

	require.NoError(t, c.CreateDocument(context.Background(), doc(), "sig"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.CreateDocument(ctx, doc(), "sig")
	require.True(t, IsKind(err, KindCancelled), "got %v", err)
	require.Equal(t, int32(1), e.calls.Load())
	require.Equal(t, 5, c.Available())

	other := &Document{ProductGroup: "shoes", Payload: []byte("x")}
	require.NoError(t, c.CreateDocument(context.Background(), other, "sig"))
}

func TestNew_ClientsKeepSeparateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEndpoint(t, true)
	a := newTestClient(t, e, longPeriod, 3,
		WithMetricsRegisterer(prometheus.WrapRegistererWith(prometheus.Labels{"client": "a"}, reg)))
	b := newTestClient(t, e, longPeriod, 5,
		WithMetricsRegisterer(prometheus.WrapRegistererWith(prometheus.Labels{"client": "b"}, reg)))

	results := submitAsync(a, 2)
	require.Eventually(t, func() bool { return e.active.Load() == 2 }, time.Second, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(a.metrics.InFlight))
	require.Zero(t, testutil.ToFloat64(b.metrics.InFlight))

	n, err := testutil.GatherAndCount(reg, "documents_permits_available")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	e.unblock()
	for _, err := range collect(t, results, 2) {
		require.NoError(t, err)
	}
	require.Zero(t, testutil.ToFloat64(a.metrics.InFlight))
	require.Equal(t, 2.0, testutil.ToFloat64(a.metrics.SubmissionsTotal.WithLabelValues(domain.OutcomeAccepted)))
	require.Zero(t, testutil.ToFloat64(b.metrics.SubmissionsTotal.WithLabelValues(domain.OutcomeAccepted)))
}
