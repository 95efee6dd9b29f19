package documents

import (
	"context"
	"time"

	"document-submitter/documents/application"
	"document-submitter/documents/domain"
	"document-submitter/documents/infra"
	"document-submitter/documents/metrics"
	"document-submitter/logging"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	Document = domain.Document
	Error    = domain.Error
	Kind     = domain.Kind
)

const (
	KindInvalidInput  = domain.KindInvalidInput
	KindSerialization = domain.KindSerialization
	KindTransport     = domain.KindTransport
	KindBadStatus     = domain.KindBadStatus
	KindCancelled     = domain.KindCancelled
)

// Client envia documentos respeitando o limite de `limit` envios por `period`.
// É seguro para uso concorrente. Feche com Close.
type Client struct {
	pool    *infra.PermitPool
	svc     application.SubmitService
	metrics *metrics.Metrics
	log     *logging.Logger
}

type Option func(*settings)

type settings struct {
	endpoint   string
	httpClient Doer
	timeout    time.Duration
	token      string
	serializer domain.Serializer
	pacer      domain.Pacer
	stats      domain.StatsStore
	logger     *logging.Logger
	registerer prometheus.Registerer
}

func WithEndpoint(url string) Option {
	return func(s *settings) { s.endpoint = url }
}

// WithHTTPClient troca o client HTTP (ex: em testes, para contar chamadas).
// Se ausente, usa NewHTTPClient(limit, timeout).
func WithHTTPClient(c Doer) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithTimeout define o timeout por requisição do client padrão. 0 desliga.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

func WithAuthToken(token string) Option {
	return func(s *settings) { s.token = token }
}

func WithSerializer(ser domain.Serializer) Option {
	return func(s *settings) { s.serializer = ser }
}

func WithPacer(p domain.Pacer) Option {
	return func(s *settings) { s.pacer = p }
}

func WithStats(st domain.StatsStore) Option {
	return func(s *settings) { s.stats = st }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetricsRegisterer registra as métricas deste client em reg. Sem esta opção as
// métricas existem mas não são registradas. Vários clients no mesmo registry precisam
// de labels distintos: prometheus.WrapRegistererWith(prometheus.Labels{"client": "x"}, reg).
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// New cria o client. period é o intervalo de recarga do pool e limit a sua capacidade (>= 1).
func New(period time.Duration, limit int, opts ...Option) (*Client, error) {
	st := settings{
		endpoint:   DefaultEndpoint,
		timeout:    30 * time.Second,
		serializer: infra.JSONSerializer{},
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(&st)
	}
	if st.endpoint == "" {
		return nil, errors.New("endpoint must not be empty")
	}

	log := st.logger.With("component", "documents")
	m := metrics.New(st.registerer)
	pool, err := infra.NewPermitPool(limit, period, infra.WithRefillHook(func(available int) {
		m.Refilled()
		log.Debug("permit pool refilled", "capacity", limit, "available", available)
	}))
	if err != nil {
		return nil, errors.WithMessage(err, "create permit pool")
	}
	m.TrackAvailable(pool.Available)

	if st.httpClient == nil {
		st.httpClient = NewHTTPClient(limit, st.timeout)
	}

	c := &Client{
		pool:    pool,
		metrics: m,
		log:     log,
		svc: application.SubmitService{
			Pool:       pool,
			Serializer: st.serializer,
			Sender: Dispatcher{
				Endpoint: st.endpoint,
				Client:   st.httpClient,
				Token:    st.token,
			},
			Pacer:   st.pacer,
			Stats:   st.stats,
			Metrics: m,
			Logger:  log,
		},
	}
	log.Info("documents client started", "endpoint", st.endpoint, "limit", limit, "period", period)
	return c, nil
}

// CreateDocument envia um documento. Bloqueia até haver permissão livre, ctx encerrar
// ou o client ser fechado. Erros são *Error; use KindOf/IsKind para classificá-los.
func (c *Client) CreateDocument(ctx context.Context, doc *Document, signature string) error {
	return c.svc.Submit(ctx, doc, signature)
}

func (c *Client) Available() int { return c.pool.Available() }
func (c *Client) Capacity() int  { return c.pool.Capacity() }

// Close para a recarga periódica. Chamadas esperando permissão recebem KindCancelled
// (envolvendo domain.ErrPoolClosed); envios já em andamento terminam normalmente.
func (c *Client) Close() error {
	err := c.pool.Close()
	c.log.Info("documents client closed")
	return err
}

func KindOf(err error) Kind            { return domain.KindOf(err) }
func IsKind(err error, kind Kind) bool { return domain.IsKind(err, kind) }

var ErrClosed = domain.ErrPoolClosed
