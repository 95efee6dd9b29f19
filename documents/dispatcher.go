package documents

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"document-submitter/documents/domain"

	"github.com/pkg/errors"
)

const DefaultEndpoint = "https://ismp.crpt.ru/api/v3/lk/documents/create"

// maxDrain limita quanto do corpo da resposta é lido para reaproveitar a conexão.
const maxDrain = 64 << 10

// Doer é o mínimo de *http.Client que o Dispatcher usa.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient cria o client com o pool de conexões ociosas dimensionado para limit.
// Não limita conexões ativas: quem limita envios é o PermitPool.
func NewHTTPClient(limit int, timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = limit
	return &http.Client{Transport: tr, Timeout: timeout}
}

// Dispatcher faz um POST por chamada e traduz o resultado para *domain.Error.
// Não faz retry.
type Dispatcher struct {
	Endpoint string
	Client   Doer
	// Token, se não vazio, vai como "Authorization: Bearer <token>".
	Token string
}

func (d Dispatcher) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.NewError(domain.KindTransport, errors.WithMessage(err, "build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewError(domain.KindCancelled, errors.WithMessage(err, "send request"))
		}
		return domain.NewError(domain.KindTransport, errors.WithMessage(err, "send request"))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode != domain.SuccessStatus {
		return domain.NewBadStatusError(resp.StatusCode)
	}
	return nil
}

var _ domain.Sender = Dispatcher{}
