package application

import (
	"context"
	"time"

	"document-submitter/documents/domain"
	"document-submitter/documents/metrics"
	"document-submitter/logging"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SubmitService concentra a regra de envio: validar, esperar permissão, codificar,
// enviar e devolver a permissão em todo caminho de saída.
//
// Não faz retry. Todos os erros voltam ao chamador como *domain.Error.
type SubmitService struct {
	Pool       domain.PermitPool
	Serializer domain.Serializer
	Sender     domain.Sender

	// Opcionais.
	Pacer   domain.Pacer
	Stats   domain.StatsStore
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	NewID   func() string
}

func (s SubmitService) Submit(ctx context.Context, doc *domain.Document, signature string) (err error) {
	ev := domain.StatsEvent{ID: s.newID(), At: time.Now()}
	log := s.logger().With("submission_id", ev.ID)
	defer func() {
		if r := recover(); r != nil {
			s.finish(ctx, log, &ev, domain.NewError(domain.KindTransport, errors.Errorf("panic during submit: %v", r)))
			panic(r)
		}
		s.finish(ctx, log, &ev, err)
	}()

	// nada de rede nem de permissão antes de validar
	if err = domain.Validate(doc, signature); err != nil {
		return err
	}
	ev.ProductGroup = doc.ProductGroup

	if s.Pacer != nil {
		if perr := s.Pacer.Wait(ctx, doc.ProductGroup); perr != nil {
			return domain.NewError(domain.KindCancelled, errors.WithMessage(perr, "wait for pacer"))
		}
	}

	waitStart := time.Now()
	if aerr := s.Pool.Acquire(ctx); aerr != nil {
		ev.Wait = time.Since(waitStart)
		// não adquiriu: não devolve
		return domain.NewError(domain.KindCancelled, errors.WithMessage(aerr, "acquire permit"))
	}
	ev.Wait = time.Since(waitStart)
	s.Metrics.Acquired(ev.Wait)
	log.Debug("permit acquired", "wait", ev.Wait)

	defer func() {
		s.Pool.Release()
		s.Metrics.Released()
	}()

	body, err := s.Serializer.Encode(doc, signature)
	if err != nil {
		return withKind(err, domain.KindSerialization)
	}

	sendStart := time.Now()
	err = s.Sender.Send(ctx, body)
	s.Metrics.Sent(time.Since(sendStart))
	if err != nil {
		if domain.KindOf(err) == 0 && ctx.Err() != nil {
			return domain.NewError(domain.KindCancelled, err)
		}
		return withKind(err, domain.KindTransport)
	}
	return nil
}

func (s SubmitService) finish(ctx context.Context, log *logging.Logger, ev *domain.StatsEvent, err error) {
	ev.Duration = time.Since(ev.At)
	ev.Outcome = domain.Outcome(err)
	if err == nil {
		ev.StatusCode = domain.SuccessStatus
	} else {
		var derr *domain.Error
		if errors.As(err, &derr) {
			ev.StatusCode = derr.StatusCode
		}
	}

	s.Metrics.Finished(ev.Outcome)

	if s.Stats != nil {
		// best-effort: estatística nunca derruba o envio
		if serr := s.Stats.Record(context.WithoutCancel(ctx), *ev); serr != nil {
			log.Warn("stats record failed", "error", serr)
		}
	}

	if err != nil {
		log.Warn("document submission failed",
			"outcome", ev.Outcome,
			"status", ev.StatusCode,
			"duration", ev.Duration,
			"error", err,
		)
		return
	}
	log.Info("document submitted", "product_group", ev.ProductGroup, "wait", ev.Wait, "duration", ev.Duration)
}

func (s SubmitService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s SubmitService) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Nop()
}

// withKind mantém um *domain.Error já classificado; caso contrário classifica como kind.
func withKind(err error, kind domain.Kind) error {
	if domain.KindOf(err) != 0 {
		return err
	}
	return domain.NewError(kind, err)
}
