package domain

import (
	"errors"
	"fmt"
)

// Kind classifica a falha de um envio.
type Kind int

const (
	// KindInvalidInput: documento ou assinatura ausentes. Nada foi enviado.
	KindInvalidInput Kind = iota + 1
	// KindSerialization: o payload não pôde ser codificado. Nada foi enviado.
	KindSerialization
	// KindTransport: falha de rede durante o envio.
	KindTransport
	// KindBadStatus: resposta recebida com status diferente de 200.
	KindBadStatus
	// KindCancelled: o contexto do chamador encerrou esperando permissão ou durante o envio.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindSerialization:
		return "serialization"
	case KindTransport:
		return "transport"
	case KindBadStatus:
		return "bad_status"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sent informa se a requisição chegou a ser enviada e falhou (transporte ou status).
// KindInvalidInput e KindSerialization nunca enviam; KindCancelled é uma terceira
// categoria e deve ser tratada à parte por quem decide retries.
func (k Kind) Sent() bool {
	return k == KindTransport || k == KindBadStatus
}

// ErrPoolClosed é retornado por Acquire depois que o pool foi fechado.
var ErrPoolClosed = errors.New("permit pool closed")

// Error é a variante tipada de erro retornada pelo Client.
type Error struct {
	Kind Kind
	// StatusCode só é preenchido para KindBadStatus.
	StatusCode int
	Err        error
}

func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func NewBadStatusError(code int) *Error {
	return &Error{
		Kind:       KindBadStatus,
		StatusCode: code,
		Err:        fmt.Errorf("api returned bad status code: %d", code),
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf devolve o Kind de err, ou 0 se err não carrega um *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func errInvalid(msg string) error { return errors.New(msg) }
