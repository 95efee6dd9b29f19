package domain

import (
	"reflect"
	"strings"
)

const (
	DefaultFormat = "MANUAL"
	DefaultType   = "LP_INTRODUCE_GOODS"
)

// Document é o documento a ser enviado. Payload é opaco para o limitador:
// só o Serializer sabe transformá-lo em bytes.
//
// Não altere um Document depois de entregue ao Client.
type Document struct {
	Format       string
	Type         string
	ProductGroup string
	Payload      any
}

// Validate checa apenas o mínimo necessário antes de qualquer atividade de rede
// ou de permissão: documento presente, payload não vazio, assinatura não vazia.
func Validate(doc *Document, signature string) error {
	if doc == nil {
		return NewError(KindInvalidInput, errInvalid("document must not be nil"))
	}
	if emptyPayload(doc.Payload) {
		return NewError(KindInvalidInput, errInvalid("document payload must not be empty"))
	}
	if strings.TrimSpace(signature) == "" {
		return NewError(KindInvalidInput, errInvalid("signature must not be empty"))
	}
	return nil
}

// emptyPayload trata como vazio: nil, ponteiro/map/slice nil (mesmo tipado),
// bytes de tamanho zero e string em branco.
func emptyPayload(p any) bool {
	switch v := p.(type) {
	case nil:
		return true
	case []byte:
		return len(v) == 0
	case string:
		return strings.TrimSpace(v) == ""
	}

	rv := reflect.ValueOf(p)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice:
		// json.RawMessage e afins
		return rv.IsNil() || (rv.Type().Elem().Kind() == reflect.Uint8 && rv.Len() == 0)
	}
	return false
}
