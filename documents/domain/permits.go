package domain

import "context"

// PermitPool representa um conjunto finito de permissões de envio.
//
// A semântica é: Acquire bloqueia até conseguir uma permissão (ordem FIFO entre os
// que esperam) ou até o ctx encerrar. Se Acquire retornar erro, nenhuma permissão
// foi consumida e Release NÃO deve ser chamado.
//
// Release devolve uma permissão, sem nunca passar da capacidade.
type PermitPool interface {
	Acquire(ctx context.Context) error
	Release()
	Available() int
	Capacity() int
}

// Serializer codifica o par (documento, assinatura) no corpo exato a ser enviado.
type Serializer interface {
	Encode(doc *Document, signature string) ([]byte, error)
}

// Sender envia um corpo já codificado ao endpoint.
// Erros devem vir como *Error (KindTransport, KindBadStatus ou KindCancelled).
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Pacer é um limitador opcional de ritmo, por chave (ex: grupo de produto).
type Pacer interface {
	Wait(ctx context.Context, key string) error
}
