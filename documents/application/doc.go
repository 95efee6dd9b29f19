// Package application contém o caso de uso de envio de documentos com controle
// de admissão.
//
// Ele depende apenas do pacote domain (mais logging/métricas) e não conhece net/http.
// Ex.: SubmitService.Submit(ctx, doc, sig) valida, adquire permissão, codifica,
// envia e sempre devolve a permissão.
package application
