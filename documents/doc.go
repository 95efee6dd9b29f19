// Package documents envia documentos para o endpoint de criação de documentos
// com controle de admissão: no máximo `limit` envios começam a cada `period`.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Document, Error/Kind, PermitPool, StatsStore)
//   - application: caso de uso Submit (validar, permissão, codificar, enviar, devolver)
//   - infra: PermitPool com recarga periódica, serializer JSON, pacer, stats
//   - documents (este pacote): Client + Dispatcher HTTP e a tradução status -> erro
//
// Fluxo de CreateDocument:
//
//   1) Valida documento e assinatura (InvalidInput, sem rede e sem permissão)
//   2) Espera uma permissão do pool (pode bloquear; cancelamento -> Cancelled)
//   3) Codifica e faz o POST; 200 é sucesso, qualquer outro status é BadStatus
//   4) Devolve a permissão em qualquer caminho de saída
//
// A recarga não é uma janela deslizante: a cada período o pool volta à capacidade
// total, mesmo com envios anteriores ainda em andamento.
package documents
