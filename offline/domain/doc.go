// Package domain define os tipos e contratos da fila offline: a operação
// enfileirada, o handler de replay, os resultados explícitos e os erros.
//
// Não depende de storage, HTTP nem de implementações concretas.
package domain
