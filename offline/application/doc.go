// Package application implementa a fila offline: enfileira escritas feitas
// sem conectividade e as reexecuta, em ordem de inserção, quando a rede volta.
//
// A fila inteira é persistida como um array JSON sob uma chave fixa do
// storage.KV. Um replay percorre tudo e, ao final, limpa a fila inteira,
// independente do resultado de cada operação.
package application
