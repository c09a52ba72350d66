// Package storage fornece a camada de persistência chave-valor durável usada
// pela fila offline e, opcionalmente, pelos registros do rate limit.
//
// O contrato é mínimo (Get/Set/Remove sobre strings) para que o backend possa
// ser trocado sem afetar as camadas de aplicação:
//
//   - Memory: mapa em memória (testes e agentes efêmeros)
//   - Redis: github.com/redis/go-redis/v9
//   - SQL: database/sql sobre o driver libsql (arquivo local ou libsql://)
package storage
