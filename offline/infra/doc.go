// Package infra contém os adaptadores externos da fila offline:
//
//   - Watcher: recebe transições de conectividade e dispara o replay na
//     borda sem-rede -> com-rede
//   - Prober: checagem periódica opcional de alcance do backend
//   - Backend: cliente REST do backend-as-a-service, com um handler por tipo
package infra
