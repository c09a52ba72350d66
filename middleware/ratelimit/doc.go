// Package ratelimit fornece adapters HTTP (net/http) para rate limit por
// categoria de ação e limite de concorrência do agente.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela fixa allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (store em memória/KV, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo na API do agente:
//
//   1) Extrai a chave do cliente (header do usuário/XFF/IP)
//   2) Chama o limiter da categoria (gig_creation, application, message, auth)
//   3) Se bloqueado, responde 429 (rate limit) ou 503 (concorrência)
//   4) Se permitido, chama o próximo handler (ex: submissão à fila offline)
package ratelimit
