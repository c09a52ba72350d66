// Package api expõe a API HTTP local do agente: escritas com limite por
// categoria, inspeção e replay da fila offline, relato de conectividade.
package api
