package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Category identifica a classe de ação limitada.
// Cada categoria tem seu próprio limiter, sua política e seu espaço de chaves.
type Category string

const (
	CategoryGigCreation Category = "gig_creation"
	CategoryApplication Category = "application"
	CategoryMessage     Category = "message"
	CategoryAuth        Category = "auth"
)

// Categories lista as categorias conhecidas, em ordem estável.
func Categories() []Category {
	return []Category{CategoryGigCreation, CategoryApplication, CategoryMessage, CategoryAuth}
}

// Policy é a configuração de janela fixa: no máximo Limit ações por Window.
type Policy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Record é o estado de uma chave na janela corrente.
//
// Observação: é janela fixa, não log deslizante. Rajadas de até 2*Limit
// podem ocorrer na virada da janela; é uma aproximação aceita.
type Record struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Expired informa se a janela do registro já passou em now.
// A janela só reinicia quando o tempo decorrido EXCEDE window.
func (r Record) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.WindowStart) > window
}

// RecordStore é a estratégia de persistência dos registros de uma instância.
//
// Uma instância de limiter usa exatamente um store (memória OU persistido);
// misturar por chave não é suportado.
type RecordStore interface {
	Load(ctx context.Context, key Key) (Record, bool, error)
	Save(ctx context.Context, key Key, rec Record) error
	Delete(ctx context.Context, key Key) error
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt é quando a janela corrente termina.
	ResetAt time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
