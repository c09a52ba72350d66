package infra

import (
	"context"
	"net/http"
	"time"

	"code.cloudfoundry.org/clock"
	"go.uber.org/zap"
)

// Prober consulta periodicamente uma URL de saúde e alimenta o Watcher.
// Qualquer resposta HTTP (mesmo 5xx) conta como rede presente; só falha de
// transporte conta como ausente.
type Prober struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Clock    clock.Clock
	Watcher  *Watcher
	Logger   *zap.Logger
}

// Probe faz uma checagem e devolve o resultado sem atualizar o Watcher.
func (p *Prober) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Run checa imediatamente e depois a cada Interval, até ctx encerrar.
func (p *Prober) Run(ctx context.Context) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	check := func() {
		up := p.Probe(ctx)
		logger.Debug("connectivity probe", zap.String("url", p.URL), zap.Bool("up", up))
		p.Watcher.Update(ctx, up)
	}

	check()
	t := clk.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			check()
		}
	}
}
