package proxyctl

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirrorbucket/credmon/metrics"
	"github.com/mirrorbucket/credmon/renewal"
)

// HealthProber polls the proxy's health endpoint. A run of consecutive
// failures usually means the proxy is serving with dead credentials, so
// it raises one renewal request and starts counting again rather than
// re-triggering on every probe.
type HealthProber struct {
	url       string
	interval  time.Duration
	threshold int
	sink      renewal.Sink
	client    *http.Client

	failures int
}

// NewHealthProber creates a prober for the given health URL. threshold
// is the number of consecutive failures before a renewal request.
func NewHealthProber(url string, interval time.Duration, threshold int, sink renewal.Sink) *HealthProber {
	return &HealthProber{
		url:       url,
		interval:  interval,
		threshold: threshold,
		sink:      sink,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Run probes until the context is cancelled.
func (p *HealthProber) Run(ctx context.Context) error {
	log.Info().Str("url", p.url).Dur("interval", p.interval).Int("threshold", p.threshold).Msg("Starting proxy health probe")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe performs one health check. Exported for tests.
func (p *HealthProber) Probe(ctx context.Context) {
	if p.healthy(ctx) {
		p.failures = 0
		return
	}

	p.failures++
	metrics.HealthProbeFailures.Inc()
	log.Warn().Str("url", p.url).Int("consecutive", p.failures).Msg("Proxy health probe failed")

	if p.failures < p.threshold {
		return
	}
	p.failures = 0
	p.sink.Request(renewal.Request{Reason: renewal.ReasonHealthCheck, Source: p.url, RaisedAt: time.Now()})
}

func (p *HealthProber) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
