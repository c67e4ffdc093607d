package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/llj0824/weibo-research-guanghua/pkg/clients"
	"github.com/llj0824/weibo-research-guanghua/pkg/logging"
)

const defaultTimeout = 30 * time.Second

// Config configures a Gateway for one upstream service.
type Config struct {
	// Upstream names the remote service for logs and metrics
	Upstream string
	// Quota is the shared hourly call budget; required
	Quota *HourlyQuota
	// Timeout bounds each HTTP request; defaults to 30s
	Timeout time.Duration
	// MinInterval paces consecutive calls (0 disables pacing)
	MinInterval time.Duration
	// RateLimitBody detects an upstream rate-limit error code in a
	// response body regardless of HTTP status (optional)
	RateLimitBody func([]byte) bool
	// Retry overrides transport retry behavior (optional)
	Retry *clients.RetryConfig
	// Calls counts outcomes per upstream (optional); labels {upstream, outcome}
	Calls *prometheus.CounterVec
	// Duration observes network call latency per upstream (optional)
	Duration *prometheus.HistogramVec
	// QuotaUsed tracks the current window's spend per upstream (optional)
	QuotaUsed *prometheus.GaugeVec

	Logger logging.Logger
}

// Gateway mediates every outbound call to one upstream API: it enforces the
// hourly quota before touching the network, paces consecutive requests, and
// classifies responses into the error taxonomy.
type Gateway struct {
	upstream      string
	client        *http.Client
	quota         *HourlyQuota
	pacer         *rate.Limiter
	retry         clients.RetryConfig
	rateLimitBody func([]byte) bool
	calls         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	quotaUsed     *prometheus.GaugeVec
	logger        logging.Logger
}

// New creates a gateway from the given config.
func New(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	var pacer *rate.Limiter
	if cfg.MinInterval > 0 {
		pacer = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	retry := clients.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &Gateway{
		upstream:      cfg.Upstream,
		client:        &http.Client{Timeout: timeout},
		quota:         cfg.Quota,
		pacer:         pacer,
		retry:         retry,
		rateLimitBody: cfg.RateLimitBody,
		calls:         cfg.Calls,
		duration:      cfg.Duration,
		quotaUsed:     cfg.QuotaUsed,
		logger:        cfg.Logger,
	}
}

// Do executes the request through quota, pacing, and classification.
// One call spends one unit of quota whether or not it succeeds.
func (g *Gateway) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	err := g.quota.Acquire()
	g.recordQuota()
	if err != nil {
		g.observe("quota_exhausted")
		if g.logger != nil {
			used, limit := g.quota.Usage()
			g.logger.WithFields(logging.Fields{
				"upstream": g.upstream,
				"used":     used,
				"limit":    limit,
			}).Warn("Hourly quota exhausted; request rejected before network call")
		}
		return nil, err
	}

	if g.pacer != nil {
		if err := g.pacer.Wait(ctx); err != nil {
			g.observe("transport_error")
			return nil, &TransportError{Err: err}
		}
	}

	start := time.Now()
	resp, err := clients.DoWithRetry(ctx, g.client, req, g.retry)
	if g.duration != nil {
		g.duration.WithLabelValues(g.upstream).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		g.observe("transport_error")
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.observe("transport_error")
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		(g.rateLimitBody != nil && g.rateLimitBody(body)) {
		g.observe("upstream_rate_limited")
		return nil, ErrUpstreamRateLimited
	}

	if resp.StatusCode != http.StatusOK {
		g.observe("upstream_error")
		return nil, &UpstreamError{
			Status: resp.StatusCode,
			Body:   Truncate(string(body), maxErrorBody),
		}
	}

	g.observe("ok")
	return body, nil
}

// Usage reports quota consumption for the current hour.
func (g *Gateway) Usage() (used, limit int) {
	return g.quota.Usage()
}

func (g *Gateway) observe(outcome string) {
	if g.calls != nil {
		g.calls.WithLabelValues(g.upstream, outcome).Inc()
	}
}

func (g *Gateway) recordQuota() {
	if g.quotaUsed == nil {
		return
	}
	used, _ := g.quota.Usage()
	g.quotaUsed.WithLabelValues(g.upstream).Set(float64(used))
}
