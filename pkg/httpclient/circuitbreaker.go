package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// CircuitBreakerConfig maps onto gobreaker.Settings. The breaker trips once
// MinRequests calls have been seen in the current Interval and at least
// FailureRatio of them failed.
type CircuitBreakerConfig struct {
	Name string
	// MaxRequests is how many trial calls pass while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts. Zero never resets them.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// FallbackFunc answers a call rejected by an open or saturated breaker.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

// UnavailableFallback fails fast with a SERVICE_UNAVAILABLE AppError that
// carries message for the shopper.
func UnavailableFallback(message string) FallbackFunc {
	return func(_ context.Context, err error) (*http.Response, error) {
		return nil, fmt.Errorf("%w: %w", apperrors.ServiceUnavailable(message), err)
	}
}

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Upstream circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"name"})

	breakerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "breaker_fallback_total",
		Help:      "Upstream calls answered by the fallback while the breaker rejected them.",
	}, []string{"name"})
)

var stateValues = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// upstreamFailure reports whether status means the upstream is unhealthy.
// Throttling counts. Other 4xx answers are the caller's problem.
func upstreamFailure(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// CircuitBreakerClient guards a Doer with a breaker. Failing responses are
// turned into errors by ParseResponseError. Caller cancellation is never
// held against the upstream.
type CircuitBreakerClient struct {
	next     Doer
	cb       *gobreaker.CircuitBreaker[*http.Response]
	name     string
	logger   *slog.Logger
	fallback FallbackFunc
}

func NewCircuitBreakerClient(next Doer, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinRequests &&
				float64(c.TotalFailures) >= cfg.FailureRatio*float64(c.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValues[to])
		},
	})
	breakerState.WithLabelValues(cfg.Name).Set(stateValues[gobreaker.StateClosed])
	return &CircuitBreakerClient{next: next, cb: cb, name: cfg.Name, logger: logger}
}

// WithFallback returns a copy that answers rejected calls with fn.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	cpy := *c
	cpy.fallback = fn
	return &cpy
}

func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		resp, err := c.next.Do(ctx, req)
		switch {
		case err != nil:
			return nil, err
		case upstreamFailure(resp.StatusCode):
			return nil, ParseResponseError(resp, c.name)
		}
		return resp, nil
	})
	if err == nil || c.fallback == nil || !rejected(err) {
		return resp, err
	}

	breakerFallbacks.WithLabelValues(c.name).Inc()
	c.logger.WarnContext(ctx, "upstream breaker rejected call, using fallback",
		slog.String("breaker", c.name),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)
	return c.fallback(ctx, err)
}

func rejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build GET %s: %w", url, err)
	}
	return c.Do(ctx, req)
}

func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}
