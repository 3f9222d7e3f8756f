package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the per-client rate limiter.",
}, []string{"keyed_by"})

// buckets keeps one token bucket per client key. Buckets idle for longer
// than idle are dropped by sweep.
type buckets struct {
	mu    sync.Mutex
	byKey map[string]*bucket
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

type bucket struct {
	*rate.Limiter
	used time.Time
}

func newBuckets(rps float64, burst int, idle time.Duration) *buckets {
	return &buckets{
		byKey: make(map[string]*bucket),
		limit: rate.Limit(rps),
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

// take spends one token for key. When none is available it returns false
// and how long the client should wait.
func (b *buckets) take(key string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bk, ok := b.byKey[key]
	if !ok {
		bk = &bucket{Limiter: rate.NewLimiter(b.limit, b.burst)}
		b.byKey[key] = bk
	}
	bk.used = now

	res := bk.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (b *buckets) sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.idle)
	dropped := 0
	for key, bk := range b.byKey {
		if bk.used.Before(cutoff) {
			delete(b.byKey, key)
			dropped++
		}
	}
	return dropped
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}

func (b *buckets) sweepEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.sweep()
		}
	}
}

// retryAfterSeconds rounds wait up to whole seconds, at least one.
func retryAfterSeconds(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	return strconv.Itoa(max(secs, 1))
}

// RateLimit enforces a per-client token bucket and answers 429 with a
// Retry-After header when it is exhausted. Clients are keyed by device id
// when one is known, otherwise by IP. Idle buckets are swept until ctx is
// cancelled.
func RateLimit(ctx context.Context, rps float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	const idle = 3 * time.Minute
	b := newBuckets(rps, burst, idle)
	go b.sweepEvery(ctx, idle)
	return rateLimit(b, logger)
}

func rateLimit(b *buckets, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, keyedBy := DeviceIDFromContext(r.Context()), "device"
			if key == "" {
				key, keyedBy = clientIP(r), "ip"
			}

			ok, wait := b.take(key)
			if !ok {
				rateLimited.WithLabelValues(keyedBy).Inc()
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("keyed_by", keyedBy),
					slog.String("client", key),
					slog.String("path", r.URL.Path),
					slog.Duration("retry_after", wait),
				)
				w.Header().Set("Retry-After", retryAfterSeconds(wait))
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the first address in X-Forwarded-For, then X-Real-IP,
// then the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
