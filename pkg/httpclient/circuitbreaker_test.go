package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newBreaker wraps a non-retrying client in a breaker that opens after
// three failed calls.
func newBreaker(name string) *CircuitBreakerClient {
	cfg := DefaultCircuitBreakerConfig(name)
	cfg.Timeout = 5 * time.Second
	cfg.MinRequests = 3
	return NewCircuitBreakerClient(New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10}), cfg, quietLogger)
}

// upstream answers every request with status and body and counts hits.
func upstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func openBreaker(t *testing.T, cb *CircuitBreakerClient, url string) {
	t.Helper()
	for range 3 {
		_, err := cb.Get(context.Background(), url)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestCircuitBreaker_FailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
		want    gobreaker.State
	}{
		{"ok", http.StatusOK, false, gobreaker.StateClosed},
		{"bad request", http.StatusBadRequest, false, gobreaker.StateClosed},
		{"not found", http.StatusNotFound, false, gobreaker.StateClosed},
		{"throttled", http.StatusTooManyRequests, true, gobreaker.StateOpen},
		{"server error", http.StatusInternalServerError, true, gobreaker.StateOpen},
		{"unavailable", http.StatusServiceUnavailable, true, gobreaker.StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := upstream(t, tt.status, `{"message":"upstream says no"}`)
			cb := newBreaker("classify-" + tt.name)

			for range 3 {
				resp, err := cb.Get(context.Background(), srv.URL)
				if tt.wantErr {
					require.Error(t, err)
					continue
				}
				require.NoError(t, err)
				assert.Equal(t, tt.status, resp.StatusCode)
				_ = resp.Body.Close()
			}
			assert.Equal(t, tt.want, cb.State())
		})
	}
}

func TestCircuitBreaker_FailureKeepsUpstreamMessage(t *testing.T) {
	srv, _ := upstream(t, http.StatusBadGateway, `{"message":"Cart service is down"}`)

	_, err := newBreaker("message").Get(context.Background(), srv.URL)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Cart service is down", appErr.Message)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestCircuitBreaker_OpenRejectsWithoutCallingUpstream(t *testing.T) {
	srv, hits := upstream(t, http.StatusInternalServerError, `{}`)
	cb := newBreaker("reject")
	openBreaker(t, cb, srv.URL)

	seen := hits.Load()
	for range 4 {
		_, err := cb.Get(context.Background(), srv.URL)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, seen, hits.Load())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultCircuitBreakerConfig("recover")
	cfg.Timeout = 100 * time.Millisecond
	cfg.MinRequests = 3
	cb := NewCircuitBreakerClient(New(Config{Timeout: time.Second}), cfg, quietLogger)
	openBreaker(t, cb, srv.URL)

	healthy.Store(true)
	time.Sleep(150 * time.Millisecond)

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	srv, _ := upstream(t, http.StatusOK, `{}`)
	cb := newBreaker("cancel")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 5 {
		_, err := cb.Get(ctx, srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_DeadlineExceededSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newBreaker("deadline").Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("storefront-api")

	assert.Equal(t, CircuitBreakerConfig{
		Name:         "storefront-api",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}, cfg)
}

func TestCircuitBreaker_Fallback(t *testing.T) {
	t.Run("answers rejected calls", func(t *testing.T) {
		srv, _ := upstream(t, http.StatusInternalServerError, `{}`)
		var used atomic.Bool
		cb := newBreaker("fallback-open").WithFallback(func(context.Context, error) (*http.Response, error) {
			used.Store(true)
			return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: http.NoBody}, nil
		})
		openBreaker(t, cb, srv.URL)

		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.True(t, used.Load())
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("unused while closed", func(t *testing.T) {
		srv, _ := upstream(t, http.StatusOK, `ok`)
		var used atomic.Bool
		cb := newBreaker("fallback-closed").WithFallback(func(_ context.Context, err error) (*http.Response, error) {
			used.Store(true)
			return nil, err
		})

		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.False(t, used.Load())
	})

	t.Run("unavailable error", func(t *testing.T) {
		srv, _ := upstream(t, http.StatusInternalServerError, `{}`)
		cb := newBreaker("fallback-unavailable").WithFallback(UnavailableFallback("store temporarily unavailable"))
		openBreaker(t, cb, srv.URL)

		_, err := cb.Get(context.Background(), srv.URL)
		assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
		assert.Equal(t, "store temporarily unavailable", apperrors.MessageOf(err))
	})
}
