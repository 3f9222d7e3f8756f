package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsobito471-bot/thebottlestories/pkg/logger"
)

const (
	// DeviceIDHeader carries the browser device id on API calls.
	DeviceIDHeader = "X-Device-ID"
	// DeviceIDCookie is the cookie fallback for plain browser navigation.
	DeviceIDCookie = "device_id"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// DeviceConfig configures the device id cookie.
type DeviceConfig struct {
	CookieMaxAge time.Duration
	SecureCookie bool
}

// DeviceID resolves the device id from the X-Device-ID header or the
// device_id cookie, minting a new one when neither carries a valid id.
// The id is stored in context (see DeviceIDFromContext) and tagged on the
// active span. It is echoed in the response header and refreshed in the
// cookie.
func DeviceID(cfg DeviceConfig) func(http.Handler) http.Handler {
	if cfg.CookieMaxAge == 0 {
		cfg.CookieMaxAge = 365 * 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(DeviceIDHeader)
			if !deviceIDPattern.MatchString(id) {
				id = ""
				if c, err := r.Cookie(DeviceIDCookie); err == nil && deviceIDPattern.MatchString(c.Value) {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			w.Header().Set(DeviceIDHeader, id)
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceIDCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cfg.CookieMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})

			trace.SpanFromContext(r.Context()).SetAttributes(DeviceIDAttribute.String(id))
			next.ServeHTTP(w, r.WithContext(logger.WithDeviceID(r.Context(), id)))
		})
	}
}

// DeviceIDFromContext returns the device id resolved by the DeviceID middleware.
func DeviceIDFromContext(ctx context.Context) string {
	return logger.DeviceIDFromContext(ctx)
}
