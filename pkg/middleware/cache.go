package middleware

import (
	"net/http"
	"strconv"
)

// CacheControl lets the browser reuse GET responses for maxAge seconds.
// Responses stay private because every /api/v1 reply refreshes the device
// cookie.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	value := "private, max-age=" + strconv.Itoa(maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore forbids caching of per-device state such as carts, sessions and
// checkout.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store, private")
		h.Add("Vary", "Cookie")
		next.ServeHTTP(w, r)
	})
}
