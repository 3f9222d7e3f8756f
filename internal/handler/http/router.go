package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itsobito471-bot/thebottlestories/pkg/health"
	"github.com/itsobito471-bot/thebottlestories/pkg/middleware"
)

// ServiceName labels metrics and spans.
const ServiceName = "storefront"

// slotsMaxAge is the browser cache lifetime of slot listings, in seconds.
const slotsMaxAge = 60

// RouterConfig holds the tunables of the HTTP surface.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	Device         middleware.DeviceConfig
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	PprofCIDRs     []string
}

// NewRouter creates a chi router with all storefront routes registered.
// Background work started by middleware stops when ctx is cancelled.
func NewRouter(ctx context.Context, h *Handler, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.DeviceID(cfg.Device))
		r.Use(middleware.RequestLogger(logger))
		if cfg.RateLimitRPS > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		}

		// Slots depend on the product only.
		r.With(middleware.CacheControl(slotsMaxAge)).Get("/products/{id}/slots", h.GetSlots)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(ContentType("application/json"))

			r.Get("/session", h.GetSession)
			r.Get("/session/me", h.GetProfile)
			r.Get("/session/callback", h.Callback)
			r.Post("/session/logout", h.Logout)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddItem)
				r.Delete("/items/{cartId}", h.RemoveItem)
				r.Patch("/items/{cartId}", h.UpdateItem)
				r.Patch("/items/{cartId}/quantity", h.UpdateQuantity)
				r.Put("/items/{cartId}/slots/{slot}", h.SelectFragrance)
			})

			r.Route("/direct-cart", func(r chi.Router) {
				r.Get("/", h.GetDirectCart)
				r.Post("/", h.BuyNow)
				r.Delete("/", h.ClearDirectCart)
			})
			r.Post("/orders/{orderId}/reorder", h.Reorder)

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", h.GetCheckout)
				r.Post("/begin", h.BeginCheckout)
				r.Post("/shipping-step", h.ProceedToShipping)
				r.Post("/submit", h.SubmitOrder)
				r.Post("/exit", h.ExitCheckout)
			})

			r.Post("/products/{id}/ratings", h.RateProduct)
			r.Post("/enquiries", h.SubmitEnquiry)
			r.Get("/feedback", h.ListFeedback)
		})

		r.With(middleware.NoStore, ContentType("multipart/form-data")).Post("/testimonials", h.SubmitTestimonial)
	})

	return r
}
