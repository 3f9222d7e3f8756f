package http

import (
	"log/slog"
	"net/http"

	"github.com/itsobito471-bot/thebottlestories/internal/service"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/httputil"
	"github.com/itsobito471-bot/thebottlestories/pkg/middleware"
	"github.com/itsobito471-bot/thebottlestories/pkg/validator"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Handler serves the storefront API for the device named by each request.
type Handler struct {
	sessions *service.Registry
	catalog  *service.Catalog
	logger   *slog.Logger
}

// NewHandler creates the storefront HTTP handler.
func NewHandler(sessions *service.Registry, catalog *service.Catalog, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, catalog: catalog, logger: logger}
}

// session resolves the caller's session. On failure the error response has
// been written and ok is false.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (s *service.Session, ok bool) {
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		h.writeError(w, r, apperrors.InvalidInput("device id is required"))
		return nil, false
	}
	s, _, err := h.sessions.Get(r.Context(), deviceID, "")
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}

// decode reads a bounded JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return validator.DecodeAndValidate(r, dst)
}
