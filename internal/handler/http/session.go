package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/httputil"
	"github.com/itsobito471-bot/thebottlestories/pkg/middleware"
)

// SessionView summarises a device session.
type SessionView struct {
	DeviceID    string          `json:"deviceId"`
	SignedIn    bool            `json:"signedIn"`
	User        *domain.User    `json:"user,omitempty"`
	Initialized bool            `json:"initialized"`
	CartCount   int             `json:"cartCount"`
	CartTotal   decimal.Decimal `json:"cartTotal"`
}

// GetSession handles GET /api/v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	user, err := s.Auth.User(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "read cached profile failed", slog.String("error", err.Error()))
	}
	httputil.WriteData(w, http.StatusOK, SessionView{
		DeviceID:    s.DeviceID,
		SignedIn:    s.Auth.Token(r.Context()) != "",
		User:        user,
		Initialized: s.Cart.Initialized(),
		CartCount:   s.Cart.CartCount(),
		CartTotal:   s.Cart.CartTotal(),
	})
}

// GetProfile handles GET /api/v1/session/me
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	user, err := s.Auth.RefreshProfile(r.Context(), s.API)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// Callback handles GET /api/v1/session/callback?token=&user=&next=
// It completes a social login and redirects to next with the callback
// parameters removed.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("token") == "" {
		h.writeError(w, r, apperrors.InvalidInput("token is required"))
		return
	}
	next, err := safeRedirect(q.Get("next"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	target, err := url.Parse(next)
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("malformed next location"))
		return
	}
	tq := target.Query()
	for _, key := range []string{"token", "user", "error"} {
		if v := q.Get(key); v != "" {
			tq.Set(key, v)
		}
	}
	target.RawQuery = tq.Encode()

	s, cleaned, err := h.sessions.Get(r.Context(), middleware.DeviceIDFromContext(r.Context()), target.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if s.Auth.Token(r.Context()) == "" {
		h.writeError(w, r, apperrors.ServiceUnavailable("sign-in could not be completed, please try again"))
		return
	}
	http.Redirect(w, r, cleaned, http.StatusSeeOther)
}

// safeRedirect accepts only same-site absolute paths.
func safeRedirect(next string) (string, error) {
	if next == "" {
		return "/", nil
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "", apperrors.InvalidInput("next must be a path on this site")
	}
	return next, nil
}

// Logout handles POST /api/v1/session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), middleware.DeviceIDFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
