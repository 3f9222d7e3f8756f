package http

import (
	"net/http"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	"github.com/itsobito471-bot/thebottlestories/internal/service"
	"github.com/itsobito471-bot/thebottlestories/pkg/httputil"
)

// BeginCheckoutRequest picks the cart to check out.
type BeginCheckoutRequest struct {
	Mode service.Mode `json:"mode" validate:"required,oneof=cart direct"`
}

// GetCheckout handles GET /api/v1/checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, s.Checkout.State())
}

// BeginCheckout handles POST /api/v1/checkout/begin
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req BeginCheckoutRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := s.Checkout.Begin(r.Context(), req.Mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, st)
}

// ProceedToShipping handles POST /api/v1/checkout/shipping-step
func (h *Handler) ProceedToShipping(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.Checkout.ProceedToShipping()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, st)
}

// SubmitOrder handles POST /api/v1/checkout/submit
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var info domain.ShippingInfo
	if err := decode(w, r, &info); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := s.Checkout.Submit(r.Context(), info)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, order)
}

// ExitCheckout handles POST /api/v1/checkout/exit
func (h *Handler) ExitCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, s.Checkout.Exit())
}
