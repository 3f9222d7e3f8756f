package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	"github.com/itsobito471-bot/thebottlestories/internal/service"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/httputil"
)

// --- Request DTOs ---

// AddItemRequest adds a configured product. Fragrances are fragrance ids by
// slot index; an empty id leaves the slot unfilled.
type AddItemRequest struct {
	ProductID  string   `json:"productId" validate:"required"`
	Quantity   int      `json:"quantity" validate:"gte=0,lte=100"`
	Fragrances []string `json:"fragrances"`
	Message    string   `json:"message" validate:"max=500"`
}

// UpdateQuantityRequest changes a quantity by Delta.
type UpdateQuantityRequest struct {
	Delta int `json:"delta"`
}

// SelectFragranceRequest fills one slot.
type SelectFragranceRequest struct {
	FragranceID string `json:"fragranceId" validate:"required"`
}

// CartView is a cart with its totals.
type CartView struct {
	Items domain.Cart     `json:"items"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

func viewOf(items domain.Cart) CartView {
	return CartView{Items: items, Total: items.Total(), Count: items.Count()}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, viewOf(s.Cart.Cart()))
}

// ClearCart handles DELETE /api/v1/cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Cart.ClearCart()
	httputil.WriteData(w, http.StatusOK, viewOf(s.Cart.Cart()))
}

// buildItem loads the product and binds the requested fragrances.
func (h *Handler) buildItem(r *http.Request, req AddItemRequest) (domain.Product, []domain.SelectedFragrance, error) {
	p, err := h.catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		return domain.Product{}, nil, err
	}
	if err := domain.CheckMessage(*p, req.Message); err != nil {
		return domain.Product{}, nil, err
	}
	selections, err := domain.BuildSelections(*p, req.Fragrances)
	if err != nil {
		return domain.Product{}, nil, err
	}
	return *p, selections, nil
}

// AddItem handles POST /api/v1/cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AddItemRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, selections, err := h.buildItem(r, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := s.Cart.AddToCart(product, req.Quantity, service.AddOptions{Fragrances: selections, Message: req.Message})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, item)
}

// RemoveItem handles DELETE /api/v1/cart/items/{cartId}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	cartID := chi.URLParam(r, "cartId")
	if !s.Cart.RemoveFromCart(cartID) {
		h.writeError(w, r, apperrors.NotFound("cart item", cartID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateQuantity handles PATCH /api/v1/cart/items/{cartId}/quantity
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cartID := chi.URLParam(r, "cartId")
	item, found := s.Cart.UpdateQuantity(cartID, req.Delta)
	if !found {
		h.writeError(w, r, apperrors.NotFound("cart item", cartID))
		return
	}
	httputil.WriteData(w, http.StatusOK, item)
}

// UpdateItem handles PATCH /api/v1/cart/items/{cartId}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch service.MetaPatch
	if err := decode(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := s.Cart.UpdateItemMetaData(chi.URLParam(r, "cartId"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, item)
}

// SelectFragrance handles PUT /api/v1/cart/items/{cartId}/slots/{slot}
func (h *Handler) SelectFragrance(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	slot, ok := httputil.ParseIntParam(w, "slot", chi.URLParam(r, "slot"))
	if !ok {
		return
	}
	var req SelectFragranceRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := s.Cart.SelectFragrance(chi.URLParam(r, "cartId"), slot, req.FragranceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, item)
}

// GetDirectCart handles GET /api/v1/direct-cart
func (h *Handler) GetDirectCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, viewOf(s.Cart.DirectCart()))
}

// BuyNow handles POST /api/v1/direct-cart
func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AddItemRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, selections, err := h.buildItem(r, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := s.Cart.StartDirectCheckout(domain.Cart{{
		Product:            product,
		Quantity:           req.Quantity,
		SelectedFragrances: selections,
		CustomMessage:      req.Message,
	}})
	httputil.WriteData(w, http.StatusCreated, viewOf(items))
}

// ClearDirectCart handles DELETE /api/v1/direct-cart
func (h *Handler) ClearDirectCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Cart.ClearDirectCart()
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles POST /api/v1/orders/{orderId}/reorder
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	items, err := s.Checkout.OrderAgain(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, viewOf(items))
}

// GetSlots handles GET /api/v1/products/{id}/slots
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.catalog.Slots(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, slots)
}
