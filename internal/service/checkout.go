package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/tracing"
	"github.com/itsobito471-bot/thebottlestories/pkg/validator"
)

// Mode selects which cart a checkout draws from.
type Mode string

const (
	ModeCart   Mode = "cart"
	ModeDirect Mode = "direct"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeCart || m == ModeDirect
}

// Step is a checkout state.
type Step string

const (
	StepBrowsing   Step = "browsing"
	StepReviewing  Step = "reviewing"
	StepShipping   Step = "shipping"
	StepSubmitting Step = "submitting"
	StepSucceeded  Step = "succeeded"
	StepFailed     Step = "failed"
)

// Validation is the outcome of ValidateCart. CartID names the first
// incomplete item.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	CartID  string `json:"cartId,omitempty"`
}

// ValidateCart checks that every item has all of its slots filled.
func ValidateCart(items domain.Cart) Validation {
	for _, item := range items {
		if !domain.IsComplete(item.Product, item.SelectedFragrances) {
			return Validation{
				Message: "Please select all fragrances for " + item.Name,
				CartID:  item.CartID,
			}
		}
	}
	return Validation{Valid: true}
}

// ValidateShipping checks that every required address field is present.
func ValidateShipping(info domain.ShippingInfo) error {
	return validator.Validate(info)
}

// PricingPolicy prices shipping for a subtotal.
type PricingPolicy interface {
	Shipping(subtotal decimal.Decimal) decimal.Decimal
}

// ThresholdShipping charges FeeAbove for subtotals over Threshold and
// FeeBelow otherwise.
type ThresholdShipping struct {
	Threshold decimal.Decimal
	FeeBelow  decimal.Decimal
	FeeAbove  decimal.Decimal
}

// DefaultShipping ships every order for free.
func DefaultShipping() ThresholdShipping {
	return ThresholdShipping{Threshold: decimal.NewFromInt(3000)}
}

func (p ThresholdShipping) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.Threshold) {
		return p.FeeAbove
	}
	return p.FeeBelow
}

// Totals is the price breakdown shown at checkout.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals prices items under policy.
func ComputeTotals(items domain.Cart, policy PricingPolicy) Totals {
	subtotal := items.Total()
	shipping := policy.Shipping(subtotal)
	return Totals{Subtotal: subtotal, Shipping: shipping, Total: subtotal.Add(shipping)}
}

// OrderAPI is the order part of the upstream API.
type OrderAPI interface {
	SubmitOrder(ctx context.Context, in domain.OrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListFragrances(ctx context.Context) ([]domain.Fragrance, error)
}

// CheckoutState is a read-only view of a checkout.
type CheckoutState struct {
	Step       Step          `json:"step"`
	Mode       Mode          `json:"mode,omitempty"`
	Items      domain.Cart   `json:"items"`
	Totals     Totals        `json:"totals"`
	Validation Validation    `json:"validation"`
	LastError  string        `json:"lastError,omitempty"`
	Order      *domain.Order `json:"order,omitempty"`
}

// CheckoutConfig tunes a checkout flow.
type CheckoutConfig struct {
	Pricing     PricingPolicy
	StrictStock bool
}

// CheckoutFlow drives one session's checkout:
// browsing → reviewing → shipping → submitting → succeeded | failed.
// A failed submission may be retried from the failed step.
type CheckoutFlow struct {
	mu        sync.Mutex
	step      Step
	mode      Mode
	lastError string
	order     *domain.Order

	deviceID string
	store    *CartStore
	tokens   TokenSource
	api      OrderAPI
	events   Events
	cfg      CheckoutConfig
	logger   *slog.Logger
}

// NewCheckoutFlow creates a flow in the browsing step.
func NewCheckoutFlow(deviceID string, store *CartStore, tokens TokenSource, api OrderAPI, events Events, logger *slog.Logger, cfg CheckoutConfig) *CheckoutFlow {
	if cfg.Pricing == nil {
		cfg.Pricing = DefaultShipping()
	}
	return &CheckoutFlow{
		step:     StepBrowsing,
		deviceID: deviceID,
		store:    store,
		tokens:   tokens,
		api:      api,
		events:   events,
		cfg:      cfg,
		logger:   logger.With(slog.String("device_id", deviceID)),
	}
}

func (f *CheckoutFlow) items(mode Mode) domain.Cart {
	if mode == ModeDirect {
		return f.store.DirectCart()
	}
	return f.store.Cart()
}

// State returns the current step with the active items priced.
func (f *CheckoutFlow) State() CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *CheckoutFlow) stateLocked() CheckoutState {
	st := CheckoutState{
		Step:      f.step,
		Mode:      f.mode,
		Items:     domain.Cart{},
		LastError: f.lastError,
		Order:     f.order,
	}
	if f.mode != "" {
		st.Items = f.items(f.mode)
	}
	st.Totals = ComputeTotals(st.Items, f.cfg.Pricing)
	st.Validation = ValidateCart(st.Items)
	return st
}

// Begin enters review for mode. It requires a signed-in shopper and a
// non-empty cart; otherwise the flow is unchanged.
func (f *CheckoutFlow) Begin(ctx context.Context, mode Mode) (CheckoutState, error) {
	if !mode.Valid() {
		return CheckoutState{}, apperrors.InvalidInput(fmt.Sprintf("unknown checkout mode %q", mode))
	}
	if f.tokens.Token(ctx) == "" {
		return CheckoutState{}, apperrors.LoginRequired("please sign in to check out")
	}
	if len(f.items(mode)) == 0 {
		return CheckoutState{}, apperrors.InvalidInput("your cart is empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepSubmitting {
		return CheckoutState{}, apperrors.Conflict("an order is being submitted")
	}
	f.step = StepReviewing
	f.mode = mode
	f.lastError = ""
	f.order = nil
	return f.stateLocked(), nil
}

// ProceedToShipping moves from review to the shipping step once every item
// is fully configured.
func (f *CheckoutFlow) ProceedToShipping() (CheckoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case StepReviewing, StepShipping, StepFailed:
	default:
		return CheckoutState{}, apperrors.Conflict("checkout has not started")
	}
	if v := ValidateCart(f.items(f.mode)); !v.Valid {
		f.step = StepReviewing
		return CheckoutState{}, apperrors.IncompleteSelection(v.Message)
	}
	f.step = StepShipping
	return f.stateLocked(), nil
}

// Submit places the order. On success the submitted lines leave the active
// cart; on failure the cart is kept and the API's message is returned unchanged.
func (f *CheckoutFlow) Submit(ctx context.Context, info domain.ShippingInfo) (*domain.Order, error) {
	f.mu.Lock()
	switch f.step {
	case StepShipping, StepFailed:
	case StepSubmitting:
		f.mu.Unlock()
		return nil, apperrors.Conflict("an order is already being submitted")
	default:
		f.mu.Unlock()
		return nil, apperrors.Conflict("checkout is not at the shipping step")
	}
	if err := ValidateShipping(info); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	mode := f.mode
	items := f.items(mode)
	if len(items) == 0 {
		f.mu.Unlock()
		return nil, apperrors.InvalidInput("your cart is empty")
	}
	if v := ValidateCart(items); !v.Valid {
		f.step = StepReviewing
		f.mu.Unlock()
		return nil, apperrors.IncompleteSelection(v.Message)
	}
	f.step = StepSubmitting
	f.lastError = ""
	f.mu.Unlock()

	totals := ComputeTotals(items, f.cfg.Pricing)
	order, err := f.placeOrder(ctx, mode, items, domain.OrderRequest{
		Items:           items,
		ShippingAddress: info,
		TotalAmount:     totals.Total,
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if err != nil {
		f.fail(ctx, mode, err)
		return nil, err
	}

	if mode == ModeDirect {
		f.store.ClearDirectCart()
	} else {
		f.store.RemoveItems(cartIDs(items)...)
	}

	f.mu.Lock()
	f.step = StepSucceeded
	f.order = order
	f.mu.Unlock()

	ordersTotal.WithLabelValues(string(mode), "ok").Inc()
	f.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("mode", string(mode)),
		slog.String("total", totals.Total.String()),
	)
	if err := f.events.OrderPlaced(ctx, f.deviceID, string(mode), order, items); err != nil {
		f.logger.WarnContext(ctx, "publish order placed event failed", slog.String("error", err.Error()))
	}
	return order, nil
}

func cartIDs(items domain.Cart) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.CartID
	}
	return ids
}

// placeOrder re-checks stock when configured and sends the order.
func (f *CheckoutFlow) placeOrder(ctx context.Context, mode Mode, items domain.Cart, req domain.OrderRequest) (*domain.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "checkout.place_order",
		attribute.String("checkout.mode", string(mode)),
		attribute.Int("checkout.items", len(items)),
	)
	if f.cfg.StrictStock {
		if err := f.checkStock(ctx, items); err != nil {
			tracing.End(span, err)
			return nil, err
		}
	}
	order, err := f.api.SubmitOrder(ctx, req)
	if err == nil {
		span.SetAttributes(attribute.String("order.id", order.ID))
	}
	tracing.End(span, err)
	return order, err
}

func (f *CheckoutFlow) fail(ctx context.Context, mode Mode, err error) {
	reason := apperrors.MessageOf(err)

	f.mu.Lock()
	f.step = StepFailed
	f.lastError = reason
	f.mu.Unlock()

	ordersTotal.WithLabelValues(string(mode), "error").Inc()
	f.logger.WarnContext(ctx, "order submission failed",
		slog.String("mode", string(mode)),
		slog.String("error", err.Error()),
	)
	if perr := f.events.CheckoutFailed(ctx, f.deviceID, string(mode), reason); perr != nil {
		f.logger.WarnContext(ctx, "publish checkout failed event failed", slog.String("error", perr.Error()))
	}
}

// checkStock rejects items bound to a fragrance the catalog now reports out
// of stock. Fragrances unknown to the catalog pass, and an unreachable
// catalog leaves the decision to the order API.
func (f *CheckoutFlow) checkStock(ctx context.Context, items domain.Cart) error {
	catalog, err := f.api.ListFragrances(ctx)
	if err != nil {
		f.logger.WarnContext(ctx, "stock re-check skipped", slog.String("error", err.Error()))
		return nil
	}
	inStock := make(map[string]bool, len(catalog))
	for _, fr := range catalog {
		inStock[fr.ID] = fr.InStock
	}
	for _, item := range items {
		for _, sel := range item.SelectedFragrances {
			if !sel.IsSet() {
				continue
			}
			if ok, known := inStock[sel.FragranceID]; known && !ok {
				name := sel.FragranceName
				if name == "" {
					name = sel.FragranceID
				}
				return apperrors.InvalidInput(fmt.Sprintf("%s in %s is out of stock", name, item.Name))
			}
		}
	}
	return nil
}

// Exit leaves checkout. Leaving a direct checkout discards the direct cart.
func (f *CheckoutFlow) Exit() CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step == StepSubmitting {
		return f.stateLocked()
	}
	if f.mode == ModeDirect {
		f.store.ClearDirectCart()
	}
	f.step = StepBrowsing
	f.mode = ""
	f.lastError = ""
	f.order = nil
	return f.stateLocked()
}

// OrderAgain loads a past order into the direct cart with fresh cart ids.
// Lines whose product was sent unpopulated are completed from the catalog.
func (f *CheckoutFlow) OrderAgain(ctx context.Context, orderID string) (domain.Cart, error) {
	if f.tokens.Token(ctx) == "" {
		return nil, apperrors.LoginRequired("please sign in to order again")
	}
	order, err := f.api.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items := make(domain.Cart, 0, len(order.Items))
	for _, line := range order.Items {
		product := line.Product.Product
		if product == nil || product.Name == "" {
			if line.Product.ID == "" {
				continue
			}
			if product, err = f.api.GetProduct(ctx, line.Product.ID); err != nil {
				return nil, fmt.Errorf("load product %s: %w", line.Product.ID, err)
			}
		}
		items = append(items, domain.CartItem{
			Product:            *product,
			Quantity:           line.Quantity,
			SelectedFragrances: line.SelectedFragrances,
			CustomMessage:      line.CustomMessage,
		})
	}
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("order has no items that can be ordered again")
	}
	return f.store.StartDirectCheckout(items), nil
}
