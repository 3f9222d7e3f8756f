package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	"github.com/itsobito471-bot/thebottlestories/internal/repository"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/tracing"
)

// MaxQuantityPerItem caps the quantity of a single cart line.
const MaxQuantityPerItem = 100

// Reconciliation outcomes reported in logs, metrics and events.
const (
	OutcomeGuest       = "guest"
	OutcomeMerged      = "merged"
	OutcomeFetched     = "fetched"
	OutcomeMergeFailed = "merge_failed"
	OutcomeFetchFailed = "fetch_failed"
)

// CartAPI is the server-cart part of the upstream API.
type CartAPI interface {
	FetchCart(ctx context.Context) (domain.Cart, error)
	MergeCart(ctx context.Context, items domain.Cart) (domain.Cart, error)
	SaveCart(ctx context.Context, items domain.Cart) error
}

// TokenSource yields the current session token, or "".
type TokenSource interface {
	Token(ctx context.Context) string
}

// SessionAuth is the auth state a cart store reconciles against.
type SessionAuth interface {
	TokenSource
	CaptureCallback(ctx context.Context, location string) (string, bool, error)
}

// Events receives storefront domain events. Delivery is best effort.
type Events interface {
	CartReconciled(ctx context.Context, deviceID, outcome string, cart domain.Cart) error
	OrderPlaced(ctx context.Context, deviceID, mode string, order *domain.Order, items domain.Cart) error
	CheckoutFailed(ctx context.Context, deviceID, mode, reason string) error
}

// AddOptions configures an addition.
type AddOptions struct {
	Fragrances []domain.SelectedFragrance
	Message    string
}

// MetaPatch replaces the fields that are set.
type MetaPatch struct {
	SelectedFragrances *[]domain.SelectedFragrance `json:"selectedFragrances,omitempty"`
	CustomMessage      *string                     `json:"customMessage,omitempty"`
}

// CartStoreConfig tunes auto-save.
type CartStoreConfig struct {
	SaveDebounce time.Duration
	SaveTimeout  time.Duration
}

// CartStore holds one device's persistent cart and its direct ("buy now")
// cart. Mutations are serialised; persistence happens on a background
// worker and never under the lock.
type CartStore struct {
	mu          sync.Mutex
	cart        domain.Cart
	direct      domain.Cart
	initialized bool
	syncing     bool
	started     bool
	// directTouched records direct-cart mutations made while syncing.
	directTouched bool

	deviceID    string
	kv          repository.KV
	api         CartAPI
	auth        SessionAuth
	events      Events
	logger      *slog.Logger
	saver       *autosaver
	baseCtx     context.Context
	saveTimeout time.Duration
}

// NewCartStore creates an uninitialised store and starts its save worker.
func NewCartStore(deviceID string, kv repository.KV, api CartAPI, auth SessionAuth, events Events, logger *slog.Logger, cfg CartStoreConfig) *CartStore {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	s := &CartStore{
		cart:        domain.Cart{},
		direct:      domain.Cart{},
		deviceID:    deviceID,
		kv:          kv,
		api:         api,
		auth:        auth,
		events:      events,
		logger:      logger.With(slog.String("device_id", deviceID)),
		baseCtx:     context.Background(),
		saveTimeout: cfg.SaveTimeout,
	}
	s.saver = newAutosaver(cfg.SaveDebounce, s.persist)
	return s
}

// Init restores the direct cart, captures a login callback carried by
// location and reconciles the persistent cart with the server. It returns
// location without the callback parameters. Init runs once; later calls
// return location unchanged. The store is initialised even when Init
// returns an error.
func (s *CartStore) Init(ctx context.Context, location string) (string, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return location, nil
	}
	s.started = true
	s.syncing = true
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	var direct domain.Cart
	if _, err := repository.GetJSON(ctx, s.kv, repository.KeyDirectCart, &direct); err != nil {
		s.logger.WarnContext(ctx, "ignoring unreadable direct cart", slog.String("error", err.Error()))
		direct = nil
	}
	s.mu.Lock()
	if !s.directTouched {
		s.direct = normalize(direct)
	}
	s.mu.Unlock()

	cleaned, captured, callbackErr := s.auth.CaptureCallback(ctx, location)
	if callbackErr != nil {
		s.logger.ErrorContext(ctx, "capture login callback failed", slog.String("error", callbackErr.Error()))
	} else if captured {
		s.logger.InfoContext(ctx, "session token captured from login callback")
	}

	cart, outcome := s.reconcile(ctx)
	reconciliationTotal.WithLabelValues(outcome).Inc()

	s.mu.Lock()
	s.cart = normalize(cart)
	s.syncing = false
	s.initialized = true
	touched := s.directTouched
	s.directTouched = false
	if touched {
		s.scheduleLocked(false, true)
	}
	snap := s.cart.Clone()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "cart reconciled",
		slog.String("outcome", outcome),
		slog.Int("items", len(snap)),
	)
	if err := s.events.CartReconciled(ctx, s.deviceID, outcome, snap); err != nil {
		s.logger.WarnContext(ctx, "publish cart reconciled event failed", slog.String("error", err.Error()))
	}
	return cleaned, callbackErr
}

func (s *CartStore) reconcile(ctx context.Context) (domain.Cart, string) {
	ctx, span := tracing.StartSpan(ctx, "cart.reconcile")
	cart, outcome := s.resolveCart(ctx)
	span.SetAttributes(
		attribute.String("cart.outcome", outcome),
		attribute.Int("cart.items", len(cart)),
	)
	tracing.End(span, nil)
	return cart, outcome
}

// resolveCart decides the session-start cart. Failures degrade to an empty
// cart. A failed merge keeps the guest key for the next session.
func (s *CartStore) resolveCart(ctx context.Context) (domain.Cart, string) {
	var guest domain.Cart
	if _, err := repository.GetJSON(ctx, s.kv, repository.KeyCart, &guest); err != nil {
		s.logger.WarnContext(ctx, "ignoring unreadable guest cart", slog.String("error", err.Error()))
		guest = nil
	}

	if s.auth.Token(ctx) == "" {
		return guest, OutcomeGuest
	}

	if len(guest) > 0 {
		merged, err := s.api.MergeCart(ctx, guest)
		if err != nil {
			s.logger.ErrorContext(ctx, "merge guest cart failed", slog.String("error", err.Error()))
			return nil, OutcomeMergeFailed
		}
		if err := s.kv.Delete(ctx, repository.KeyCart); err != nil {
			s.logger.WarnContext(ctx, "delete merged guest cart failed", slog.String("error", err.Error()))
		}
		return merged, OutcomeMerged
	}

	server, err := s.api.FetchCart(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "fetch server cart failed", slog.String("error", err.Error()))
		return nil, OutcomeFetchFailed
	}
	return server, OutcomeFetched
}

// normalize gives every item a cart id and a quantity of at least one.
func normalize(items domain.Cart) domain.Cart {
	out := items.Clone()
	for i := range out {
		if out[i].CartID == "" {
			out[i].CartID = uuid.NewString()
		}
		out[i].Quantity = clampQuantity(out[i].Quantity)
	}
	return out
}

func clampQuantity(q int) int {
	return min(max(q, 1), MaxQuantityPerItem)
}

// scheduleLocked queues a save of the current state. Callers hold s.mu.
// Before initialisation nothing is saved; while syncing only direct-cart
// changes are remembered, to be saved once reconciliation ends.
func (s *CartStore) scheduleLocked(cartDirty, directDirty bool) {
	s.enqueueLocked(snapshot{cartDirty: cartDirty, directDirty: directDirty})
}

func (s *CartStore) enqueueLocked(snap snapshot) {
	if s.syncing {
		s.directTouched = s.directTouched || snap.directDirty
		return
	}
	if !s.initialized {
		return
	}
	snap.cart = s.cart.Clone()
	snap.direct = s.direct.Clone()
	s.saver.schedule(snap)
}

// persist writes one snapshot. It runs on the save worker.
func (s *CartStore) persist(snap snapshot) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(base, s.saveTimeout)
	defer cancel()

	if snap.cartDirty {
		target := "device"
		var err error
		if s.auth.Token(ctx) != "" {
			target = "server"
			err = s.api.SaveCart(ctx, snap.cart)
			if snap.cartCleared {
				s.recordSave(ctx, "device", "cart", s.kv.Delete(ctx, repository.KeyCart))
			}
		} else {
			err = writeCart(ctx, s.kv, repository.KeyCart, snap.cart)
		}
		s.recordSave(ctx, target, "cart", err)
	}
	if snap.directDirty {
		s.recordSave(ctx, "device", "direct-cart", writeCart(ctx, s.kv, repository.KeyDirectCart, snap.direct))
	}
}

func (s *CartStore) recordSave(ctx context.Context, target, which string, err error) {
	if err != nil {
		autosaveTotal.WithLabelValues(target, "error").Inc()
		s.logger.ErrorContext(ctx, "cart auto-save failed",
			slog.String("target", target),
			slog.String("cart", which),
			slog.String("error", err.Error()),
		)
		return
	}
	autosaveTotal.WithLabelValues(target, "ok").Inc()
}

// writeCart stores items under key, deleting the key for an empty cart.
func writeCart(ctx context.Context, kv repository.KV, key string, items domain.Cart) error {
	if len(items) == 0 {
		return kv.Delete(ctx, key)
	}
	return repository.SetJSON(ctx, kv, key, items)
}

// AddToCart adds qty of product to the persistent cart. An item with the same
// product and the same fragrance selection has its quantity increased
// instead. The resulting line is returned.
func (s *CartStore) AddToCart(product domain.Product, qty int, opts AddOptions) (domain.CartItem, error) {
	if product.ID == "" {
		return domain.CartItem{}, apperrors.InvalidInput("product id is required")
	}
	if qty <= 0 {
		qty = 1
	}
	if qty > MaxQuantityPerItem {
		return domain.CartItem{}, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if err := domain.CheckMessage(product, opts.Message); err != nil {
		return domain.CartItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.MergeKey(product.ID, opts.Fragrances)
	for i := range s.cart {
		if s.cart[i].MergeKey() == key {
			s.cart[i].Quantity = clampQuantity(s.cart[i].Quantity + qty)
			s.scheduleLocked(true, false)
			return cloneItem(s.cart[i]), nil
		}
	}

	item := domain.CartItem{
		Product:            product,
		CartID:             uuid.NewString(),
		Quantity:           qty,
		SelectedFragrances: append([]domain.SelectedFragrance(nil), opts.Fragrances...),
		CustomMessage:      opts.Message,
	}
	s.cart = append(s.cart, item)
	s.scheduleLocked(true, false)
	return cloneItem(item), nil
}

func cloneItem(item domain.CartItem) domain.CartItem {
	return domain.Cart{item}.Clone()[0]
}

// locate finds cartID in the persistent cart, then the direct cart. Callers
// hold s.mu.
func (s *CartStore) locate(cartID string) (list *domain.Cart, idx int, isDirect bool) {
	if i := s.cart.IndexOf(cartID); i >= 0 {
		return &s.cart, i, false
	}
	if i := s.direct.IndexOf(cartID); i >= 0 {
		return &s.direct, i, true
	}
	return nil, -1, false
}

func (s *CartStore) touched(isDirect bool) {
	s.scheduleLocked(!isDirect, isDirect)
}

// RemoveFromCart deletes the line with cartID.
func (s *CartStore) RemoveFromCart(cartID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, i, isDirect := s.locate(cartID)
	if list == nil {
		return false
	}
	*list = append((*list)[:i:i], (*list)[i+1:]...)
	s.touched(isDirect)
	return true
}

// UpdateQuantity adds delta to the line's quantity, never going below one.
func (s *CartStore) UpdateQuantity(cartID string, delta int) (domain.CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, i, isDirect := s.locate(cartID)
	if list == nil {
		return domain.CartItem{}, false
	}
	(*list)[i].Quantity = clampQuantity((*list)[i].Quantity + delta)
	s.touched(isDirect)
	return cloneItem((*list)[i]), true
}

// UpdateItemMetaData applies patch to the line with cartID. Replacement
// selections and a gift message are checked against the line's product
// snapshot the same way AddToCart and SelectFragrance check them.
func (s *CartStore) UpdateItemMetaData(cartID string, patch MetaPatch) (domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, i, isDirect := s.locate(cartID)
	if list == nil {
		return domain.CartItem{}, apperrors.NotFound("cart item", cartID)
	}
	item := &(*list)[i]

	selections := item.SelectedFragrances
	if patch.SelectedFragrances != nil {
		var err error
		selections, err = domain.ReplaceSelections(item.Product, item.SelectedFragrances, *patch.SelectedFragrances)
		if err != nil {
			return domain.CartItem{}, err
		}
	}
	message := item.CustomMessage
	if patch.CustomMessage != nil {
		if err := domain.CheckMessage(item.Product, *patch.CustomMessage); err != nil {
			return domain.CartItem{}, err
		}
		message = *patch.CustomMessage
	}

	item.SelectedFragrances = selections
	item.CustomMessage = message
	s.touched(isDirect)
	return cloneItem(*item), nil
}

// SelectFragrance binds fragranceID to a slot of the line with cartID,
// checking the choice against the line's product snapshot.
func (s *CartStore) SelectFragrance(cartID string, slotIndex int, fragranceID string) (domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, i, isDirect := s.locate(cartID)
	if list == nil {
		return domain.CartItem{}, apperrors.NotFound("cart item", cartID)
	}
	item := &(*list)[i]
	selections, err := domain.BindSelection(item.Product, item.SelectedFragrances, slotIndex, fragranceID)
	if err != nil {
		return domain.CartItem{}, err
	}
	item.SelectedFragrances = selections
	s.touched(isDirect)
	return cloneItem(*item), nil
}

// ClearCart empties the persistent cart and removes it from the device,
// including a guest cart kept back by a failed merge.
func (s *CartStore) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = domain.Cart{}
	s.enqueueLocked(snapshot{cartDirty: true, cartCleared: true})
}

// RemoveItems deletes the persistent-cart lines with the given cart ids and
// returns how many were removed. Emptying the cart this way clears it as
// ClearCart does.
func (s *CartStore) RemoveItems(cartIDs ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.cart)
	s.cart = slices.DeleteFunc(s.cart, func(it domain.CartItem) bool {
		return slices.Contains(cartIDs, it.CartID)
	})
	removed := before - len(s.cart)
	if removed > 0 {
		s.enqueueLocked(snapshot{cartDirty: true, cartCleared: len(s.cart) == 0})
	}
	return removed
}

// ClearDirectCart empties the direct cart.
func (s *CartStore) ClearDirectCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = domain.Cart{}
	s.scheduleLocked(false, true)
}

// StartDirectCheckout replaces the direct cart with items.
func (s *CartStore) StartDirectCheckout(items domain.Cart) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = normalize(items)
	s.scheduleLocked(false, true)
	return s.direct.Clone()
}

// Cart returns a copy of the persistent cart.
func (s *CartStore) Cart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// DirectCart returns a copy of the direct cart.
func (s *CartStore) DirectCart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct.Clone()
}

// CartTotal is the persistent cart's Σ price × quantity.
func (s *CartStore) CartTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total()
}

// CartCount is the persistent cart's Σ quantity.
func (s *CartStore) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Count()
}

// Initialized reports whether reconciliation has finished.
func (s *CartStore) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Flush waits until every scheduled save has completed.
func (s *CartStore) Flush(ctx context.Context) error {
	return s.saver.flush(ctx)
}

// Dispose saves pending changes and stops the save worker. Later mutations
// are kept in memory only.
func (s *CartStore) Dispose(ctx context.Context) error {
	if err := s.saver.close(ctx); err != nil {
		s.logger.WarnContext(ctx, "cart store disposed before pending save finished", slog.String("error", err.Error()))
		return fmt.Errorf("dispose cart store: %w", err)
	}
	return nil
}
