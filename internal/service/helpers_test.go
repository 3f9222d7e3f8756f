package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	"github.com/itsobito471-bot/thebottlestories/internal/event"
	"github.com/itsobito471-bot/thebottlestories/internal/repository"
	"github.com/itsobito471-bot/thebottlestories/internal/repository/memory"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// --- Fake upstream API ---

type fakeAPI struct {
	mu sync.Mutex

	serverCart  domain.Cart
	fetchErr    error
	mergeErr    error
	saveErr     error
	submitErr   error
	fragErr     error
	feedbackErr error

	// mergeGate, when set, holds MergeCart until it is closed.
	mergeGate chan struct{}
	// onSubmit runs inside SubmitOrder before the order is accepted.
	onSubmit func()

	fetches    int
	merged     []domain.Cart
	saved      []domain.Cart
	submitted  []domain.OrderRequest
	orders     map[string]*domain.Order
	products   map[string]*domain.Product
	fragrances []domain.Fragrance
	ratings    []domain.Rating
	enquiries  []domain.Enquiry
	user       *domain.User
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		orders:   make(map[string]*domain.Order),
		products: make(map[string]*domain.Product),
	}
}

func (f *fakeAPI) FetchCart(context.Context) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return normalize(f.serverCart), nil
}

func (f *fakeAPI) MergeCart(_ context.Context, items domain.Cart) (domain.Cart, error) {
	f.mu.Lock()
	gate := f.mergeGate
	f.merged = append(f.merged, items.Clone())
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	out := append(f.serverCart.Clone(), items.Clone()...)
	return normalize(out), nil
}

func (f *fakeAPI) SaveCart(_ context.Context, items domain.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, items.Clone())
	return nil
}

func (f *fakeAPI) SubmitOrder(_ context.Context, in domain.OrderRequest) (*domain.Order, error) {
	f.mu.Lock()
	hook := f.onSubmit
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, in)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &domain.Order{
		ID:              "order-1",
		ShippingAddress: in.ShippingAddress,
		TotalAmount:     in.TotalAmount,
		PaymentMethod:   in.PaymentMethod,
		Status:          domain.OrderPending,
	}, nil
}

func (f *fakeAPI) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	return o, nil
}

func (f *fakeAPI) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	cp := *p
	cp.AvailableFragrances = append([]domain.FragranceRef(nil), p.AvailableFragrances...)
	return &cp, nil
}

func (f *fakeAPI) ListFragrances(context.Context) ([]domain.Fragrance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fragErr != nil {
		return nil, f.fragErr
	}
	return f.fragrances, nil
}

func (f *fakeAPI) RateProduct(_ context.Context, r domain.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.ratings = append(f.ratings, r)
	return nil
}

func (f *fakeAPI) SubmitTestimonial(_ context.Context, t domain.Testimonial) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	if t.Image != nil {
		_, _ = io.Copy(io.Discard, t.Image.Body)
	}
	return nil
}

func (f *fakeAPI) SubmitEnquiry(_ context.Context, e domain.Enquiry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.enquiries = append(f.enquiries, e)
	return nil
}

func (f *fakeAPI) Me(context.Context) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil, apperrors.Unauthorized("not signed in")
	}
	return f.user, nil
}

func (f *fakeAPI) savedCarts() []domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Cart(nil), f.saved...)
}

func (f *fakeAPI) mergeCalls() []domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Cart(nil), f.merged...)
}

// --- Mock events ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) CartReconciled(ctx context.Context, deviceID, outcome string, cart domain.Cart) error {
	args := m.Called(ctx, deviceID, outcome, cart)
	return args.Error(0)
}

func (m *mockEvents) OrderPlaced(ctx context.Context, deviceID, mode string, order *domain.Order, items domain.Cart) error {
	args := m.Called(ctx, deviceID, mode, order, items)
	return args.Error(0)
}

func (m *mockEvents) CheckoutFailed(ctx context.Context, deviceID, mode, reason string) error {
	args := m.Called(ctx, deviceID, mode, reason)
	return args.Error(0)
}

// --- Fixtures ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func hamper() domain.Product {
	return domain.Product{
		ID:    "p1",
		Name:  "Rose Hamper",
		Price: decimal.NewFromInt(1500),
		AvailableFragrances: []domain.FragranceRef{
			domain.Ref(domain.Fragrance{ID: "A", Name: "Amber", InStock: true}),
			domain.Ref(domain.Fragrance{ID: "B", Name: "Bergamot", InStock: true}),
			domain.Ref(domain.Fragrance{ID: "X", Name: "Oud", InStock: false}),
		},
		BottleConfig:       []domain.BottleConfig{{Size: "50ml", Quantity: 2}},
		AllowCustomMessage: true,
	}
}

func candle() domain.Product {
	return domain.Product{ID: "p2", Name: "Gift Candle", Price: decimal.NewFromInt(400)}
}

func selections(t *testing.T, p domain.Product, ids ...string) []domain.SelectedFragrance {
	t.Helper()
	sel, err := domain.BuildSelections(p, ids)
	require.NoError(t, err)
	return sel
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type testStore struct {
	store   *CartStore
	auth    *Auth
	api     *fakeAPI
	kv      repository.KV
	storage *memory.Storage
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	storage := memory.New()
	kv := repository.Scope(storage, "device-1")
	api := newFakeAPI()
	auth := NewAuth(kv, newTestLogger())
	store := NewCartStore("device-1", kv, api, auth, event.Noop{}, newTestLogger(), CartStoreConfig{SaveTimeout: time.Second})
	t.Cleanup(func() { _ = store.Dispose(context.Background()) })
	return &testStore{store: store, auth: auth, api: api, kv: kv, storage: storage}
}

func (ts *testStore) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.auth.SignIn(context.Background(), "opaque-token", nil))
}

func (ts *testStore) init(t *testing.T) {
	t.Helper()
	_, err := ts.store.Init(context.Background(), "/")
	require.NoError(t, err)
}

func (ts *testStore) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.store.Flush(ctx))
}

func (ts *testStore) deviceCart(t *testing.T, key string) (domain.Cart, bool) {
	t.Helper()
	var c domain.Cart
	found, err := repository.GetJSON(context.Background(), ts.kv, key, &c)
	require.NoError(t, err)
	return c, found
}

// withDebounce swaps the store's save worker for one with debounce d.
func (ts *testStore) withDebounce(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, ts.store.saver.close(context.Background()))
	ts.store.saver = newAutosaver(d, ts.store.persist)
}
