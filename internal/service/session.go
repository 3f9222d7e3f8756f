package service

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/itsobito471-bot/thebottlestories/internal/repository"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// UpstreamAPI is everything a session needs from the storefront API.
type UpstreamAPI interface {
	CartAPI
	OrderAPI
	FeedbackAPI
	ProfileAPI
}

// APIFactory returns an API client that authenticates with tokens.
type APIFactory func(tokens func(context.Context) string) UpstreamAPI

// Session is the edge-side state of one device.
type Session struct {
	DeviceID string
	Auth     *Auth
	Cart     *CartStore
	Checkout *CheckoutFlow
	Feedback *Feedback
	API      UpstreamAPI

	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// RegistryConfig tunes session lifetime.
type RegistryConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	InitTimeout     time.Duration
	Cart            CartStoreConfig
	Checkout        CheckoutConfig
}

type sessionEntry struct {
	ready   chan struct{}
	session *Session
}

// Registry holds the live sessions of all devices.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool

	storage repository.DeviceStorage
	newAPI  APIFactory
	events  Events
	cfg     RegistryConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(storage repository.DeviceStorage, newAPI APIFactory, events Events, logger *slog.Logger, cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.IdleTTL / 2
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 15 * time.Second
	}
	return &Registry{
		sessions: make(map[string]*sessionEntry),
		storage:  storage,
		newAPI:   newAPI,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Registry) newSession(deviceID string) *Session {
	kv := repository.Scope(r.storage, deviceID)
	logger := r.logger.With(slog.String("device_id", deviceID))
	auth := NewAuth(kv, logger)
	api := r.newAPI(auth.Token)
	cart := NewCartStore(deviceID, kv, api, auth, r.events, r.logger, r.cfg.Cart)
	return &Session{
		DeviceID: deviceID,
		Auth:     auth,
		Cart:     cart,
		Checkout: NewCheckoutFlow(deviceID, cart, auth, api, r.events, r.logger, r.cfg.Checkout),
		Feedback: NewFeedback(api, logger),
		API:      api,
	}
}

// Get returns the live session of deviceID, creating and initialising it on
// first use. Concurrent first requests share one initialisation. A location
// carrying a login callback restarts the session so that its cart is
// reconciled under the new token. The returned location never carries the
// callback parameters, even when capturing them failed; callers check the
// session's token to tell.
func (r *Registry) Get(ctx context.Context, deviceID, location string) (*Session, string, error) {
	if deviceID == "" {
		return nil, location, apperrors.InvalidInput("device id is required")
	}
	if isLoginCallback(location) {
		if err := r.drop(ctx, deviceID); err != nil {
			r.logger.WarnContext(ctx, "restart session failed", slog.String("device_id", deviceID), slog.String("error", err.Error()))
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, location, apperrors.ServiceUnavailable("storefront is shutting down")
	}
	if e, ok := r.sessions[deviceID]; ok {
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, location, ctx.Err()
		}
		e.session.touch(r.now())
		return e.session, location, nil
	}
	e := &sessionEntry{ready: make(chan struct{})}
	r.sessions[deviceID] = e
	r.mu.Unlock()
	liveSessions.Inc()

	s := r.newSession(deviceID)
	initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.InitTimeout)
	cleaned, err := s.Cart.Init(initCtx, location)
	cancel()
	if err != nil {
		cleaned = StripCallback(location)
	}
	s.touch(r.now())
	e.session = s
	close(e.ready)
	return s, cleaned, nil
}

func isLoginCallback(location string) bool {
	if location == "" {
		return false
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Query().Get("token") != ""
}

// drop removes the session of deviceID and disposes it.
func (r *Registry) drop(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	e, ok := r.sessions[deviceID]
	if ok {
		delete(r.sessions, deviceID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.dispose(ctx, e)
}

func (r *Registry) dispose(ctx context.Context, e *sessionEntry) error {
	defer liveSessions.Dec()
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.session.Cart.Dispose(ctx)
}

// Logout saves the device's pending changes, signs it out and drops its
// session. The next request starts a guest session.
func (r *Registry) Logout(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return apperrors.InvalidInput("device id is required")
	}
	err := r.drop(ctx, deviceID)
	auth := NewAuth(repository.Scope(r.storage, deviceID), r.logger)
	return multierr.Append(err, auth.SignOut(ctx))
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep disposes sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.now()
	var idle []*sessionEntry

	r.mu.Lock()
	for id, e := range r.sessions {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.session.idleSince(now) > r.cfg.IdleTTL {
			delete(r.sessions, id)
			idle = append(idle, e)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		if err := r.dispose(ctx, e); err != nil {
			r.logger.WarnContext(ctx, "dispose idle session failed",
				slog.String("device_id", e.session.DeviceID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(idle) > 0 {
		r.logger.DebugContext(ctx, "idle sessions disposed", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Close disposes every session and rejects new ones.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for id, e := range r.sessions {
		entries = append(entries, e)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var errs error
	for _, e := range entries {
		errs = multierr.Append(errs, r.dispose(ctx, e))
	}
	return errs
}
