package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/validator"
)

// maxLedgerEntries bounds the per-session feedback ledger.
const maxLedgerEntries = 50

// FeedbackKind names a feedback channel.
type FeedbackKind string

const (
	KindRating      FeedbackKind = "rating"
	KindTestimonial FeedbackKind = "testimonial"
	KindEnquiry     FeedbackKind = "enquiry"
)

// FeedbackStatus is the state of a ledger entry.
type FeedbackStatus string

const (
	FeedbackPending   FeedbackStatus = "pending"
	FeedbackConfirmed FeedbackStatus = "confirmed"
)

// FeedbackEntry records one submission as the shopper sees it.
type FeedbackEntry struct {
	ID        string         `json:"id"`
	Kind      FeedbackKind   `json:"kind"`
	Subject   string         `json:"subject"`
	Status    FeedbackStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

// FeedbackAPI is the feedback part of the upstream API.
type FeedbackAPI interface {
	RateProduct(ctx context.Context, r domain.Rating) error
	SubmitTestimonial(ctx context.Context, t domain.Testimonial) error
	SubmitEnquiry(ctx context.Context, e domain.Enquiry) error
}

// Feedback submits ratings, testimonials and enquiries. Each submission is
// shown as pending straight away and removed again if the API rejects it.
type Feedback struct {
	mu      sync.Mutex
	entries []FeedbackEntry

	api    FeedbackAPI
	logger *slog.Logger
	now    func() time.Time
}

// NewFeedback creates an empty ledger.
func NewFeedback(api FeedbackAPI, logger *slog.Logger) *Feedback {
	return &Feedback{api: api, logger: logger, now: time.Now}
}

// SubmitRating rates a product from 1 to 5.
func (f *Feedback) SubmitRating(ctx context.Context, r domain.Rating) (FeedbackEntry, error) {
	if r.ProductID == "" {
		return FeedbackEntry{}, apperrors.InvalidInput("product id is required")
	}
	if err := validator.Validate(r); err != nil {
		return FeedbackEntry{}, err
	}
	return f.submit(ctx, KindRating, r.ProductID, func(ctx context.Context) error {
		return f.api.RateProduct(ctx, r)
	})
}

// SubmitTestimonial posts a public review, optionally with a photo.
func (f *Feedback) SubmitTestimonial(ctx context.Context, t domain.Testimonial) (FeedbackEntry, error) {
	if err := validator.Validate(t); err != nil {
		return FeedbackEntry{}, err
	}
	return f.submit(ctx, KindTestimonial, t.Name, func(ctx context.Context) error {
		return f.api.SubmitTestimonial(ctx, t)
	})
}

// SubmitEnquiry sends a contact-form message.
func (f *Feedback) SubmitEnquiry(ctx context.Context, e domain.Enquiry) (FeedbackEntry, error) {
	if err := validator.Validate(e); err != nil {
		return FeedbackEntry{}, err
	}
	return f.submit(ctx, KindEnquiry, e.Email, func(ctx context.Context) error {
		return f.api.SubmitEnquiry(ctx, e)
	})
}

func (f *Feedback) submit(ctx context.Context, kind FeedbackKind, subject string, call func(context.Context) error) (FeedbackEntry, error) {
	entry := FeedbackEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Status:    FeedbackPending,
		CreatedAt: f.now().UTC(),
	}
	f.mu.Lock()
	f.entries = append(f.entries, entry)
	if len(f.entries) > maxLedgerEntries {
		f.entries = slices.Delete(f.entries, 0, len(f.entries)-maxLedgerEntries)
	}
	f.mu.Unlock()

	if err := call(ctx); err != nil {
		f.mu.Lock()
		f.entries = slices.DeleteFunc(f.entries, func(e FeedbackEntry) bool { return e.ID == entry.ID })
		f.mu.Unlock()
		f.logger.WarnContext(ctx, "feedback rejected",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return FeedbackEntry{}, err
	}

	entry.Status = FeedbackConfirmed
	f.mu.Lock()
	for i := range f.entries {
		if f.entries[i].ID == entry.ID {
			f.entries[i].Status = FeedbackConfirmed
		}
	}
	f.mu.Unlock()
	return entry, nil
}

// Recent lists ledger entries, newest first.
func (f *Feedback) Recent() []FeedbackEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.entries)
	slices.Reverse(out)
	if out == nil {
		out = []FeedbackEntry{}
	}
	return out
}
