package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	pkgkafka "github.com/itsobito471-bot/thebottlestories/pkg/kafka"
	"github.com/itsobito471-bot/thebottlestories/pkg/logger"
)

// Topics for storefront domain events.
var (
	TopicCartReconciled = pkgkafka.Topic("cart", "reconciled")
	TopicOrderPlaced    = pkgkafka.Topic("order", "placed")
	TopicCheckoutFailed = pkgkafka.Topic("checkout", "failed")
)

// Aggregate types.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeOrder    = "order"
	AggregateTypeCheckout = "checkout"
)

// SourceStorefront identifies events emitted by this service.
const SourceStorefront = "storefront-edge"

// CartReconciledData is the payload of storefront.cart.reconciled.
type CartReconciledData struct {
	DeviceID  string `json:"device_id"`
	Outcome   string `json:"outcome"`
	ItemCount int    `json:"item_count"`
}

// OrderPlacedData is the payload of storefront.order.placed.
type OrderPlacedData struct {
	OrderID     string          `json:"order_id"`
	DeviceID    string          `json:"device_id"`
	Mode        string          `json:"mode"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CheckoutFailedData is the payload of storefront.checkout.failed.
type CheckoutFailedData struct {
	DeviceID string `json:"device_id"`
	Mode     string `json:"mode"`
	Reason   string `json:"reason"`
}

// Publisher is the kafka-go producer as seen by this package.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType, deviceID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithDeviceID(deviceID)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// CartReconciled records the outcome of a session-start reconciliation.
func (p *Producer) CartReconciled(ctx context.Context, deviceID, outcome string, cart domain.Cart) error {
	return p.publish(ctx, TopicCartReconciled, deviceID, AggregateTypeCart, deviceID, CartReconciledData{
		DeviceID:  deviceID,
		Outcome:   outcome,
		ItemCount: cart.Count(),
	})
}

// OrderPlaced records an accepted order.
func (p *Producer) OrderPlaced(ctx context.Context, deviceID, mode string, order *domain.Order, items domain.Cart) error {
	return p.publish(ctx, TopicOrderPlaced, order.ID, AggregateTypeOrder, deviceID, OrderPlacedData{
		OrderID:     order.ID,
		DeviceID:    deviceID,
		Mode:        mode,
		ItemCount:   items.Count(),
		TotalAmount: order.TotalAmount,
	})
}

// CheckoutFailed records a rejected submission.
func (p *Producer) CheckoutFailed(ctx context.Context, deviceID, mode, reason string) error {
	return p.publish(ctx, TopicCheckoutFailed, deviceID, AggregateTypeCheckout, deviceID, CheckoutFailedData{
		DeviceID: deviceID,
		Mode:     mode,
		Reason:   reason,
	})
}

// Noop discards events. Used when no brokers are configured.
type Noop struct{}

func (Noop) CartReconciled(context.Context, string, string, domain.Cart) error { return nil }

func (Noop) OrderPlaced(context.Context, string, string, *domain.Order, domain.Cart) error {
	return nil
}

func (Noop) CheckoutFailed(context.Context, string, string, string) error { return nil }
