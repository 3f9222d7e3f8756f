package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// --- Event tests ---

func TestNewEvent_Fields(t *testing.T) {
	type placed struct {
		OrderID string `json:"order_id"`
		Total   string `json:"total"`
	}

	data := placed{OrderID: "ord-123", Total: "2499.00"}
	event, err := NewEvent("order.placed", "ord-123", "order", "storefront", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "order.placed", event.EventType)
	assert.Equal(t, "ord-123", event.AggregateID)
	assert.Equal(t, "order", event.AggregateType)
	assert.Equal(t, "storefront", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var decoded placed
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("test.event", "agg-1", "test", "storefront", make(chan int))
	require.Error(t, err)
}

func TestEvent_Builders(t *testing.T) {
	event, err := NewEvent("cart.reconciled", "dev-1", "cart", "storefront", nil)
	require.NoError(t, err)

	result := event.WithCorrelationID("corr-xyz").WithDeviceID("dev-1")
	assert.Same(t, event, result)
	assert.Equal(t, "corr-xyz", event.CorrelationID)
	assert.Equal(t, "dev-1", event.DeviceID)
}

func TestEvent_MessageOmitsEmptyHeaders(t *testing.T) {
	event, err := NewEvent("order.placed", "ord-1", "order", "storefront", nil)
	require.NoError(t, err)

	msg, err := event.message("storefront.order.placed")
	require.NoError(t, err)

	assert.Empty(t, header(msg, "correlation_id"))
	assert.Empty(t, header(msg, "device_id"))
	assert.Len(t, msg.Headers, 2)
}

// --- Topic tests ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "storefront", TopicPrefix)
	assert.Equal(t, "storefront.order.placed", Topic("order", "placed"))
	assert.Equal(t, "storefront.cart.reconciled", Topic("cart", "reconciled"))
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 20*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, kafka.RequireOne, cfg.RequiredAcks)
}

func TestProducer_PublishWritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil)

	event, err := NewEvent("order.placed", "ord-9", "order", "storefront", map[string]string{"id": "ord-9"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1").WithDeviceID("device-0001")

	require.NoError(t, p.Publish(context.Background(), Topic("order", "placed"), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "storefront.order.placed", msg.Topic)
	assert.Equal(t, "ord-9", string(msg.Key))
	assert.Equal(t, "order.placed", header(msg, "event_type"))
	assert.Equal(t, "storefront", header(msg, "source"))
	assert.Equal(t, "corr-1", header(msg, "correlation_id"))
	assert.Equal(t, "device-0001", header(msg, "device_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_PublishInjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil)
	event, err := NewEvent("cart.reconciled", "dev-1", "cart", "storefront", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, Topic("cart", "reconciled"), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(w.msgs[0], "traceparent"))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, nil)
	event, err := NewEvent("order.placed", "ord-1", "order", "storefront", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "storefront.order.placed", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish order.placed to storefront.order.placed")
	assert.ErrorContains(t, err, "leader not available")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, nil).Close())
	assert.True(t, w.closed)
}

func TestNewProducer_ClosesWithoutBroker(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestPingBrokers_CombinesFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := PingBrokers(ctx, []string{"127.0.0.1:1", "127.0.0.1:2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.Contains(t, err.Error(), "127.0.0.1:2")
}
