package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestKafkaHeaderCarrier_SetAndGet(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "existing", Value: []byte("value1")}}}
	carrier := NewHeaderCarrier(&msg)

	assert.Equal(t, "value1", carrier.Get("existing"))
	assert.Empty(t, carrier.Get("missing"))

	carrier.Set("new-key", "new-value")
	assert.Equal(t, "new-value", carrier.Get("new-key"))

	carrier.Set("existing", "updated")
	assert.Equal(t, "updated", carrier.Get("existing"))
	assert.Len(t, msg.Headers, 2)
}

func TestKafkaHeaderCarrier_Keys(t *testing.T) {
	headers := []kafka.Header{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}
	carrier := &KafkaHeaderCarrier{headers: &headers}

	assert.ElementsMatch(t, []string{"a", "b"}, carrier.Keys())
}

func TestKafkaHeaderCarrier_EmptyHeaders(t *testing.T) {
	carrier := &KafkaHeaderCarrier{headers: &[]kafka.Header{}}
	assert.Empty(t, carrier.Keys())
	assert.Empty(t, carrier.Get("anything"))
}
