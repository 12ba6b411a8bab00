package kafka

import (
	"testing"

	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishEventKeysByOrder(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, events.TopicOrderStatusChanged, 2, zap.NewNop())
	env, err := events.New(events.TypeOrderStatusChanged, "order-api", 42, events.OrderStatusChanged{
		OrderID: 42, From: "PENDING", To: "PAID",
	})
	require.NoError(t, err)

	p.PublishEvent(env)

	m := <-p.inbox
	assert.Equal(t, []byte("42"), m.Key)
	require.Len(t, m.Headers, 2)
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, []byte(events.TypeOrderStatusChanged), m.Headers[0].Value)

	got, err := DecodeEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, events.TopicOrderCreated, 1, zap.NewNop())
	p.Close()
	p.Close()

	p.Publish([]byte("1"), []byte("{}"))

	_, open := <-p.inbox
	assert.False(t, open)
}
