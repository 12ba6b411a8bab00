package kafka

import (
	"encoding/json"
	"testing"

	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopePayloadSurvivesTheWire(t *testing.T) {
	env, err := events.New(events.TypePaymentProcessed, "payment-api", 42, events.PaymentProcessed{
		PaymentID:     7,
		OrderID:       42,
		UserID:        1,
		Amount:        decimal.RequireFromString("19.98"),
		Status:        "SUCCESS",
		TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", env.CorrelationID)
	assert.Equal(t, []byte("42"), env.PartitionKey())

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	got, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)

	p, err := UnwrapPayload[events.PaymentProcessed](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.OrderID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("19.98")))
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{"))
	assert.Error(t, err)

	_, err = UnwrapPayload[events.OrderCreated](json.RawMessage(`"nope"`))
	assert.Error(t, err)
}
