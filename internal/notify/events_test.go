package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := PaymentSucceededPayload{
		OrderID:     "ord-1",
		OrderNumber: "ORD-20260101-120000-001-0001",
		RefID:       "2012023456",
		Amount:      500_000,
	}

	env, err := NewEnvelope(EventPaymentSucceeded, "ord-1", payload)
	require.NoError(t, err)

	assert.Equal(t, EventPaymentSucceeded, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "ord-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)
	assert.False(t, env.OccurredAt.IsZero())

	var got PaymentSucceededPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, payload, got)
}

func TestEnvelope_JSONShape(t *testing.T) {
	env, err := NewEnvelope(EventLowStock, "", LowStockPayload{Name: "Teapot", Remaining: 2, Threshold: 5})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "event_id")
	assert.Contains(t, m, "event_type")
	assert.Contains(t, m, "payload")
	// correlation_id is omitted when empty
	assert.NotContains(t, m, "correlation_id")
}
