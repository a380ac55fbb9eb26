package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseMessage(t *testing.T) {
	t.Run("NewBaseMessage generates ID and timestamp", func(t *testing.T) {
		msg := NewBaseMessage("TestMessage")

		assert.NotEmpty(t, msg.GetID())
		assert.False(t, msg.GetTimestamp().IsZero())
		assert.Equal(t, "TestMessage", msg.GetType())
		assert.Empty(t, msg.GetCorrelationID())
	})

	t.Run("SetCorrelationID updates correlation ID", func(t *testing.T) {
		msg := NewBaseMessage("TestMessage")
		msg.SetCorrelationID("corr-123")

		assert.Equal(t, "corr-123", msg.GetCorrelationID())
	})

	t.Run("distinct messages get distinct IDs", func(t *testing.T) {
		a := NewBaseMessage("TestMessage")
		b := NewBaseMessage("TestMessage")

		assert.NotEqual(t, a.GetID(), b.GetID())
	})
}

func TestBaseEvent(t *testing.T) {
	t.Run("NewBaseEvent carries aggregate and sequence", func(t *testing.T) {
		event := NewBaseEvent("SomethingHappened", "wf-1", 7)

		assert.Equal(t, "wf-1", event.GetAggregateID())
		assert.Equal(t, int64(7), event.GetSequence())
		assert.Equal(t, "SomethingHappened", event.GetType())
	})

	t.Run("serializes with camelCase fields", func(t *testing.T) {
		event := NewBaseEvent("SomethingHappened", "wf-1", 1)

		data, err := json.Marshal(event)
		assert.NoError(t, err)
		assert.Contains(t, string(data), `"aggregateId":"wf-1"`)
		assert.Contains(t, string(data), `"sequence":1`)
	})
}
