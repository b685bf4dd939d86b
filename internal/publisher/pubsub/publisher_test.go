package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
)

type typedEvent struct {
	MatchID string `json:"match_id"`
}

func (typedEvent) EventType() string { return "match.created" }

// TestNewMessageEncodesPayloadAndType sets data and the event type attribute.
func TestNewMessageEncodesPayloadAndType(t *testing.T) {
	t.Parallel()

	msg, err := newMessage(context.Background(), typedEvent{MatchID: "m-1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"match_id":"m-1"}`, string(msg.Data))
	require.Equal(t, "match.created", msg.Attributes["event_type"])

	plain, err := newMessage(context.Background(), map[string]int{"n": 1})
	require.NoError(t, err)
	require.NotContains(t, plain.Attributes, "event_type")

	_, err = newMessage(context.Background(), make(chan int))
	require.Error(t, err)
}

// TestCarrierRoundTrip carries trace context through attributes.
func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	carrier := &pubsubCarrier{attrs: map[string]string{}}
	var _ propagation.TextMapCarrier = carrier
	carrier.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, carrier.Keys())
}

// TestPublishWithoutPublisherFails errors when the client is missing.
func TestPublishWithoutPublisherFails(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "matches", typedEvent{})
	require.Error(t, err)

	var nilPub *Publisher
	require.NoError(t, nilPub.Close())
}
