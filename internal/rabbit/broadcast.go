package rabbit

import "context"

// Envelope is the broker wire contract for event broadcasts: the payload is
// wrapped under a "data" key and published as application/json.
type Envelope struct {
	Data map[string]any `json:"data"`
}

// Broadcast publishes payload on a durable fanout exchange, wrapped in the
// standard envelope. Delivery is at-most-once to each currently bound
// listener: with no bound queue the message is simply lost. Callers decide
// whether a broadcast failure is fatal; this function only reports it.
func Broadcast(ctx context.Context, ch Channel, payload map[string]any, exchange string) error {
	publisher := NewPublisher(NewStaticChannelProvider(ch))
	return publisher.Publish(ctx, exchange, Envelope{Data: payload}, DefaultPublishOptions())
}
