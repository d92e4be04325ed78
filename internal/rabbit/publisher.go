package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PublishOptions control exchange declaration and message tagging. The zero
// value is not useful; use DefaultPublishOptions for the conventional
// durable fanout JSON settings.
type PublishOptions struct {
	ExchangeType ExchangeType
	RoutingKey   string
	Durable      bool
	ContentType  string
}

// DefaultPublishOptions returns the options used by every broadcast in the
// system: durable fanout exchange, empty routing key, JSON content type.
func DefaultPublishOptions() PublishOptions {
	return PublishOptions{
		ExchangeType: ExchangeFanout,
		Durable:      true,
		ContentType:  "application/json",
	}
}

// Publisher declares an exchange idempotently and hands exactly one message
// to the broker per Publish call. No batching, no retry; broker errors
// propagate to the caller.
type Publisher struct {
	provider ChannelProvider
}

// NewPublisher creates a Publisher on top of the given channel provider.
func NewPublisher(provider ChannelProvider) *Publisher {
	return &Publisher{provider: provider}
}

// Publish declares the exchange and publishes message on it.
//
// Serialization policy: a []byte passes through unchanged with the
// caller-supplied content type; a string is encoded as UTF-8 with the
// content type forced to text/plain; anything else is marshalled as JSON
// and tagged with the caller-supplied content type, falling back to plain
// stringification for values JSON cannot represent.
func (p *Publisher) Publish(ctx context.Context, exchangeName string, message any, opts PublishOptions) error {
	if opts.ExchangeType == "" {
		opts.ExchangeType = ExchangeFanout
	}

	ch, err := p.provider.Channel()
	if err != nil {
		return fmt.Errorf("acquire channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchangeName, string(opts.ExchangeType),
		opts.Durable, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("declare exchange %q: %w", exchangeName, err)
	}

	body, contentType := encodeBody(message, opts.ContentType)

	return ch.PublishWithContext(ctx, exchangeName, opts.RoutingKey, false, false, amqp.Publishing{
		ContentType: contentType,
		Body:        body,
	})
}

func encodeBody(message any, contentType string) ([]byte, string) {
	switch m := message.(type) {
	case []byte:
		return m, contentType
	case string:
		return []byte(m), "text/plain"
	default:
		data, err := json.Marshal(message)
		if err != nil {
			return []byte(fmt.Sprint(message)), contentType
		}
		return data, contentType
	}
}
