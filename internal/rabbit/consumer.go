package rabbit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrMissingExchange is returned when a consumer is configured without an
// exchange name.
var ErrMissingExchange = errors.New("exchange name is required")

// ConsumerConfig describes the topology a consumer declares before it
// starts receiving.
//
// When QueueName is empty an anonymous, exclusive, auto-delete and
// non-durable queue is created: an ephemeral fanout subscriber that
// disappears with its connection. When QueueName is set, Durable,
// Exclusive and AutoDelete apply as given, producing a named queue
// suitable for durable work distribution. The same declare/bind logic
// serves both topologies.
type ConsumerConfig struct {
	ExchangeName  string
	QueueName     string
	ExchangeType  ExchangeType
	RoutingKey    string
	Durable       bool
	Exclusive     bool
	AutoDelete    bool
	PrefetchCount int
}

// Callback handles one delivered message. A nil return acknowledges the
// message; an error rejects it without requeue, so a failing message is
// dropped rather than redelivered in a loop.
type Callback func(ctx context.Context, msg amqp.Delivery) error

// Consumer binds a queue to an exchange and invokes a callback per
// delivered message, owning the acknowledgement around each invocation.
type Consumer struct {
	provider ChannelProvider
	cfg      ConsumerConfig
	logger   Logger
}

// NewConsumer creates a Consumer. The exchange type defaults to fanout.
func NewConsumer(provider ChannelProvider, cfg ConsumerConfig, logger Logger) (*Consumer, error) {
	if cfg.ExchangeName == "" {
		return nil, ErrMissingExchange
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = ExchangeFanout
	}
	return &Consumer{provider: provider, cfg: cfg, logger: logger}, nil
}

// Start declares the exchange and queue, binds them, and begins consuming.
// It returns the consumer tag. Declares are idempotent on the broker side
// given identical parameters; a mismatched redeclare surfaces as a broker
// error.
func (c *Consumer) Start(ctx context.Context, callback Callback) (string, error) {
	ch, err := c.provider.Channel()
	if err != nil {
		return "", fmt.Errorf("acquire channel: %w", err)
	}

	if c.cfg.PrefetchCount > 0 {
		if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
			return "", fmt.Errorf("set qos: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(
		c.cfg.ExchangeName, string(c.cfg.ExchangeType),
		c.cfg.Durable, false, false, false, nil,
	); err != nil {
		return "", fmt.Errorf("declare exchange %q: %w", c.cfg.ExchangeName, err)
	}

	durable, exclusive, autoDelete := c.cfg.Durable, c.cfg.Exclusive, c.cfg.AutoDelete
	if c.cfg.QueueName == "" {
		exclusive, autoDelete = true, true
	}
	if exclusive {
		// exclusive queues die with the connection; durability is moot
		durable = false
	}

	queue, err := ch.QueueDeclare(c.cfg.QueueName, durable, autoDelete, exclusive, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %q: %w", c.cfg.QueueName, err)
	}

	if err := ch.QueueBind(queue.Name, c.cfg.RoutingKey, c.cfg.ExchangeName, false, nil); err != nil {
		return "", fmt.Errorf("bind queue %q: %w", queue.Name, err)
	}

	tag := uuid.NewString()
	deliveries, err := ch.Consume(queue.Name, tag, false, exclusive, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("consume queue %q: %w", queue.Name, err)
	}

	go c.handle(ctx, deliveries, callback)
	return tag, nil
}

// handle wraps the callback in an acknowledgement scope: ack on success,
// nack without requeue on error or panic.
func (c *Consumer) handle(ctx context.Context, deliveries <-chan amqp.Delivery, callback Callback) {
	for msg := range deliveries {
		if err := c.invoke(ctx, msg, callback); err != nil {
			c.logger.Error("message handler failed",
				"exchange", c.cfg.ExchangeName, "error", err)
			if nackErr := msg.Nack(false, false); nackErr != nil {
				c.logger.Error("nack failed", "error", nackErr)
			}
			continue
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", "error", ackErr)
		}
	}
}

func (c *Consumer) invoke(ctx context.Context, msg amqp.Delivery, callback Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return callback(ctx, msg)
}
