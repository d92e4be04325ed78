// Package rabbit wraps the RabbitMQ client with the small declare, publish
// and consume surface the services need. Channels are obtained through a
// ChannelProvider so publisher and consumer code never touches connection
// lifecycle.
package rabbit

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the slice of *amqp091.Channel the package relies on. Narrowing
// it to an interface lets tests substitute a fake channel.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	IsClosed() bool
}

// ChannelProvider yields a live channel. Implementations decide whether the
// channel is cached, re-opened, or injected.
type ChannelProvider interface {
	Channel() (Channel, error)
}

// ExchangeType is the broker routing mode used for declares.
type ExchangeType string

const (
	ExchangeFanout ExchangeType = "fanout"
	ExchangeDirect ExchangeType = "direct"
	ExchangeTopic  ExchangeType = "topic"
)

const connectAttempts = 5

// connectDelay is a var so tests can shrink it.
var connectDelay = 5 * time.Second

// ErrConnectFailed is returned once every connection attempt has been
// exhausted.
var ErrConnectFailed = errors.New("connection to RabbitMQ failed")

// dial is indirected for tests.
var dial = func(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// Connect establishes a broker connection, retrying a bounded number of
// times with a fixed delay between attempts before failing permanently.
func Connect(url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		conn, err := dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < connectAttempts-1 {
			time.Sleep(connectDelay)
		}
	}
	return nil, errors.Join(ErrConnectFailed, lastErr)
}

// ConnectionChannelProvider lazily opens a channel from a held connection
// and caches it, transparently replacing a channel the broker has closed.
type ConnectionChannelProvider struct {
	mu   sync.Mutex
	open func() (Channel, error)
	ch   Channel
}

// NewConnectionChannelProvider creates a provider backed by conn.
func NewConnectionChannelProvider(conn *amqp.Connection) *ConnectionChannelProvider {
	return &ConnectionChannelProvider{
		open: func() (Channel, error) { return conn.Channel() },
	}
}

// Channel returns the cached channel, opening a fresh one on first use or
// after the previous one has closed. Safe for concurrent use; serialization
// of channel operations themselves is delegated to the client's framing.
func (p *ConnectionChannelProvider) Channel() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.open()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// StaticChannelProvider returns a pre-supplied channel, for dependency
// injection and tests.
type StaticChannelProvider struct {
	ch Channel
}

// NewStaticChannelProvider creates a provider that always yields ch.
func NewStaticChannelProvider(ch Channel) *StaticChannelProvider {
	return &StaticChannelProvider{ch: ch}
}

// Channel returns the injected channel.
func (p *StaticChannelProvider) Channel() (Channel, error) {
	return p.ch, nil
}

// Logger is the logging surface the package needs, compatible with the
// application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}
