package rabbit

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeChannel records the declare/bind/publish/consume calls made against
// it so tests can assert the exact topology a component sets up.
type fakeChannel struct {
	mu sync.Mutex

	closed bool

	declareErr error
	publishErr error
	consumeErr error

	exchanges []exchangeDeclare
	queues    []queueDeclare
	binds     []queueBind
	published []amqp.Publishing
	qos       []int

	deliveries chan amqp.Delivery
	consumers  []string
}

type exchangeDeclare struct {
	name    string
	kind    string
	durable bool
}

type queueDeclare struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
}

type queueBind struct {
	queue    string
	key      string
	exchange string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declareErr != nil {
		return f.declareErr
	}
	f.exchanges = append(f.exchanges, exchangeDeclare{name: name, kind: kind, durable: durable})
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" {
		name = "amq.gen-fake"
	}
	f.queues = append(f.queues, queueDeclare{
		name: name, durable: durable, autoDelete: autoDelete, exclusive: exclusive,
	})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, queueBind{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qos = append(f.qos, prefetchCount)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(_, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.consumers = append(f.consumers, consumer)
	return f.deliveries, nil
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeAcker implements amqp.Acknowledger and records the outcome of one
// delivery.
type fakeAcker struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcker) Ack(_ uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func (a *fakeAcker) state() (acked, nacked, requeue bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked, a.nacked, a.requeue
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
