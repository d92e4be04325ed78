package rabbit

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerRequiresExchange(t *testing.T) {
	_, err := NewConsumer(NewStaticChannelProvider(newFakeChannel()), ConsumerConfig{}, noopLogger{})
	assert.ErrorIs(t, err, ErrMissingExchange)
}

func TestConsumerAnonymousQueueTopology(t *testing.T) {
	ch := newFakeChannel()
	consumer, err := NewConsumer(NewStaticChannelProvider(ch), ConsumerConfig{
		ExchangeName: "create_workflow",
		Durable:      true,
	}, noopLogger{})
	require.NoError(t, err)

	tag, err := consumer.Start(context.Background(), func(context.Context, amqp.Delivery) error {
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tag)

	require.Len(t, ch.exchanges, 1)
	assert.Equal(t, exchangeDeclare{name: "create_workflow", kind: "fanout", durable: true}, ch.exchanges[0])

	// no queue name: anonymous, exclusive, auto-delete, non-durable
	require.Len(t, ch.queues, 1)
	q := ch.queues[0]
	assert.True(t, q.exclusive)
	assert.True(t, q.autoDelete)
	assert.False(t, q.durable)

	require.Len(t, ch.binds, 1)
	assert.Equal(t, queueBind{queue: q.name, key: "", exchange: "create_workflow"}, ch.binds[0])
	assert.Empty(t, ch.qos)
}

func TestConsumerNamedDurableQueue(t *testing.T) {
	ch := newFakeChannel()
	consumer, err := NewConsumer(NewStaticChannelProvider(ch), ConsumerConfig{
		ExchangeName:  "create_workflow",
		QueueName:     "metadata-que",
		Durable:       true,
		PrefetchCount: 8,
	}, noopLogger{})
	require.NoError(t, err)

	_, err = consumer.Start(context.Background(), func(context.Context, amqp.Delivery) error {
		return nil
	})
	require.NoError(t, err)

	require.Len(t, ch.queues, 1)
	assert.Equal(t, queueDeclare{name: "metadata-que", durable: true}, ch.queues[0])
	assert.Equal(t, []int{8}, ch.qos)
}

func TestConsumerExclusiveNamedQueueNotDurable(t *testing.T) {
	ch := newFakeChannel()
	consumer, err := NewConsumer(NewStaticChannelProvider(ch), ConsumerConfig{
		ExchangeName: "create_workflow",
		QueueName:    "metadata-que",
		Durable:      true,
		Exclusive:    true,
	}, noopLogger{})
	require.NoError(t, err)

	_, err = consumer.Start(context.Background(), func(context.Context, amqp.Delivery) error {
		return nil
	})
	require.NoError(t, err)

	require.Len(t, ch.queues, 1)
	assert.True(t, ch.queues[0].exclusive)
	assert.False(t, ch.queues[0].durable)
}

func TestConsumerIdempotentStart(t *testing.T) {
	ch := newFakeChannel()
	cfg := ConsumerConfig{ExchangeName: "create_workflow", QueueName: "metadata-que", Durable: true}

	for i := 0; i < 2; i++ {
		consumer, err := NewConsumer(NewStaticChannelProvider(ch), cfg, noopLogger{})
		require.NoError(t, err)
		_, err = consumer.Start(context.Background(), func(context.Context, amqp.Delivery) error {
			return nil
		})
		require.NoError(t, err)
	}

	assert.Len(t, ch.exchanges, 2)
	assert.Len(t, ch.queues, 2)
	assert.Len(t, ch.consumers, 2)
}

func TestConsumerAcksOnSuccess(t *testing.T) {
	ch := newFakeChannel()
	consumer, err := NewConsumer(NewStaticChannelProvider(ch), ConsumerConfig{
		ExchangeName: "ex",
	}, noopLogger{})
	require.NoError(t, err)

	received := make(chan []byte, 1)
	_, err = consumer.Start(context.Background(), func(_ context.Context, msg amqp.Delivery) error {
		received <- msg.Body
		return nil
	})
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, Body: []byte(`{"x":1}`)}

	select {
	case body := <-received:
		assert.JSONEq(t, `{"x":1}`, string(body))
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}

	assert.Eventually(t, func() bool {
		acked, nacked, _ := acker.state()
		return acked && !nacked
	}, time.Second, 10*time.Millisecond)
}

func TestConsumerDropsMessageOnError(t *testing.T) {
	ch := newFakeChannel()
	consumer, err := NewConsumer(NewStaticChannelProvider(ch), ConsumerConfig{
		ExchangeName: "ex",
	}, noopLogger{})
	require.NoError(t, err)

	calls := make(chan struct{}, 4)
	_, err = consumer.Start(context.Background(), func(context.Context, amqp.Delivery) error {
		calls <- struct{}{}
		return errors.New("handler failed")
	})
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, Body: []byte("not json")}

	// rejected without requeue: a malformed message must not loop
	assert.Eventually(t, func() bool {
		acked, nacked, requeue := acker.state()
		return nacked && !requeue && !acked
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, calls, 1, "a failing message is handled once, not redelivered")
}

func TestConsumerDropsMessageOnPanic(t *testing.T) {
	ch := newFakeChannel()
	consumer, err := NewConsumer(NewStaticChannelProvider(ch), ConsumerConfig{
		ExchangeName: "ex",
	}, noopLogger{})
	require.NoError(t, err)

	_, err = consumer.Start(context.Background(), func(context.Context, amqp.Delivery) error {
		panic("boom")
	})
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker}

	assert.Eventually(t, func() bool {
		_, nacked, requeue := acker.state()
		return nacked && !requeue
	}, time.Second, 10*time.Millisecond)
}
