package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/logging"
)

// ---- fakes ----

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	queues     map[string]amqp.Table
	bindings   map[string]string
	published  []publishedMessage
	publishErr error
	deliveries chan amqp.Delivery
	prefetch   int
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queues:     map[string]amqp.Table{},
		bindings:   map[string]string{},
		deliveries: make(chan amqp.Delivery, 10),
	}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind != "topic" || !durable {
		return fmt.Errorf("unexpected exchange declaration %s kind=%s durable=%v", name, kind, durable)
	}
	c.exchanges = append(c.exchanges, name)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return amqp.Queue{}, fmt.Errorf("queue %s must be durable", name)
	}
	c.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[name] = exchange + "/" + key
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMessage{exchange: exchange, routingKey: key, msg: msg})
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, fmt.Errorf("consumer must use manual acks")
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

type fakeConnection struct {
	mu        sync.Mutex
	channel   *fakeChannel
	closed    bool
	closeCh   chan *amqp.Error
	blockedCh chan amqp.Blocking
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{channel: newFakeChannel()}
}

func (c *fakeConnection) Channel() (amqpChannel, error) {
	return c.channel, nil
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCh = receiver
	return receiver
}

func (c *fakeConnection) NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockedCh = receiver
	return receiver
}

// dropConnection simulates an asynchronous broker-side close.
func (c *fakeConnection) dropConnection() {
	c.mu.Lock()
	closeCh := c.closeCh
	c.mu.Unlock()
	closeCh <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "test drop"}
}

type fakeDialer struct {
	mu          sync.Mutex
	calls       int
	failAfter   int // fail every dial once calls exceeds this; 0 means never fail
	connections []*fakeConnection
}

func (d *fakeDialer) dial(url string) (amqpConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failAfter > 0 && d.calls > d.failAfter {
		return nil, fmt.Errorf("dial refused")
	}
	conn := newFakeConnection()
	d.connections = append(d.connections, conn)
	return conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) lastConnection() *fakeConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connections[len(d.connections)-1]
}

func newTestBroker(cfg Config) (*Broker, *fakeDialer) {
	dialer := &fakeDialer{}
	b := New(cfg, logging.NewNop())
	b.dial = dialer.dial
	return b, dialer
}

// ---- tests ----

func TestConnectDeclaresTopology(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test"})
	require.NoError(t, b.Connect(context.Background()))
	assert.True(t, b.IsConnected())

	ch := dialer.lastConnection().channel
	assert.ElementsMatch(t, []string{TransactionsExchange, UsersExchange}, ch.exchanges)

	expectedQueues := []string{
		"transaction.created", "transaction.processed", "transaction.cancelled",
		"user.registered", "user.banking-data-updated",
	}
	for _, q := range expectedQueues {
		args, ok := ch.queues[q]
		require.True(t, ok, "queue %s not declared", q)
		assert.Equal(t, (24 * time.Hour).Milliseconds(), args["x-message-ttl"])
	}
	assert.Equal(t, TransactionsExchange+"/transaction.created", ch.bindings["transaction.created"])
	assert.Equal(t, UsersExchange+"/user.registered", ch.bindings["user.registered"])
}

func TestConnectIsIdempotent(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test"})
	require.NoError(t, b.Connect(context.Background()))
	require.NoError(t, b.Connect(context.Background()))
	assert.Equal(t, 1, dialer.callCount())
}

func TestPublishFailsFastWhenDisconnected(t *testing.T) {
	b, _ := newTestBroker(Config{URL: "amqp://test"})

	err := b.Publish(context.Background(), TransactionsExchange, "transaction.created", "x", PublishOptions{})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestPublishSendsPersistentJSON(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test"})
	require.NoError(t, b.Connect(context.Background()))

	body := map[string]string{"hello": "world"}
	err := b.Publish(context.Background(), TransactionsExchange, "transaction.created", body, PublishOptions{
		CorrelationID: "corr-1",
		Priority:      3,
		Expiration:    "60000",
	})
	require.NoError(t, err)

	ch := dialer.lastConnection().channel
	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, TransactionsExchange, pub.exchange)
	assert.Equal(t, "transaction.created", pub.routingKey)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), pub.msg.DeliveryMode)
	assert.Equal(t, "corr-1", pub.msg.CorrelationId)
	assert.Equal(t, uint8(3), pub.msg.Priority)
	assert.Equal(t, "60000", pub.msg.Expiration)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, "world", decoded["hello"])
}

func TestPublishWaitsForFlowControlRelease(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test"})
	require.NoError(t, b.Connect(context.Background()))

	conn := dialer.lastConnection()
	conn.blockedCh <- amqp.Blocking{Active: true, Reason: "memory"}
	assert.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.blocked
	}, time.Second, 5*time.Millisecond)

	// Blocked broker: publish respects the caller's deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, TransactionsExchange, "transaction.created", "x", PublishOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, conn.channel.publishCount())

	conn.blockedCh <- amqp.Blocking{Active: false}
	assert.Eventually(t, func() bool {
		return b.Publish(context.Background(), TransactionsExchange, "transaction.created", "x", PublishOptions{}) == nil
	}, time.Second, 5*time.Millisecond)
}

type fakeAcker struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcker) counts() (int, int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks, a.requeue
}

func TestConsumeAcksAndNacks(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test"})
	require.NoError(t, b.Connect(context.Background()))

	handled := make(chan []byte, 2)
	handler := func(ctx context.Context, body []byte) error {
		handled <- body
		if string(body) == "poison" {
			return fmt.Errorf("cannot process")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Consume(ctx, "transaction.created", handler))

	ch := dialer.lastConnection().channel
	assert.Equal(t, consumerPrefetch, ch.prefetch)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, Body: []byte("ok")}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, Body: []byte("poison")}

	<-handled
	<-handled
	assert.Eventually(t, func() bool {
		acks, nacks, _ := acker.counts()
		return acks == 1 && nacks == 1
	}, time.Second, 5*time.Millisecond)

	_, _, requeue := acker.counts()
	assert.False(t, requeue, "poison messages must not be requeued")
}

func TestConsumeWhileDisconnectedStartsAfterConnect(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test"})

	var handled atomic.Int64
	err := b.Consume(context.Background(), "transaction.created", func(ctx context.Context, body []byte) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, err, "registration must succeed even while disconnected")

	require.NoError(t, b.Connect(context.Background()))

	ch := dialer.lastConnection().channel
	assert.Equal(t, consumerPrefetch, ch.prefetch)
	ch.deliveries <- amqp.Delivery{Acknowledger: &fakeAcker{}, Body: []byte("deferred")}
	assert.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConsumerSurvivesReconnect(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test", ReconnectDelay: 5 * time.Millisecond})
	require.NoError(t, b.Connect(context.Background()))

	var handled atomic.Int64
	err := b.Consume(context.Background(), "transaction.created", func(ctx context.Context, body []byte) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	dialer.lastConnection().channel.deliveries <- amqp.Delivery{Acknowledger: &fakeAcker{}, Body: []byte("one")}
	assert.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 5*time.Millisecond)

	dialer.lastConnection().dropConnection()
	assert.Eventually(t, func() bool {
		return dialer.callCount() == 2 && b.IsConnected()
	}, time.Second, 5*time.Millisecond)

	// The fresh channel must carry the same consumer, prefetch included.
	fresh := dialer.lastConnection().channel
	assert.Eventually(t, func() bool {
		fresh.mu.Lock()
		defer fresh.mu.Unlock()
		return fresh.prefetch == consumerPrefetch
	}, time.Second, 5*time.Millisecond)
	fresh.deliveries <- amqp.Delivery{Acknowledger: &fakeAcker{}, Body: []byte("two")}
	assert.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCancelledConsumerIsNotRestored(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test", ReconnectDelay: 5 * time.Millisecond})
	require.NoError(t, b.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	err := b.Consume(ctx, "transaction.created", func(ctx context.Context, body []byte) error { return nil })
	require.NoError(t, err)
	cancel()

	dialer.lastConnection().dropConnection()
	assert.Eventually(t, func() bool {
		return dialer.callCount() == 2 && b.IsConnected()
	}, time.Second, 5*time.Millisecond)

	fresh := dialer.lastConnection().channel
	fresh.mu.Lock()
	defer fresh.mu.Unlock()
	assert.Equal(t, 0, fresh.prefetch, "cancelled registration must not come back")
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test", ReconnectDelay: 5 * time.Millisecond})
	require.NoError(t, b.Connect(context.Background()))

	dialer.lastConnection().dropConnection()

	assert.Eventually(t, func() bool {
		return dialer.callCount() == 2 && b.IsConnected()
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentDisconnectsTriggerOneReconnect(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test", ReconnectDelay: 20 * time.Millisecond})
	require.NoError(t, b.Connect(context.Background()))

	// Two near-simultaneous close events must collapse into one loop.
	go b.handleDisconnect()
	go b.handleDisconnect()

	assert.Eventually(t, func() bool {
		return b.IsConnected()
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, dialer.callCount())
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	b, dialer := newTestBroker(Config{
		URL:                  "amqp://test",
		ReconnectDelay:       time.Millisecond,
		MaxReconnectAttempts: 3,
	})
	require.NoError(t, b.Connect(context.Background()))

	dialer.mu.Lock()
	dialer.failAfter = 1
	dialer.mu.Unlock()

	dialer.lastConnection().dropConnection()

	// 1 initial dial + 3 failed reconnects, then fail-stop.
	assert.Eventually(t, func() bool {
		return dialer.callCount() == 4
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, dialer.callCount())
	assert.False(t, b.IsConnected())

	err := b.Publish(context.Background(), TransactionsExchange, "transaction.created", "x", PublishOptions{})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestCloseDisablesReconnect(t *testing.T) {
	b, dialer := newTestBroker(Config{URL: "amqp://test", ReconnectDelay: time.Millisecond})
	require.NoError(t, b.Connect(context.Background()))
	require.NoError(t, b.Close())
	assert.False(t, b.IsConnected())

	b.handleDisconnect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.callCount())
}
