// Package broker owns the RabbitMQ connection lifecycle for both services:
// connect, topology declaration, publish, consume and bounded reconnection.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
)

const (
	defaultReconnectDelay       = 5 * time.Second
	defaultMaxReconnectAttempts = 10
	consumerPrefetch            = 10
)

// Config holds broker connection settings.
type Config struct {
	URL                  string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	return c
}

// PublishOptions carries per-message publish settings. Delivery is always
// persistent; these only add metadata on top.
type PublishOptions struct {
	CorrelationID string
	Priority      uint8
	Expiration    string
}

// Handler processes one consumed message body. A non-nil error rejects the
// message without requeue: poison messages are dropped after the first
// failure, retry belongs inside the handler.
type Handler func(ctx context.Context, body []byte) error

// amqpChannel is the slice of *amqp.Channel the broker uses. Narrowed to an
// interface so unit tests can run without a live RabbitMQ.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
	IsClosed() bool
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking
}

type dialFunc func(url string) (amqpConnection, error)

// realConnection adapts *amqp.Connection to the amqpConnection interface.
type realConnection struct {
	*amqp.Connection
}

func (c *realConnection) Channel() (amqpChannel, error) {
	return c.Connection.Channel()
}

func amqpDial(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &realConnection{Connection: conn}, nil
}

// consumerRegistration records a Consume call so the consumer can be
// re-established on a fresh channel after a reconnect. Registrations whose
// context is cancelled are pruned on the next connect.
type consumerRegistration struct {
	ctx     context.Context
	queue   string
	handler Handler
}

// Broker manages a single connection and channel to RabbitMQ. All handle
// mutation happens under mu; the reconnecting flag guarantees at most one
// reconnect loop regardless of how many close events fire.
type Broker struct {
	cfg    Config
	logger *zap.SugaredLogger
	dial   dialFunc

	mu                sync.Mutex
	conn              amqpConnection
	ch                amqpChannel
	connected         bool
	closing           bool
	reconnecting      bool
	reconnectAttempts int
	blocked           bool
	unblocked         chan struct{}
	consumers         []consumerRegistration
}

// New creates a Broker. Call Connect before publishing or consuming.
func New(cfg Config, logger *zap.SugaredLogger) *Broker {
	open := make(chan struct{})
	close(open)

	return &Broker{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		dial:      amqpDial,
		unblocked: open,
	}
}

// Connect opens the connection and channel, declares the topology and
// registers the close/blocked watchers.
func (b *Broker) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}

	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	dial := b.dial
	url := b.cfg.URL
	b.mu.Unlock()

	conn, err := dial(url)
	if err != nil {
		return fmt.Errorf("broker connect: %w: %v", apperrors.ErrNotConnected, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("broker channel: %w: %v", apperrors.ErrNotConnected, err)
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("broker topology: %w", err)
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	blockedCh := conn.NotifyBlocked(make(chan amqp.Blocking, 1))

	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.connected = true
	b.reconnectAttempts = 0
	consumers := b.pruneConsumersLocked()
	b.mu.Unlock()

	go b.watchClose(closeCh)
	go b.watchBlocked(blockedCh)

	b.logger.Infow("broker connected")

	// Consumer registrations made on a previous channel died with it;
	// re-issue every live one on the fresh channel.
	for _, reg := range consumers {
		if err := b.startConsumer(reg.ctx, ch, reg.queue, reg.handler); err != nil {
			b.logger.Errorw("failed to restore consumer", "queue", reg.queue, "error", err)
		}
	}

	return nil
}

// pruneConsumersLocked drops cancelled registrations and returns a snapshot
// of the live ones. Caller must hold mu.
func (b *Broker) pruneConsumersLocked() []consumerRegistration {
	kept := b.consumers[:0]
	for _, reg := range b.consumers {
		if reg.ctx.Err() == nil {
			kept = append(kept, reg)
		}
	}
	b.consumers = kept

	out := make([]consumerRegistration, len(kept))
	copy(out, kept)
	return out
}

// Close tears the connection down and disables reconnection.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closing = true
	b.connected = false
	ch := b.ch
	conn := b.conn
	b.ch = nil
	b.conn = nil
	b.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected reports whether a usable channel is available.
func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && b.ch != nil
}

// Publish serializes body as JSON and sends it to the exchange with the
// given routing key. It fails fast when disconnected; callers must not be
// left blocked waiting for a connection that may never come back.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, body any, opts PublishOptions) error {
	b.mu.Lock()
	if !b.connected || b.ch == nil {
		b.mu.Unlock()
		return fmt.Errorf("publish %s: %w", routingKey, apperrors.ErrNotConnected)
	}
	ch := b.ch
	unblocked := b.unblocked
	b.mu.Unlock()

	// Under broker flow control, wait for the drain signal instead of
	// dropping the message.
	select {
	case <-unblocked:
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", routingKey, ctx.Err())
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("publish %s: marshal: %w", routingKey, err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		Body:          data,
		CorrelationId: opts.CorrelationID,
		Priority:      opts.Priority,
		Expiration:    opts.Expiration,
	}

	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	return nil
}

// Consume registers handler for queue and starts delivering messages until
// ctx is cancelled. Handler success acks; handler failure nacks without
// requeue. The registration survives connection loss: the consumer is
// re-established after every successful reconnect, and a registration made
// while disconnected starts on the next Connect.
func (b *Broker) Consume(ctx context.Context, queue string, handler Handler) error {
	b.mu.Lock()
	b.consumers = append(b.consumers, consumerRegistration{ctx: ctx, queue: queue, handler: handler})
	ch := b.ch
	live := b.connected && ch != nil
	b.mu.Unlock()

	if !live {
		b.logger.Infow("broker down, consumer start deferred until connect", "queue", queue)
		return nil
	}

	return b.startConsumer(ctx, ch, queue, handler)
}

func (b *Broker) startConsumer(ctx context.Context, ch amqpChannel, queue string, handler Handler) error {
	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		return fmt.Errorf("consume %s: qos: %w", queue, err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go b.deliver(ctx, queue, deliveries, handler)

	return nil
}

func (b *Broker) deliver(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				b.logger.Warnw("consumer channel closed", "queue", queue)
				return
			}
			if err := handler(ctx, d.Body); err != nil {
				b.logger.Warnw("message rejected", "queue", queue, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// watchClose reacts to an asynchronous connection-closed event.
func (b *Broker) watchClose(closeCh chan *amqp.Error) {
	err, ok := <-closeCh
	if !ok || err == nil {
		// Graceful Close; nothing to recover.
		return
	}

	b.logger.Warnw("broker connection lost", "error", err)
	b.handleDisconnect()
}

// handleDisconnect clears the dead handles and schedules a single reconnect
// attempt. The reconnecting flag keeps concurrent close events from spawning
// parallel loops; exceeding MaxReconnectAttempts leaves the broker
// permanently disconnected until the process is restarted.
func (b *Broker) handleDisconnect() {
	b.mu.Lock()
	b.connected = false
	b.conn = nil
	b.ch = nil

	// Release any publisher stuck waiting for a drain signal; the dead
	// channel will fail their publish instead.
	if b.blocked {
		close(b.unblocked)
		b.blocked = false
	}

	if b.closing || b.reconnecting {
		b.mu.Unlock()
		return
	}

	if b.reconnectAttempts >= b.cfg.MaxReconnectAttempts {
		b.mu.Unlock()
		b.logger.Errorw("broker reconnect attempts exhausted, staying disconnected",
			"attempts", b.cfg.MaxReconnectAttempts)
		return
	}

	b.reconnecting = true
	b.reconnectAttempts++
	attempt := b.reconnectAttempts
	delay := b.cfg.ReconnectDelay
	b.mu.Unlock()

	go func() {
		time.Sleep(delay)

		b.logger.Infow("broker reconnecting", "attempt", attempt)
		err := b.Connect(context.Background())

		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()

		if err != nil {
			b.logger.Warnw("broker reconnect failed", "attempt", attempt, "error", err)
			b.handleDisconnect()
		}
	}()
}

// watchBlocked tracks TCP flow control from the broker. While blocked,
// Publish waits on the unblocked channel.
func (b *Broker) watchBlocked(blockedCh chan amqp.Blocking) {
	for blocking := range blockedCh {
		b.mu.Lock()
		switch {
		case blocking.Active && !b.blocked:
			b.blocked = true
			b.unblocked = make(chan struct{})
			b.logger.Warnw("broker flow control active", "reason", blocking.Reason)
		case !blocking.Active && b.blocked:
			b.blocked = false
			close(b.unblocked)
			b.logger.Infow("broker flow control released")
		}
		b.mu.Unlock()
	}
}
