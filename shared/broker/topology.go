package broker

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange names
const (
	TransactionsExchange = "transactions"
	UsersExchange        = "users"
)

// queueTTL bounds how long an undelivered event sits in a queue.
const queueTTL = 24 * time.Hour

// binding ties a durable queue to its exchange by routing key. Queue names
// match the routing key of the single event type they hold.
type binding struct {
	exchange   string
	queue      string
	routingKey string
}

var topology = []binding{
	{TransactionsExchange, "transaction.created", "transaction.created"},
	{TransactionsExchange, "transaction.processed", "transaction.processed"},
	{TransactionsExchange, "transaction.cancelled", "transaction.cancelled"},
	{UsersExchange, "user.registered", "user.registered"},
	{UsersExchange, "user.banking-data-updated", "user.banking-data-updated"},
}

// declareTopology declares the fixed set of exchanges, queues and bindings.
// Declarations are idempotent on the broker side.
func declareTopology(ch amqpChannel) error {
	for _, exchange := range []string{TransactionsExchange, UsersExchange} {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	args := amqp.Table{"x-message-ttl": queueTTL.Milliseconds()}

	for _, b := range topology {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}
