package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExecutionQueue carries the payment layer's reports on executed fund
// intents, consumed by the reconciliation worker.
const ExecutionQueue = "escrow.execution.q"

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

func NewConsumer(conn *amqp.Connection, queue string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(c.queue, "", false, false, false, false, nil)
}
