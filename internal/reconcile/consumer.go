package reconcile

import (
	"context"
	"encoding/json"

	"github.com/ticketnft/escrow-service/internal/adapters/mongo"
	"github.com/ticketnft/escrow-service/internal/adapters/rabbit"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/observability"
)

// ExecutionReport is the payment layer's verdict on one fund intent the
// escrow previously emitted.
type ExecutionReport struct {
	OrderID int64             `json:"order_id"`
	Intent  domain.FundIntent `json:"intent"`
	Status  string            `json:"status"` // EXECUTED or FAILED
	Reason  string            `json:"reason,omitempty"`
}

// Consumer ingests execution reports. A FAILED report for a committed
// transition is never auto-reverted: reversing a released order would
// break the terminal-state invariant. It becomes a reconciliation
// incident for manual intervention.
type Consumer struct {
	consumer *rabbit.Consumer
	audit    *mongo.AuditLogger
	logger   observability.Logger
}

func NewConsumer(consumer *rabbit.Consumer, audit *mongo.AuditLogger, logger observability.Logger) *Consumer {
	return &Consumer{consumer: consumer, audit: audit, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d.Body)
			d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) {
	var report ExecutionReport
	if err := json.Unmarshal(body, &report); err != nil {
		c.logger.WithError(err).Error("malformed execution report")
		return
	}

	if report.Status != "FAILED" {
		c.logger.WithField("order_id", report.OrderID).Debug("fund intent executed")
		return
	}

	observability.ReconciliationFailures.Inc()
	c.logger.WithField("order_id", report.OrderID).
		WithField("account", string(report.Intent.Account)).
		WithField("amount", report.Intent.Amount).
		Error("fund intent execution failed after commit, manual reconciliation required")
	c.audit.LogReconciliationFailure(ctx, report.OrderID, report.Intent, report.Reason)
}
