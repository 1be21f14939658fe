package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends an immutable trail of escrow transitions and
// reconciliation incidents. Audit writes are best effort: a failed append
// is logged but never fails the transition it describes.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	OrderID   int64     `bson:"order_id"`
	Actor     string    `bson:"actor,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data,omitempty"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, orderID int64, actor domain.Address, data map[string]interface{}) {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		OrderID:   orderID,
		Actor:     string(actor),
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
	}
}

// LogTransition records an applied escrow event, including the fund
// intents it authorized.
func (a *AuditLogger) LogTransition(ctx context.Context, ev domain.Event) {
	data := map[string]interface{}{
		"status": ev.Status.String(),
	}
	if len(ev.Intents) > 0 {
		intents := make([]bson.M, 0, len(ev.Intents))
		for _, in := range ev.Intents {
			intents = append(intents, bson.M{
				"kind":    string(in.Kind),
				"account": string(in.Account),
				"amount":  in.Amount,
			})
		}
		data["intents"] = intents
	}
	a.LogEvent(ctx, ev.Type, ev.OrderID, ev.Actor, data)
}

// LogReconciliationFailure records a fund intent the payment layer failed
// to execute after the transition had already committed. The order is not
// reverted; this record is the input to manual reconciliation.
func (a *AuditLogger) LogReconciliationFailure(ctx context.Context, orderID int64, intent domain.FundIntent, reason string) {
	a.LogEvent(ctx, "escrow.reconciliation.failed", orderID, intent.Account, map[string]interface{}{
		"kind":   string(intent.Kind),
		"amount": intent.Amount,
		"reason": reason,
	})
}
