package escrow

import (
	"context"

	"github.com/ticketnft/escrow-service/internal/domain"
)

// Ledger is the durable order store. Implementations must make each call
// atomic: a creation persists the order, the next-id counter advance and
// the outbox event together, and an update applies the mutation and its
// events in one transaction or not at all.
//
// UpdateOrder must serialize concurrent mutations of the same order id
// (per-order lock, single-writer transaction, or CAS on the stored status).
// When serialization cannot be guaranteed the call fails with
// domain.ErrConflict and nothing is persisted.
type Ledger interface {
	// CreateOrder allocates the next order id, stamps it on the order and
	// event, and persists both. The counter only advances when the insert
	// commits, so failed creates never burn ids.
	CreateOrder(ctx context.Context, o domain.Order, ev domain.Event) (domain.Order, error)

	// GetOrder returns a consistent snapshot of one order.
	GetOrder(ctx context.Context, id int64) (domain.Order, error)

	// UpdateOrder loads the order, applies fn under the per-order writer
	// guarantee, and persists the returned order plus events atomically.
	// If fn returns an error nothing is written and the error is returned
	// unchanged.
	UpdateOrder(ctx context.Context, id int64, fn func(domain.Order) (domain.Order, []domain.Event, error)) (domain.Order, error)

	OrdersByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Order, error)
	OrdersBySeller(ctx context.Context, seller domain.Address) ([]domain.Order, error)

	// EscrowBalance sums Amount over all orders still in custody.
	EscrowBalance(ctx context.Context) (int64, error)
}
