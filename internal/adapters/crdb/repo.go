package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketnft/escrow-service/internal/domain"
)

const (
	SerializationFailureCode = "40001"
)

const orderColumns = `id, buyer, seller, amount, platform_fee, seller_amount,
	event_id, ticket_type_id, token_id, status, created_at, delivery_deadline,
	dispute_reason, resolution`

// Repository is the durable order ledger backed by CockroachDB. Every write
// runs inside a SERIALIZABLE transaction; a serialization failure surfaces
// as domain.ErrConflict, the retry belongs to the caller.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrConflict
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

// CreateOrder allocates the next id from the counter row and persists the
// order plus its outbox event in one transaction. A rolled-back create
// rolls the counter back with it, so ids are never burnt or reused.
func (r *Repository) CreateOrder(ctx context.Context, o domain.Order, ev domain.Event) (domain.Order, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE escrow_counters SET next_order_id = next_order_id + 1
			WHERE id = 1
			RETURNING next_order_id
		`).Scan(&o.ID)
		if err != nil {
			return errors.Wrap(err, "allocate order id")
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, o.ID, o.Buyer, o.Seller, o.Amount, o.PlatformFee, o.SellerAmount,
			o.EventID, o.TicketTypeID, o.TokenID, int(o.Status), o.CreatedAt,
			o.DeliveryDeadline, o.DisputeReason, o.Resolution)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}

		ev.OrderID = o.ID
		return r.InsertOutbox(ctx, tx, ev)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// UpdateOrder applies one guarded mutation under SELECT FOR UPDATE, which
// gives the single-writer-per-order guarantee without a global lock.
func (r *Repository) UpdateOrder(ctx context.Context, id int64, fn func(domain.Order) (domain.Order, []domain.Event, error)) (domain.Order, error) {
	var updated domain.Order
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+orderColumns+`
			FROM orders WHERE id = $1 FOR UPDATE
		`, id)
		current, err := scanOrder(row)
		if err != nil {
			return err
		}

		next, events, err := fn(current)
		if err != nil {
			return err
		}
		updated = next

		_, err = tx.Exec(ctx, `
			UPDATE orders
			SET status = $2, dispute_reason = $3, resolution = $4
			WHERE id = $1
		`, id, int(next.Status), next.DisputeReason, next.Resolution)
		if err != nil {
			return errors.Wrap(err, "update order")
		}

		for _, ev := range events {
			ev.OrderID = id
			if err := r.InsertOutbox(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE id = $1
	`, id)
	return scanOrder(row)
}

func (r *Repository) OrdersByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Order, error) {
	return r.ordersWhere(ctx, "buyer", string(buyer))
}

func (r *Repository) OrdersBySeller(ctx context.Context, seller domain.Address) ([]domain.Order, error) {
	return r.ordersWhere(ctx, "seller", string(seller))
}

func (r *Repository) ordersWhere(ctx context.Context, column, value string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE `+column+` = $1 ORDER BY id ASC
	`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OverdueOrders lists orders past their delivery deadline that are still
// eligible for auto-release. A plain read: the auto-release guard is
// re-evaluated transactionally when the worker fires the transition.
func (r *Repository) OverdueOrders(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN ($1, $2) AND delivery_deadline <= $3
		ORDER BY delivery_deadline ASC LIMIT $4
	`, int(domain.StatusPending), int(domain.StatusDisputed), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// EscrowBalance sums the gross amount of every order still in custody,
// that is any order not yet in a terminal status.
func (r *Repository) EscrowBalance(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM orders WHERE status IN ($1, $2, $3)
	`, int(domain.StatusPending), int(domain.StatusConfirmed), int(domain.StatusDisputed)).Scan(&total)
	return total, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var status int
	err := row.Scan(&o.ID, &o.Buyer, &o.Seller, &o.Amount, &o.PlatformFee,
		&o.SellerAmount, &o.EventID, &o.TicketTypeID, &o.TokenID, &status,
		&o.CreatedAt, &o.DeliveryDeadline, &o.DisputeReason, &o.Resolution)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)
	return o, nil
}
