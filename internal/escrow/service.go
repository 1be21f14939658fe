package escrow

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ticketnft/escrow-service/internal/clock"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/observability"
)

// Config carries the settlement parameters fixed at service construction.
// FeeBps and GracePeriod are frozen onto each order at creation; changing
// them later never touches existing orders.
type Config struct {
	Arbiter     domain.Address
	Platform    domain.Address
	FeeBps      int64
	GracePeriod time.Duration
}

// Service is the escrow facade. Every write operation evaluates its guards
// and mutates the ledger as a single atomic unit; guard failures leave no
// partial state behind.
type Service struct {
	ledger Ledger
	clock  clock.Clock
	cfg    Config
	logger observability.Logger
}

func NewService(ledger Ledger, clk clock.Clock, cfg Config, logger observability.Logger) (*Service, error) {
	if cfg.FeeBps < 0 || cfg.FeeBps > domain.MaxFeeBps {
		return nil, domain.ErrInvalidFeeRate
	}
	return &Service{ledger: ledger, clock: clk, cfg: cfg, logger: logger}, nil
}

// CreateOrder takes custody of amount for a ticket purchase. The caller is
// the buyer and must have already received the payment; this core tracks
// custody bookkeeping only. Returns the persisted order with its new id.
func (s *Service) CreateOrder(ctx context.Context, buyer, seller domain.Address, eventID, ticketTypeID, amount int64) (domain.Order, error) {
	if amount <= 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}
	platformFee, sellerAmount, err := domain.SplitFee(amount, s.cfg.FeeBps)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now()
	order := domain.Order{
		Buyer:            buyer,
		Seller:           seller,
		Amount:           amount,
		PlatformFee:      platformFee,
		SellerAmount:     sellerAmount,
		EventID:          eventID,
		TicketTypeID:     ticketTypeID,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		DeliveryDeadline: now.Add(s.cfg.GracePeriod),
	}
	ev := domain.Event{
		Type:   domain.EventOrderCreated,
		Status: domain.StatusPending,
		Actor:  buyer,
	}

	created, err := s.ledger.CreateOrder(ctx, order, ev)
	if err != nil {
		observability.TransitionsTotal.WithLabelValues("create", "error").Inc()
		return domain.Order{}, errors.Wrap(err, "create order")
	}
	observability.TransitionsTotal.WithLabelValues("create", "ok").Inc()
	observability.EscrowHeld.Add(float64(amount))
	s.logger.WithField("order_id", created.ID).Info("order created, funds in custody")
	return created, nil
}

// ConfirmDelivery is the buyer's irrevocable trust signal. There is no
// resting confirmed state: the order goes straight to Released and the
// payout intents are emitted in the same transaction.
func (s *Service) ConfirmDelivery(ctx context.Context, caller domain.Address, orderID int64) (domain.Order, error) {
	return s.transition(ctx, "confirm_delivery", orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		if caller != o.Buyer {
			return o, nil, domain.ErrUnauthorized
		}
		if o.Status != domain.StatusPending {
			return o, nil, domain.ErrInvalidStateTransition
		}
		o.Status = domain.StatusReleased
		return o, []domain.Event{{
			Type:    domain.EventOrderReleased,
			Status:  o.Status,
			Actor:   caller,
			Intents: releaseIntents(o, s.cfg.Platform),
		}}, nil
	})
}

// RaiseDispute moves a pending order into dispute. Only the buyer may
// dispute, and a reason is mandatory for the audit trail.
func (s *Service) RaiseDispute(ctx context.Context, caller domain.Address, orderID int64, reason string) (domain.Order, error) {
	if reason == "" {
		return domain.Order{}, domain.ErrEmptyDisputeReason
	}
	return s.transition(ctx, "raise_dispute", orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		if caller != o.Buyer {
			return o, nil, domain.ErrUnauthorized
		}
		if o.Status != domain.StatusPending {
			return o, nil, domain.ErrInvalidStateTransition
		}
		o.Status = domain.StatusDisputed
		o.DisputeReason = reason
		return o, []domain.Event{{
			Type:   domain.EventOrderDisputed,
			Status: o.Status,
			Actor:  caller,
		}}, nil
	})
}

// ResolveDispute lets the configured arbiter settle a disputed order.
// The resolution text is recorded permanently regardless of outcome. This
// is an authorization gate, not an adjudicator: the verdict arrives as
// releaseToSeller.
func (s *Service) ResolveDispute(ctx context.Context, caller domain.Address, orderID int64, releaseToSeller bool, resolution string) (domain.Order, error) {
	if caller != s.cfg.Arbiter {
		observability.TransitionsTotal.WithLabelValues("resolve_dispute", "unauthorized").Inc()
		return domain.Order{}, domain.ErrUnauthorized
	}
	return s.transition(ctx, "resolve_dispute", orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		if o.Status != domain.StatusDisputed {
			return o, nil, domain.ErrInvalidStateTransition
		}
		o.Resolution = resolution
		var intents []domain.FundIntent
		if releaseToSeller {
			o.Status = domain.StatusReleased
			intents = releaseIntents(o, s.cfg.Platform)
		} else {
			o.Status = domain.StatusRefunded
			intents = refundIntents(o)
		}
		return o, []domain.Event{{
			Type:    domain.EventOrderResolved,
			Status:  o.Status,
			Actor:   caller,
			Intents: intents,
		}}, nil
	})
}

// AutoRelease releases an overdue order to the seller. Callable by anyone:
// the deadline guard makes early release impossible no matter who calls,
// and open callability means no single operator is a liveness dependency.
func (s *Service) AutoRelease(ctx context.Context, caller domain.Address, orderID int64) (domain.Order, error) {
	return s.transition(ctx, "auto_release", orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		if o.Status != domain.StatusPending && o.Status != domain.StatusDisputed {
			return o, nil, domain.ErrInvalidStateTransition
		}
		if s.clock.Now().Before(o.DeliveryDeadline) {
			return o, nil, domain.ErrNotYetEligible
		}
		o.Status = domain.StatusReleased
		return o, []domain.Event{{
			Type:    domain.EventOrderReleased,
			Status:  o.Status,
			Actor:   caller,
			Intents: releaseIntents(o, s.cfg.Platform),
		}}, nil
	})
}

// SellerRefund lets the seller return a pending payment in full, e.g. when
// the ticket cannot be delivered.
func (s *Service) SellerRefund(ctx context.Context, caller domain.Address, orderID int64) (domain.Order, error) {
	return s.transition(ctx, "seller_refund", orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		if caller != o.Seller {
			return o, nil, domain.ErrUnauthorized
		}
		if o.Status != domain.StatusPending {
			return o, nil, domain.ErrInvalidStateTransition
		}
		o.Status = domain.StatusRefunded
		return o, []domain.Event{{
			Type:    domain.EventOrderRefunded,
			Status:  o.Status,
			Actor:   caller,
			Intents: refundIntents(o),
		}}, nil
	})
}

// CancelOrder voids a pending order by mutual option: either party may
// cancel before delivery is confirmed, and the buyer is refunded in full.
func (s *Service) CancelOrder(ctx context.Context, caller domain.Address, orderID int64) (domain.Order, error) {
	return s.transition(ctx, "cancel_order", orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		if caller != o.Buyer && caller != o.Seller {
			return o, nil, domain.ErrUnauthorized
		}
		if o.Status != domain.StatusPending {
			return o, nil, domain.ErrInvalidStateTransition
		}
		o.Status = domain.StatusCancelled
		return o, []domain.Event{{
			Type:    domain.EventOrderCancelled,
			Status:  o.Status,
			Actor:   caller,
			Intents: refundIntents(o),
		}}, nil
	})
}

// GetOrder returns a consistent snapshot of one order.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.ledger.GetOrder(ctx, orderID)
}

// GetBuyerOrders lists all orders where the address is the buyer.
func (s *Service) GetBuyerOrders(ctx context.Context, buyer domain.Address) ([]domain.Order, error) {
	return s.ledger.OrdersByBuyer(ctx, buyer)
}

// GetSellerOrders lists all orders where the address is the seller.
func (s *Service) GetSellerOrders(ctx context.Context, seller domain.Address) ([]domain.Order, error) {
	return s.ledger.OrdersBySeller(ctx, seller)
}

// GetEscrowBalance returns the total amount currently held in custody.
func (s *Service) GetEscrowBalance(ctx context.Context) (int64, error) {
	return s.ledger.EscrowBalance(ctx)
}

// PlatformFeeBps returns the configured fee rate in basis points.
func (s *Service) PlatformFeeBps() int64 {
	return s.cfg.FeeBps
}

// Arbiter returns the identity authorized to resolve disputes.
func (s *Service) Arbiter() domain.Address {
	return s.cfg.Arbiter
}

// CanAutoRelease is a pure read: true iff the order is still in Pending or
// Disputed and its delivery deadline has passed.
func (s *Service) CanAutoRelease(ctx context.Context, orderID int64) (bool, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	eligible := (o.Status == domain.StatusPending || o.Status == domain.StatusDisputed) &&
		!s.clock.Now().Before(o.DeliveryDeadline)
	return eligible, nil
}

// GetAutoReleaseTime returns the instant at which the order becomes
// eligible for unilateral release.
func (s *Service) GetAutoReleaseTime(ctx context.Context, orderID int64) (time.Time, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return time.Time{}, err
	}
	return o.DeliveryDeadline, nil
}

// transition runs one guarded state change through the ledger and records
// the outcome. Guard errors pass through untouched so callers can match
// on the domain sentinels. The transition table is re-checked after the
// operation guard; an illegal move never reaches the ledger write.
func (s *Service) transition(ctx context.Context, op string, orderID int64, fn func(domain.Order) (domain.Order, []domain.Event, error)) (domain.Order, error) {
	start := time.Now()
	updated, err := s.ledger.UpdateOrder(ctx, orderID, func(o domain.Order) (domain.Order, []domain.Event, error) {
		next, events, err := fn(o)
		if err != nil {
			return o, nil, err
		}
		if next.Status != o.Status && !domain.CanTransition(o.Status, next.Status) {
			return o, nil, domain.ErrInvalidStateTransition
		}
		return next, events, nil
	})
	observability.TxDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.TransitionsTotal.WithLabelValues(op, outcome(err)).Inc()
		return domain.Order{}, err
	}
	observability.TransitionsTotal.WithLabelValues(op, "ok").Inc()
	if updated.Status.Terminal() {
		observability.EscrowHeld.Sub(float64(updated.Amount))
	}
	s.logger.WithField("order_id", updated.ID).WithField("status", updated.Status.String()).Info("order transition applied")
	return updated, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNotYetEligible):
		return "not_yet_eligible"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func releaseIntents(o domain.Order, platform domain.Address) []domain.FundIntent {
	return []domain.FundIntent{
		{Kind: domain.IntentPay, Account: o.Seller, Amount: o.SellerAmount},
		{Kind: domain.IntentPay, Account: platform, Amount: o.PlatformFee},
	}
}

func refundIntents(o domain.Order) []domain.FundIntent {
	return []domain.FundIntent{
		{Kind: domain.IntentRefund, Account: o.Buyer, Amount: o.Amount},
	}
}
