package domain

// IntentKind discriminates fund-movement intents handed to the payment layer.
type IntentKind string

const (
	IntentPay    IntentKind = "pay"
	IntentRefund IntentKind = "refund"
)

// FundIntent authorizes the payment layer to move escrowed funds. The core
// records the authorization; it does not itself hold liquid balances.
type FundIntent struct {
	Kind    IntentKind `json:"kind"`
	Account Address    `json:"account"`
	Amount  int64      `json:"amount"`
}

// Event is an escrow state change destined for the outbox. Intents carry
// the fund movements the transition authorized, emitted exactly once in
// the same transaction as the status change.
type Event struct {
	Type    string       `json:"type"`
	OrderID int64        `json:"order_id"`
	Status  Status       `json:"status"`
	Actor   Address      `json:"actor,omitempty"`
	Intents []FundIntent `json:"intents,omitempty"`
}

// Event routing keys published on the escrow topic exchange.
const (
	EventOrderCreated   = "escrow.order.created"
	EventOrderReleased  = "escrow.order.released"
	EventOrderDisputed  = "escrow.order.disputed"
	EventOrderResolved  = "escrow.order.resolved"
	EventOrderRefunded  = "escrow.order.refunded"
	EventOrderCancelled = "escrow.order.cancelled"
)
