package domain

import "time"

// Address is an opaque account identifier supplied by the upstream
// auth/wallet layer. The core never interprets it.
type Address string

// Order is a single escrowed payment tied to one buyer/seller/ticket purchase.
// Amounts are integer atomic units; PlatformFee + SellerAmount == Amount always.
type Order struct {
	ID               int64
	Buyer            Address
	Seller           Address
	Amount           int64
	PlatformFee      int64
	SellerAmount     int64
	EventID          int64
	TicketTypeID     int64
	TokenID          int64
	Status           Status
	CreatedAt        time.Time
	DeliveryDeadline time.Time
	DisputeReason    string
	Resolution       string
}

// InCustody reports whether the order's funds are still held by the escrow.
func (o Order) InCustody() bool {
	return !o.Status.Terminal()
}
