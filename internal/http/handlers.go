package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/escrow"
	"github.com/ticketnft/escrow-service/internal/idempotency"
)

// IdempotencyStore replays stored responses for repeated write requests.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
}

type Handlers struct {
	svc   *escrow.Service
	idemp IdempotencyStore
}

func NewHandlers(svc *escrow.Service, idemp IdempotencyStore) *Handlers {
	return &Handlers{svc: svc, idemp: idemp}
}

type errorBody struct {
	Error       string `json:"error"`
	OrderStatus string `json:"order_status,omitempty"`
}

// errorKinds maps domain sentinels to the wire error kind and HTTP status.
var errorKinds = []struct {
	err  error
	kind string
	code int
}{
	{domain.ErrInvalidAmount, "INVALID_AMOUNT", http.StatusBadRequest},
	{domain.ErrInvalidFeeRate, "INVALID_FEE_RATE", http.StatusBadRequest},
	{domain.ErrEmptyDisputeReason, "EMPTY_DISPUTE_REASON", http.StatusBadRequest},
	{domain.ErrUnauthorized, "UNAUTHORIZED", http.StatusForbidden},
	{domain.ErrInvalidStateTransition, "INVALID_STATE_TRANSITION", http.StatusConflict},
	{domain.ErrNotYetEligible, "NOT_YET_ELIGIBLE", http.StatusTooEarly},
	{domain.ErrOrderNotFound, "ORDER_NOT_FOUND", http.StatusNotFound},
	{domain.ErrConflict, "CONFLICT", http.StatusConflict},
}

// writeDomainError reports the error kind plus the order's current status,
// so the caller can decide whether to retry, dispute or abandon.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, orderID int64, err error) {
	kind, code := "INTERNAL", http.StatusInternalServerError
	for _, e := range errorKinds {
		if errors.Is(err, e.err) {
			kind, code = e.kind, e.code
			break
		}
	}

	body := errorBody{Error: kind}
	if orderID != 0 && !errors.Is(err, domain.ErrOrderNotFound) {
		if o, lookupErr := h.svc.GetOrder(r.Context(), orderID); lookupErr == nil {
			body.OrderStatus = o.Status.String()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

type orderResponse struct {
	OrderID          int64  `json:"order_id"`
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	Amount           int64  `json:"amount"`
	PlatformFee      int64  `json:"platform_fee"`
	SellerAmount     int64  `json:"seller_amount"`
	EventID          int64  `json:"event_id"`
	TicketTypeID     int64  `json:"ticket_type_id"`
	TokenID          int64  `json:"token_id"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	DeliveryDeadline string `json:"delivery_deadline"`
	DisputeReason    string `json:"dispute_reason,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:          o.ID,
		Buyer:            string(o.Buyer),
		Seller:           string(o.Seller),
		Amount:           o.Amount,
		PlatformFee:      o.PlatformFee,
		SellerAmount:     o.SellerAmount,
		EventID:          o.EventID,
		TicketTypeID:     o.TicketTypeID,
		TokenID:          o.TokenID,
		Status:           o.Status.String(),
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
		DeliveryDeadline: o.DeliveryDeadline.Format(time.RFC3339),
		DisputeReason:    o.DisputeReason,
		Resolution:       o.Resolution,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// replayIdempotent writes a stored response for a repeated key and reports
// whether the request was already served.
func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil || existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) storeIdempotent(r *http.Request, status int, body []byte) {
	key := r.Header.Get("Idempotency-Key")
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: body})
}

func orderIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}

	caller, ok := CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		Seller       string `json:"seller"`
		EventID      int64  `json:"event_id"`
		TicketTypeID int64  `json:"ticket_type_id"`
		Amount       int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), caller, domain.Address(req.Seller), req.EventID, req.TicketTypeID, req.Amount)
	if err != nil {
		h.writeDomainError(w, r, 0, err)
		return
	}

	body := h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
	h.storeIdempotent(r, http.StatusCreated, body)
}

// transition wires one write operation through the shared idempotency,
// identity and error plumbing.
func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, op func(caller domain.Address, orderID int64) (domain.Order, error)) {
	if h.replayIdempotent(w, r) {
		return
	}

	caller, ok := CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	order, err := op(caller, orderID)
	if err != nil {
		h.writeDomainError(w, r, orderID, err)
		return
	}

	body := h.writeJSON(w, http.StatusOK, toOrderResponse(order))
	h.storeIdempotent(r, http.StatusOK, body)
}

func (h *Handlers) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(caller domain.Address, orderID int64) (domain.Order, error) {
		return h.svc.ConfirmDelivery(r.Context(), caller, orderID)
	})
}

func (h *Handlers) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.transition(w, r, func(caller domain.Address, orderID int64) (domain.Order, error) {
		return h.svc.RaiseDispute(r.Context(), caller, orderID, req.Reason)
	})
}

func (h *Handlers) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReleaseToSeller bool   `json:"release_to_seller"`
		Resolution      string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.transition(w, r, func(caller domain.Address, orderID int64) (domain.Order, error) {
		return h.svc.ResolveDispute(r.Context(), caller, orderID, req.ReleaseToSeller, req.Resolution)
	})
}

func (h *Handlers) AutoRelease(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(caller domain.Address, orderID int64) (domain.Order, error) {
		return h.svc.AutoRelease(r.Context(), caller, orderID)
	})
}

func (h *Handlers) SellerRefund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(caller domain.Address, orderID int64) (domain.Order, error) {
		return h.svc.SellerRefund(r.Context(), caller, orderID)
	})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(caller domain.Address, orderID int64) (domain.Order, error) {
		return h.svc.CancelOrder(r.Context(), caller, orderID)
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	order, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, r, orderID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handlers) GetBuyerOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, h.svc.GetBuyerOrders)
}

func (h *Handlers) GetSellerOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, h.svc.GetSellerOrders)
}

func (h *Handlers) listOrders(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, addr domain.Address) ([]domain.Order, error)) {
	address := domain.Address(chi.URLParam(r, "address"))
	orders, err := list(r.Context(), address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": out})
}

func (h *Handlers) GetEscrowBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.GetEscrowBalance(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

func (h *Handlers) GetPlatformFee(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"fee_bps": h.svc.PlatformFeeBps(),
		"arbiter": string(h.svc.Arbiter()),
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
