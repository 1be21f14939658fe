package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ticketnft/escrow-service/internal/adapters/memory"
	"github.com/ticketnft/escrow-service/internal/clock"
	"github.com/ticketnft/escrow-service/internal/escrow"
	"github.com/ticketnft/escrow-service/internal/idempotency"
	"github.com/ticketnft/escrow-service/internal/observability"
)

type fakeIdempStore struct {
	mu    sync.Mutex
	items map[string]idempotency.Response
}

func newFakeIdempStore() *fakeIdempStore {
	return &fakeIdempStore{items: make(map[string]idempotency.Response)}
}

func (s *fakeIdempStore) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp, ok := s.items[key]; ok {
		return &resp, nil
	}
	return nil, nil
}

func (s *fakeIdempStore) Set(ctx context.Context, key string, resp idempotency.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = resp
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *clock.Fixed) {
	t.Helper()
	ledger := memory.NewLedger(nil)
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, err := escrow.NewService(ledger, clk, escrow.Config{
		Arbiter:     "0xarbiter",
		Platform:    "0xplatform",
		FeeBps:      250,
		GracePeriod: 72 * time.Hour,
	}, observability.NewLogger())
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandlers(svc, newFakeIdempStore())
	r := chi.NewRouter()
	r.Use(IdentityMiddleware)
	r.Use(IdempotencyMiddleware())
	registerRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, clk
}

func doJSON(t *testing.T, method, url, caller string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", fmt.Sprintf("test-key-%d-%s-%s", time.Now().UnixNano(), method, url))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) orderResponse {
	t.Helper()
	defer resp.Body.Close()
	var o orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		t.Fatal(err)
	}
	return o
}

func createTestOrder(t *testing.T, srv *httptest.Server, amount int64) orderResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", "0xbuyer", map[string]interface{}{
		"seller":         "0xseller",
		"event_id":       7,
		"ticket_type_id": 1,
		"amount":         amount,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d", resp.StatusCode)
	}
	return decodeOrder(t, resp)
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	order := createTestOrder(t, srv, 1_000_000)
	if order.OrderID != 1 || order.Status != "PENDING" {
		t.Errorf("unexpected order %+v", order)
	}
	if order.PlatformFee != 25_000 || order.SellerAmount != 975_000 {
		t.Errorf("unexpected fee split %+v", order)
	}
}

func TestCreateOrder_MissingIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", "", map[string]interface{}{
		"seller": "0xseller", "amount": 100,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_InvalidAmount(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", "0xbuyer", map[string]interface{}{
		"seller": "0xseller", "amount": 0,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "INVALID_AMOUNT" {
		t.Errorf("expected INVALID_AMOUNT, got %q", body.Error)
	}
}

func TestConfirmDeliveryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	order := createTestOrder(t, srv, 1_000_000)

	url := fmt.Sprintf("%s/v1/orders/%d/confirm", srv.URL, order.OrderID)
	resp := doJSON(t, http.MethodPost, url, "0xbuyer", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeOrder(t, resp)
	if got.Status != "RELEASED" {
		t.Errorf("expected RELEASED, got %s", got.Status)
	}

	// Replaying the transition from scratch must be rejected with the
	// current status in the body.
	resp = doJSON(t, http.MethodPost, url, "0xbuyer", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "INVALID_STATE_TRANSITION" || body.OrderStatus != "RELEASED" {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestResolveDispute_NonArbiter(t *testing.T) {
	srv, _ := newTestServer(t)
	order := createTestOrder(t, srv, 1_000_000)

	url := fmt.Sprintf("%s/v1/orders/%d/resolve", srv.URL, order.OrderID)
	resp := doJSON(t, http.MethodPost, url, "0xbuyer", map[string]interface{}{
		"release_to_seller": true, "resolution": "x",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDisputeFlowEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	order := createTestOrder(t, srv, 1_000_000)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/orders/%d/dispute", srv.URL, order.OrderID), "0xbuyer", map[string]interface{}{
		"reason": "never delivered",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispute: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/orders/%d/resolve", srv.URL, order.OrderID), "0xarbiter", map[string]interface{}{
		"release_to_seller": false, "resolution": "refund granted",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", resp.StatusCode)
	}
	got := decodeOrder(t, resp)
	if got.Status != "REFUNDED" || got.Resolution != "refund granted" {
		t.Errorf("unexpected resolved order %+v", got)
	}
}

func TestAutoReleaseEndpoint(t *testing.T) {
	srv, clk := newTestServer(t)
	order := createTestOrder(t, srv, 1_000_000)
	url := fmt.Sprintf("%s/v1/orders/%d/auto-release", srv.URL, order.OrderID)

	resp := doJSON(t, http.MethodPost, url, "0xanyone", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooEarly {
		t.Fatalf("expected 425 before deadline, got %d", resp.StatusCode)
	}

	clk.Advance(72 * time.Hour)

	resp = doJSON(t, http.MethodPost, url, "0xanyone", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 at deadline, got %d", resp.StatusCode)
	}
	got := decodeOrder(t, resp)
	if got.Status != "RELEASED" {
		t.Errorf("expected RELEASED, got %s", got.Status)
	}
}

func TestGetOrderEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	order := createTestOrder(t, srv, 500)

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/orders/%d", srv.URL, order.OrderID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeOrder(t, resp)
	if got.OrderID != order.OrderID || got.Amount != 500 {
		t.Errorf("unexpected order %+v", got)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/orders/999", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListAndAggregateEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	createTestOrder(t, srv, 300)
	createTestOrder(t, srv, 200)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/buyers/0xbuyer/orders", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Orders []orderResponse `json:"orders"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Orders) != 2 {
		t.Errorf("expected 2 buyer orders, got %d", len(list.Orders))
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/escrow/balance", "", nil)
	var bal struct {
		Balance int64 `json:"balance"`
	}
	json.NewDecoder(resp.Body).Decode(&bal)
	resp.Body.Close()
	if bal.Balance != 500 {
		t.Errorf("expected balance 500, got %d", bal.Balance)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/escrow/fee", "", nil)
	var fee struct {
		FeeBps  int64  `json:"fee_bps"`
		Arbiter string `json:"arbiter"`
	}
	json.NewDecoder(resp.Body).Decode(&fee)
	resp.Body.Close()
	if fee.FeeBps != 250 || fee.Arbiter != "0xarbiter" {
		t.Errorf("unexpected fee response %+v", fee)
	}
}

func TestIdempotentReplay(t *testing.T) {
	srv, _ := newTestServer(t)

	body := map[string]interface{}{
		"seller": "0xseller", "event_id": 7, "ticket_type_id": 1, "amount": 100,
	}
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/orders", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CallerHeader, "0xbuyer")
	req.Header.Set("Idempotency-Key", "replay-key-0123456789abcdef")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	first := decodeOrder(t, resp)

	// Same key again: stored response replayed, no second order created.
	json.NewEncoder(&buf).Encode(body)
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/orders", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CallerHeader, "0xbuyer")
	req.Header.Set("Idempotency-Key", "replay-key-0123456789abcdef")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	second := decodeOrder(t, resp)
	if second.OrderID != first.OrderID {
		t.Errorf("replay created a new order: %d vs %d", second.OrderID, first.OrderID)
	}

	listResp := doJSON(t, http.MethodGet, srv.URL+"/v1/buyers/0xbuyer/orders", "", nil)
	var list struct {
		Orders []orderResponse `json:"orders"`
	}
	json.NewDecoder(listResp.Body).Decode(&list)
	listResp.Body.Close()
	if len(list.Orders) != 1 {
		t.Errorf("expected 1 order after replay, got %d", len(list.Orders))
	}
}

func TestMissingIdempotencyKey(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/orders", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(CallerHeader, "0xbuyer")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without Idempotency-Key, got %d", resp.StatusCode)
	}
}
