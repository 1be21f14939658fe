package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ticketnft/escrow-service/internal/adapters/memory"
	"github.com/ticketnft/escrow-service/internal/domain"
)

func pendingOrder(amount int64) domain.Order {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		Buyer:            "0xbuyer",
		Seller:           "0xseller",
		Amount:           amount,
		PlatformFee:      amount / 40,
		SellerAmount:     amount - amount/40,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		DeliveryDeadline: now.Add(72 * time.Hour),
	}
}

func TestLedger_CreateAssignsMonotonicIDs(t *testing.T) {
	ledger := memory.NewLedger(nil)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		o, err := ledger.CreateOrder(ctx, pendingOrder(100), domain.Event{Type: domain.EventOrderCreated})
		if err != nil {
			t.Fatal(err)
		}
		if o.ID != want {
			t.Fatalf("expected id %d, got %d", want, o.ID)
		}
	}
}

func TestLedger_GetOrderNotFound(t *testing.T) {
	ledger := memory.NewLedger(nil)
	if _, err := ledger.GetOrder(context.Background(), 1); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestLedger_UpdateFailureLeavesOrderUntouched(t *testing.T) {
	ledger := memory.NewLedger(nil)
	ctx := context.Background()
	o, err := ledger.CreateOrder(ctx, pendingOrder(100), domain.Event{Type: domain.EventOrderCreated})
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("guard failed")
	_, err = ledger.UpdateOrder(ctx, o.ID, func(cur domain.Order) (domain.Order, []domain.Event, error) {
		cur.Status = domain.StatusReleased
		return cur, nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected guard error, got %v", err)
	}

	got, err := ledger.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("failed update must not persist, status is %s", got.Status)
	}
}

func TestLedger_SerializesSameOrderWriters(t *testing.T) {
	ledger := memory.NewLedger(nil)
	ctx := context.Background()
	o, err := ledger.CreateOrder(ctx, pendingOrder(100), domain.Event{Type: domain.EventOrderCreated})
	if err != nil {
		t.Fatal(err)
	}

	// Each writer passes its guard only if the order is still pending.
	// Serialized read-check-write means exactly one gets through.
	const writers = 32
	var wg sync.WaitGroup
	var successes int64
	var mu sync.Mutex

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.UpdateOrder(ctx, o.ID, func(cur domain.Order) (domain.Order, []domain.Event, error) {
				if cur.Status != domain.StatusPending {
					return cur, nil, domain.ErrInvalidStateTransition
				}
				cur.Status = domain.StatusCancelled
				return cur, nil, nil
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", successes)
	}
}

func TestLedger_EscrowBalanceExcludesTerminal(t *testing.T) {
	ledger := memory.NewLedger(nil)
	ctx := context.Background()

	a, _ := ledger.CreateOrder(ctx, pendingOrder(300), domain.Event{Type: domain.EventOrderCreated})
	ledger.CreateOrder(ctx, pendingOrder(200), domain.Event{Type: domain.EventOrderCreated})

	_, err := ledger.UpdateOrder(ctx, a.ID, func(cur domain.Order) (domain.Order, []domain.Event, error) {
		cur.Status = domain.StatusReleased
		return cur, nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	balance, err := ledger.EscrowBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 200 {
		t.Errorf("expected balance 200, got %d", balance)
	}
}

func TestLedger_EventsCarryOrderID(t *testing.T) {
	var got []domain.Event
	ledger := memory.NewLedger(func(ev domain.Event) { got = append(got, ev) })
	ctx := context.Background()

	o, err := ledger.CreateOrder(ctx, pendingOrder(100), domain.Event{Type: domain.EventOrderCreated})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].OrderID != o.ID {
		t.Fatalf("create event should carry the allocated id, got %+v", got)
	}

	_, err = ledger.UpdateOrder(ctx, o.ID, func(cur domain.Order) (domain.Order, []domain.Event, error) {
		cur.Status = domain.StatusCancelled
		return cur, []domain.Event{{Type: domain.EventOrderCancelled, Status: cur.Status}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].OrderID != o.ID {
		t.Fatalf("update event should carry the order id, got %+v", got)
	}
}
