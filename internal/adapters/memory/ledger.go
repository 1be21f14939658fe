package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ticketnft/escrow-service/internal/domain"
)

// Ledger is an in-process order store for embedded deployments and tests.
// Mutual exclusion is per order: concurrent mutations of different orders
// proceed in parallel, concurrent mutations of the same order serialize on
// the entry mutex so the read-check-write in UpdateOrder stays atomic.
type Ledger struct {
	mu     sync.Mutex // guards orders map and nextID
	orders map[int64]*entry
	nextID int64
	sink   func(domain.Event)
}

type entry struct {
	mu    sync.Mutex
	order domain.Order
}

// NewLedger returns an empty ledger. sink, if non-nil, receives every
// committed event synchronously; it stands in for the durable outbox.
func NewLedger(sink func(domain.Event)) *Ledger {
	return &Ledger{orders: make(map[int64]*entry), sink: sink}
}

func (l *Ledger) CreateOrder(ctx context.Context, o domain.Order, ev domain.Event) (domain.Order, error) {
	l.mu.Lock()
	l.nextID++
	o.ID = l.nextID
	l.orders[o.ID] = &entry{order: o}
	l.mu.Unlock()

	ev.OrderID = o.ID
	l.emit(ev)
	return o, nil
}

func (l *Ledger) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	e, err := l.lookup(id)
	if err != nil {
		return domain.Order{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order, nil
}

func (l *Ledger) UpdateOrder(ctx context.Context, id int64, fn func(domain.Order) (domain.Order, []domain.Event, error)) (domain.Order, error) {
	e, err := l.lookup(id)
	if err != nil {
		return domain.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	updated, events, err := fn(e.order)
	if err != nil {
		return domain.Order{}, err
	}
	e.order = updated

	for _, ev := range events {
		ev.OrderID = id
		l.emit(ev)
	}
	return updated, nil
}

func (l *Ledger) OrdersByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Order, error) {
	return l.filter(func(o domain.Order) bool { return o.Buyer == buyer }), nil
}

func (l *Ledger) OrdersBySeller(ctx context.Context, seller domain.Address) ([]domain.Order, error) {
	return l.filter(func(o domain.Order) bool { return o.Seller == seller }), nil
}

func (l *Ledger) EscrowBalance(ctx context.Context) (int64, error) {
	var total int64
	for _, o := range l.filter(func(o domain.Order) bool { return o.InCustody() }) {
		total += o.Amount
	}
	return total, nil
}

func (l *Ledger) lookup(id int64) (*entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return e, nil
}

func (l *Ledger) filter(keep func(domain.Order) bool) []domain.Order {
	l.mu.Lock()
	entries := make([]*entry, 0, len(l.orders))
	for _, e := range l.orders {
		entries = append(entries, e)
	}
	l.mu.Unlock()

	var out []domain.Order
	for _, e := range entries {
		e.mu.Lock()
		o := e.order
		e.mu.Unlock()
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) emit(ev domain.Event) {
	if l.sink != nil {
		l.sink(ev)
	}
}
