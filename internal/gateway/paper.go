package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"short-options-loop/internal/domain"
)

// PaperGateway is an in-memory gateway with no external calls. Orders fill
// at the posted quote (or the order's limit when no quote is loaded) either
// immediately or on demand in manual mode, which lets tests drive fills and
// cancels deterministically.
type PaperGateway struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	chains map[string][]domain.OptionContract
	orders map[string]*OrderState // keyed by ClientID (idempotency scope)
	events chan Event

	// ManualFills suppresses automatic fills; tests call Fill/Cancel.
	ManualFills bool
}

// NewPaperGateway creates an empty paper gateway.
func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		quotes: make(map[string]domain.Quote),
		chains: make(map[string][]domain.OptionContract),
		orders: make(map[string]*OrderState),
		events: make(chan Event, 256),
	}
}

// SetQuote posts a quote for a symbol.
func (g *PaperGateway) SetQuote(q domain.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[q.Symbol] = q
}

// SetChain posts an option chain for an underlying.
func (g *PaperGateway) SetChain(underlying string, contracts []domain.OptionContract) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chains[underlying] = contracts
}

// GetQuote returns the posted quote for a symbol.
func (g *PaperGateway) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: no quote for %s", domain.ErrGateway, symbol)
	}
	return q, nil
}

// GetOptionChain returns the posted chain filtered by expiration.
func (g *PaperGateway) GetOptionChain(_ context.Context, underlying string, expiration time.Time) ([]domain.OptionContract, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.OptionContract
	for _, c := range g.chains[underlying] {
		if c.Expiration.Equal(expiration) {
			out = append(out, c)
		}
	}
	return out, nil
}

// PlaceOrder records the order and, outside manual mode, fills it at once.
// A repeated ClientID returns the original handle without a second order
// while that order is working or filled; a cancelled order may be re-placed
// under the same ClientID.
func (g *PaperGateway) PlaceOrder(_ context.Context, o Order) (OrderHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.orders[o.ClientID]; ok && existing.Status != OrderStatusCancelled {
		return existing.Handle, nil
	}

	h := OrderHandle{OrderID: uuid.NewString(), ClientID: o.ClientID}
	state := &OrderState{Handle: h, Status: OrderStatusWorking}
	g.orders[o.ClientID] = state

	if !g.ManualFills {
		price := o.LimitPrice
		if q, ok := g.quotes[o.Symbol]; ok {
			price = q.Mid()
		}
		g.fillLocked(state, price)
	}

	return h, nil
}

// CancelOrder cancels a working order; no-op for terminal orders.
func (g *PaperGateway) CancelOrder(_ context.Context, h OrderHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.orders[h.ClientID]
	if !ok || state.Status != OrderStatusWorking {
		return nil
	}

	state.Status = OrderStatusCancelled
	g.emit(Event{Type: EventCancel, Handle: state.Handle, Time: time.Now().UTC()})
	return nil
}

// GetOrder returns the authoritative order state.
func (g *PaperGateway) GetOrder(_ context.Context, h OrderHandle) (OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.orders[h.ClientID]
	if !ok {
		return OrderState{}, fmt.Errorf("%w: unknown order %s", domain.ErrGateway, h.ClientID)
	}
	return *state, nil
}

// Events returns the fill/cancel stream.
func (g *PaperGateway) Events() <-chan Event {
	return g.events
}

// Fill fills a working order at the given price. Manual mode only.
func (g *PaperGateway) Fill(clientID string, price float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.orders[clientID]
	if !ok {
		return fmt.Errorf("unknown order %s", clientID)
	}
	if state.Status != OrderStatusWorking {
		return fmt.Errorf("order %s is %s", clientID, state.Status)
	}

	g.fillLocked(state, price)
	return nil
}

func (g *PaperGateway) fillLocked(state *OrderState, price float64) {
	state.Status = OrderStatusFilled
	state.FillPrice = price
	state.FilledAt = time.Now().UTC()
	g.emit(Event{Type: EventFill, Handle: state.Handle, Price: price, Time: state.FilledAt})
}

// emit delivers an event without blocking. Order placement and cancellation
// run under the gateway lock; a full buffer drops the event rather than
// wedging every caller behind an absent consumer. GetOrder remains the
// authoritative state either way.
func (g *PaperGateway) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		log.Printf("paper gateway: event buffer full, dropping %s for %s", ev.Type, ev.Handle.ClientID)
	}
}

var _ Gateway = (*PaperGateway)(nil)
