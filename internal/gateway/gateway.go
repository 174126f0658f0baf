// Package gateway defines the minimal broker surface the trading loop needs:
// quotes, option chains, order placement and cancellation, a reconciliation
// read, and an asynchronous fill/cancel event stream. Two implementations
// exist: the in-memory paper gateway and the websocket-backed stream client
// paired with a broker REST adapter.
package gateway

import (
	"context"
	"time"

	"short-options-loop/internal/domain"
)

// OrderSide is the side of an option order.
type OrderSide string

const (
	SideSellToOpen OrderSide = "SELL_TO_OPEN"
	SideBuyToClose OrderSide = "BUY_TO_CLOSE"
)

// Order statuses as reported by the broker.
const (
	OrderStatusWorking   = "WORKING"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Order is a single option order. ClientID is the idempotency key: the
// broker must treat a repeated ClientID as the same order, which guarantees
// at most one live order per proposed trade even under retry.
type Order struct {
	ClientID   string
	Symbol     string
	Strike     float64
	Expiration time.Time
	Kind       domain.OptionKind
	Side       OrderSide
	Contracts  int
	LimitPrice float64
}

// OrderHandle identifies a placed order.
type OrderHandle struct {
	OrderID  string
	ClientID string
}

// OrderState is the broker's view of an order, used for reconciliation
// after an unknown-outcome gateway call.
type OrderState struct {
	Handle    OrderHandle
	Status    string
	FillPrice float64
	FilledAt  time.Time
}

// Event types on the fill stream.
type EventType string

const (
	EventFill   EventType = "FILL"
	EventCancel EventType = "CANCEL"
)

// Event is one fill or cancel notification.
type Event struct {
	Type   EventType
	Handle OrderHandle
	Price  float64
	Time   time.Time
}

// Gateway is the broker surface consumed by the lifecycle manager.
type Gateway interface {
	// GetQuote returns the current quote for an option symbol.
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)

	// GetOptionChain returns the chain for an underlying and expiration.
	GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]domain.OptionContract, error)

	// PlaceOrder submits an order. Idempotent on Order.ClientID.
	PlaceOrder(ctx context.Context, o Order) (OrderHandle, error)

	// CancelOrder cancels a working order. Cancelling a filled or already
	// cancelled order is not an error.
	CancelOrder(ctx context.Context, h OrderHandle) error

	// GetOrder reads authoritative order state. This is the reconciliation
	// read used after a timeout, when the outcome of a call is unknown.
	GetOrder(ctx context.Context, h OrderHandle) (OrderState, error)

	// Events returns the fill/cancel notification stream.
	Events() <-chan Event
}
