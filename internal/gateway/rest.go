package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/observability"
)

// RESTGateway talks to the broker's order API over HTTP and sources fill
// and cancel notifications from an EventStream. Order placement relies on
// the broker honoring ClientID idempotency.
type RESTGateway struct {
	baseURL string
	client  *http.Client
	stream  *EventStream
}

// NewRESTGateway creates a gateway against the broker REST base URL. The
// stream must be connected to the same broker account.
func NewRESTGateway(baseURL string, stream *EventStream) *RESTGateway {
	return &RESTGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		stream:  stream,
	}
}

type quotePayload struct {
	Symbol      string  `json:"symbol"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	TimestampMs int64   `json:"timestamp_ms"`
}

type contractPayload struct {
	Symbol       string  `json:"symbol"`
	Underlying   string  `json:"underlying"`
	Strike       float64 `json:"strike"`
	Expiration   string  `json:"expiration"`
	Kind         string  `json:"kind"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	OpenInterest int64   `json:"open_interest"`
}

type orderPayload struct {
	ClientID   string  `json:"client_id"`
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	Expiration string  `json:"expiration"`
	Kind       string  `json:"kind"`
	Side       string  `json:"side"`
	Contracts  int     `json:"contracts"`
	LimitPrice float64 `json:"limit_price"`
}

type orderStatePayload struct {
	OrderID   string  `json:"order_id"`
	ClientID  string  `json:"client_id"`
	Status    string  `json:"status"`
	FillPrice float64 `json:"fill_price"`
	FilledAt  int64   `json:"filled_at_ms"`
}

// GetQuote returns the current quote for an option symbol.
func (g *RESTGateway) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	var p quotePayload
	err := g.get(ctx, "/v1/quotes/{symbol}", "/v1/quotes/"+url.PathEscape(symbol), &p)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Symbol: p.Symbol,
		Bid:    p.Bid,
		Ask:    p.Ask,
		Time:   time.UnixMilli(p.TimestampMs).UTC(),
	}, nil
}

// GetOptionChain returns the chain for an underlying and expiration.
func (g *RESTGateway) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]domain.OptionContract, error) {
	path := fmt.Sprintf("/v1/chains/%s?expiration=%s",
		url.PathEscape(underlying), expiration.UTC().Format("2006-01-02"))

	var payload []contractPayload
	if err := g.get(ctx, "/v1/chains/{underlying}", path, &payload); err != nil {
		return nil, err
	}

	out := make([]domain.OptionContract, 0, len(payload))
	for _, c := range payload {
		exp, err := time.Parse("2006-01-02", c.Expiration)
		if err != nil {
			return nil, fmt.Errorf("%w: bad expiration %q in chain", domain.ErrGateway, c.Expiration)
		}
		out = append(out, domain.OptionContract{
			Symbol:       c.Symbol,
			Underlying:   c.Underlying,
			Strike:       c.Strike,
			Expiration:   exp,
			Kind:         domain.OptionKind(c.Kind),
			Bid:          c.Bid,
			Ask:          c.Ask,
			OpenInterest: c.OpenInterest,
		})
	}
	return out, nil
}

// PlaceOrder submits an order. Idempotent on Order.ClientID broker-side.
func (g *RESTGateway) PlaceOrder(ctx context.Context, o Order) (OrderHandle, error) {
	body := orderPayload{
		ClientID:   o.ClientID,
		Symbol:     o.Symbol,
		Strike:     o.Strike,
		Expiration: o.Expiration.UTC().Format("2006-01-02"),
		Kind:       string(o.Kind),
		Side:       string(o.Side),
		Contracts:  o.Contracts,
		LimitPrice: o.LimitPrice,
	}

	var p orderStatePayload
	if err := g.post(ctx, "/v1/orders", "/v1/orders", body, &p); err != nil {
		return OrderHandle{}, err
	}
	return OrderHandle{OrderID: p.OrderID, ClientID: p.ClientID}, nil
}

// CancelOrder cancels a working order; terminal orders are a no-op.
func (g *RESTGateway) CancelOrder(ctx context.Context, h OrderHandle) error {
	return g.do(ctx, http.MethodDelete, "/v1/orders/{client_id}", "/v1/orders/"+url.PathEscape(h.ClientID), nil, nil)
}

// GetOrder reads authoritative order state for reconciliation.
func (g *RESTGateway) GetOrder(ctx context.Context, h OrderHandle) (OrderState, error) {
	var p orderStatePayload
	if err := g.get(ctx, "/v1/orders/{client_id}", "/v1/orders/"+url.PathEscape(h.ClientID), &p); err != nil {
		return OrderState{}, err
	}
	return OrderState{
		Handle:    OrderHandle{OrderID: p.OrderID, ClientID: p.ClientID},
		Status:    p.Status,
		FillPrice: p.FillPrice,
		FilledAt:  time.UnixMilli(p.FilledAt).UTC(),
	}, nil
}

// Events returns the fill/cancel stream.
func (g *RESTGateway) Events() <-chan Event {
	return g.stream.Events()
}

func (g *RESTGateway) get(ctx context.Context, route, path string, out any) error {
	return g.do(ctx, http.MethodGet, route, path, nil, out)
}

func (g *RESTGateway) post(ctx context.Context, route, path string, body, out any) error {
	return g.do(ctx, http.MethodPost, route, path, body, out)
}

// do issues one request. The route template labels the latency metric so
// cardinality stays bounded; path carries the concrete escaped values.
func (g *RESTGateway) do(ctx context.Context, method, route, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	observability.RecordGatewayLatency(method+" "+route, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrGateway, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s: not found", domain.ErrGateway, method, path)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrGateway, method, path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrGateway, path, err)
	}
	return nil
}

var _ Gateway = (*RESTGateway)(nil)
