package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRESTGateway_LatencyMetricUsesRouteTemplates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"XYZ 250609P00095000","bid":0.45,"ask":0.55,"timestamp_ms":1749400000000}`))
	}))
	defer srv.Close()

	g := NewRESTGateway(srv.URL, nil)
	ctx := context.Background()

	if _, err := g.GetQuote(ctx, "XYZ 250609P00095000"); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if _, err := g.GetOrder(ctx, OrderHandle{ClientID: "client-abc-123"}); err != nil {
		t.Fatalf("order: %v", err)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	operations := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "short_options_loop_gateway_call_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "operation" {
					operations[l.GetValue()] = true
				}
			}
		}
	}

	if !operations["GET /v1/quotes/{symbol}"] || !operations["GET /v1/orders/{client_id}"] {
		t.Errorf("route-template labels missing: %v", operations)
	}

	// One series per route, never per symbol or order: concrete values in
	// the label would grow the metric without bound.
	for op := range operations {
		if strings.Contains(op, "XYZ") || strings.Contains(op, "client-abc-123") {
			t.Errorf("operation label carries a concrete value: %q", op)
		}
	}
}
