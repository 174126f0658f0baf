package lifecycle

import (
	"errors"
	"testing"
	"time"

	"short-options-loop/internal/domain"
)

func TestTransition_LegalPath(t *testing.T) {
	tr := &domain.Trade{TradeID: "t1", Status: domain.TradeStatusProposed}

	path := []string{
		domain.TradeStatusRiskApproved,
		domain.TradeStatusOrderPlaced,
		domain.TradeStatusFilled,
		domain.TradeStatusMonitoring,
		domain.TradeStatusExitPending,
		domain.TradeStatusClosed,
	}
	for _, next := range path {
		if err := Transition(tr, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if tr.Status != domain.TradeStatusClosed {
		t.Errorf("final status = %q", tr.Status)
	}
}

func TestTransition_IllegalStepsRejected(t *testing.T) {
	cases := []struct{ from, to string }{
		{domain.TradeStatusProposed, domain.TradeStatusOrderPlaced},
		{domain.TradeStatusProposed, domain.TradeStatusFilled},
		{domain.TradeStatusRiskApproved, domain.TradeStatusRejected},
		{domain.TradeStatusMonitoring, domain.TradeStatusClosed},
		{domain.TradeStatusMonitoring, domain.TradeStatusCancelled},
		{domain.TradeStatusClosed, domain.TradeStatusMonitoring},
		{domain.TradeStatusRejected, domain.TradeStatusProposed},
	}
	for _, c := range cases {
		tr := &domain.Trade{TradeID: "t1", Status: c.from}
		err := Transition(tr, c.to)
		if err == nil {
			t.Errorf("%s -> %s allowed", c.from, c.to)
			continue
		}
		if !errors.Is(err, domain.ErrInvariantViolation) {
			t.Errorf("%s -> %s: error %v is not an invariant violation", c.from, c.to, err)
		}
		if tr.Status != c.from {
			t.Errorf("%s -> %s: status mutated on rejection", c.from, c.to)
		}
	}
}

func TestTransition_OffPathStates(t *testing.T) {
	tr := &domain.Trade{TradeID: "t1", Status: domain.TradeStatusProposed}
	if err := Transition(tr, domain.TradeStatusRejected); err != nil {
		t.Fatalf("reject proposed: %v", err)
	}

	tr = &domain.Trade{TradeID: "t2", Status: domain.TradeStatusOrderPlaced}
	if err := Transition(tr, domain.TradeStatusCancelled); err != nil {
		t.Fatalf("cancel placed order: %v", err)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{domain.TradeStatusClosed, domain.TradeStatusRejected, domain.TradeStatusCancelled} {
		if !Terminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []string{domain.TradeStatusProposed, domain.TradeStatusMonitoring, domain.TradeStatusExitPending} {
		if Terminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestExitTriggerPrecedence(t *testing.T) {
	now := timeFixture()
	p := &domain.Position{
		Instrument:   domain.Instrument{Expiration: now.AddDate(0, 0, 7)},
		EntryPremium: 1.00,
	}
	params := domain.DefaultStrategyParams() // profit target 0.50, stop loss 1.00

	p.CurrentPremium = 1.00
	if got := exitTrigger(params, p, now, 1); got != "" {
		t.Errorf("flat position triggered %q", got)
	}

	p.CurrentPremium = 0.40 // 60% of premium captured
	if got := exitTrigger(params, p, now, 1); got != domain.ExitReasonProfitTarget {
		t.Errorf("trigger = %q, want profit_target", got)
	}

	p.CurrentPremium = 2.10 // 110% loss on premium
	if got := exitTrigger(params, p, now, 1); got != domain.ExitReasonStopLoss {
		t.Errorf("trigger = %q, want stop_loss", got)
	}

	// When both bands are satisfiable in one tick, stop-loss wins.
	both := params
	both.ProfitTargetPct = -2.0
	p.CurrentPremium = 2.50 // pct -1.5 satisfies both conditions
	if got := exitTrigger(both, p, now, 1); got != domain.ExitReasonStopLoss {
		t.Errorf("trigger = %q, want stop_loss to take precedence", got)
	}

	p.CurrentPremium = 1.00
	p.Instrument.Expiration = now.Add(20 * time.Hour)
	if got := exitTrigger(params, p, now, 1); got != domain.ExitReasonDTEThreshold {
		t.Errorf("trigger = %q, want dte_threshold", got)
	}
}
