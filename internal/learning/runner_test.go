package learning

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/experiment"
	"short-options-loop/internal/optimizer"
	"short-options-loop/internal/pattern"
	"short-options-loop/internal/stats"
	"short-options-loop/internal/storage/memory"
)

type runnerFixture struct {
	trades      *memory.TradeStore
	configs     *memory.ConfigVersionStore
	experiments *memory.ExperimentStore
	events      *memory.LearningEventStore
	engine      *experiment.Engine
	runner      *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	trades := memory.NewTradeStore()
	configs := memory.NewConfigVersionStore()
	experiments := memory.NewExperimentStore()
	events := memory.NewLearningEventStore()
	logger := log.New(io.Discard, "", 0)
	validator := stats.NewValidator(stats.DefaultConfig())

	err := configs.Insert(context.Background(), &domain.ConfigVersion{
		VersionID: 1,
		Params:    domain.DefaultStrategyParams(),
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}

	detector := pattern.NewDetector(trades, memory.NewPatternStore(), events, validator, logger)
	engine := experiment.NewEngine(experiments, trades, events, validator, 1, logger)
	opt := optimizer.NewOptimizer(configs, events, logger)

	return &runnerFixture{
		trades:      trades,
		configs:     configs,
		experiments: experiments,
		events:      events,
		engine:      engine,
		runner:      NewRunner(detector, engine, opt, configs, events, logger),
	}
}

func (f *runnerFixture) seedClosed(t *testing.T, experimentID, arm string, n int, mean float64, entry time.Time) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		pct := mean + 0.05
		if i%2 == 1 {
			pct = mean - 0.05
		}
		tr := &domain.Trade{
			TradeID: fmt.Sprintf("%s-%s-%d", arm, entry.Format("0102"), i),
			Instrument: domain.Instrument{
				Symbol: "XYZ", Sector: "TECH", Strike: 95,
				Expiration: entry.AddDate(0, 0, 7), Kind: domain.OptionKindPut,
			},
			Contracts: 2, EntryTime: entry, EntryPremium: 0.50,
			OTMPct: 0.05, DTE: 7, ConfigVersionID: 1,
			Status: domain.TradeStatusMonitoring,
		}
		if experimentID != "" {
			id := experimentID
			tr.ExperimentID = &id
			tr.ExperimentArm = arm
		}
		tr.Close(entry.AddDate(0, 0, 2), 0.50*(1-pct), domain.ExitReasonProfitTarget, domain.MarketSnapshot{})
		if err := f.trades.Insert(ctx, tr); err != nil {
			t.Fatalf("seed trade: %v", err)
		}
		if experimentID != "" {
			if err := f.experiments.IncrementArm(ctx, experimentID, arm); err != nil {
				t.Fatalf("increment arm: %v", err)
			}
		}
	}
}

// seedRegimeClosed inserts n unlinked closed trades entered under one
// market regime around a mean ROI.
func (f *runnerFixture) seedRegimeClosed(t *testing.T, regime string, n int, mean float64, entry time.Time) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		pct := mean + 0.05
		if i%2 == 1 {
			pct = mean - 0.05
		}
		tr := &domain.Trade{
			TradeID: fmt.Sprintf("%s-%s-%d", regime, entry.Format("0102"), i),
			Instrument: domain.Instrument{
				Symbol: "XYZ", Sector: "TECH", Strike: 95,
				Expiration: entry.AddDate(0, 0, 7), Kind: domain.OptionKindPut,
			},
			Contracts: 2, EntryTime: entry, EntryPremium: 0.50,
			OTMPct: 0.05, DTE: 7, ConfigVersionID: 1,
			EntryMarket: domain.MarketSnapshot{Regime: regime},
			Status:      domain.TradeStatusMonitoring,
		}
		tr.Close(entry.AddDate(0, 0, 2), 0.50*(1-pct), domain.ExitReasonProfitTarget, domain.MarketSnapshot{Regime: regime})
		if err := f.trades.Insert(ctx, tr); err != nil {
			t.Fatalf("seed trade: %v", err)
		}
	}
}

func TestRunner_SkipsOnThinLedger(t *testing.T) {
	f := newRunnerFixture(t)

	// An empty ledger is not an error: trading continues on the current
	// configuration while evidence accrues.
	s, err := f.runner.Run(context.Background(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(s.PatternsDetected) != 0 || len(s.Decided) != 0 || len(s.NewVersions) != 0 {
		t.Errorf("empty pass produced output: %+v", s)
	}
}

func TestRunner_FullPassAdoptsParameter(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	entry := time.Now().UTC().AddDate(0, 0, -5)

	exp, err := f.engine.Start(ctx, "profit_target_pct", 0.50, 0.60, "manual", 1000)
	if err != nil {
		t.Fatalf("start experiment: %v", err)
	}
	f.seedClosed(t, exp.ExperimentID, domain.ArmTest, 35, 0.60, entry)
	f.seedClosed(t, exp.ExperimentID, domain.ArmControl, 35, 0.20, entry)

	s, err := f.runner.Run(ctx, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(s.Decided) != 1 {
		t.Fatalf("decided = %d, want 1", len(s.Decided))
	}
	if s.Decided[0].Decision != domain.DecisionAdopt {
		t.Errorf("decision = %q", s.Decided[0].Decision)
	}
	if len(s.NewVersions) != 1 {
		t.Fatalf("new versions = %d, want 1", len(s.NewVersions))
	}
	if s.NewVersions[0].VersionID != 2 {
		t.Errorf("version = %d", s.NewVersions[0].VersionID)
	}
	if s.NewVersions[0].Params.ProfitTargetPct != 0.60 {
		t.Errorf("adopted profit target = %v", s.NewVersions[0].Params.ProfitTargetPct)
	}

	// The audit trail covers the whole pass: the decision and the adjustment.
	history, err := f.runner.History(ctx, s.WindowStart, s.WindowEnd.Add(time.Minute))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	types := make(map[string]int)
	for _, e := range history {
		types[e.EventType]++
	}
	if types[domain.LearningEventExperimentDecided] != 1 {
		t.Errorf("decision events = %d", types[domain.LearningEventExperimentDecided])
	}
	if types[domain.LearningEventParameterAdjusted] != 1 {
		t.Errorf("adjustment events = %d", types[domain.LearningEventParameterAdjusted])
	}

	// The next pass finds nothing left to decide.
	s2, err := f.runner.Run(ctx, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(s2.Decided) != 0 || len(s2.NewVersions) != 0 {
		t.Errorf("second pass re-decided: %+v", s2)
	}
}

func TestRunner_ProposesExperimentsFromPatterns(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	entry := time.Now().UTC().AddDate(0, 0, -5)

	// One regime well ahead of baseline, one well behind: both buckets
	// become patterns and each proposes a test on its own parameter.
	f.seedRegimeClosed(t, domain.RegimeLowVol, 30, 0.50, entry)
	f.seedRegimeClosed(t, domain.RegimeHighVol, 30, 0.05, entry)

	s, err := f.runner.Run(ctx, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(s.PatternsDetected) != 2 {
		t.Fatalf("patterns = %d, want 2", len(s.PatternsDetected))
	}
	if len(s.ExperimentsStarted) != 2 {
		t.Fatalf("experiments started = %d, want 2", len(s.ExperimentsStarted))
	}

	patternIDs := make(map[string]bool, len(s.PatternsDetected))
	for _, p := range s.PatternsDetected {
		patternIDs[p.PatternID] = true
	}

	byParam := make(map[string]*domain.Experiment)
	for _, exp := range s.ExperimentsStarted {
		if !patternIDs[exp.Hypothesis] {
			t.Errorf("experiment %s hypothesis %q does not name a detected pattern",
				exp.ExperimentID, exp.Hypothesis)
		}
		byParam[exp.Parameter] = exp
	}

	// The outperforming regime loosens the profit target; the
	// underperforming one tightens the stop.
	if exp := byParam["profit_target_pct"]; exp == nil || exp.TestValue != 0.60 {
		t.Errorf("profit target experiment = %+v", exp)
	}
	if exp := byParam["stop_loss_pct"]; exp == nil || exp.TestValue != 0.75 {
		t.Errorf("stop loss experiment = %+v", exp)
	}

	// A second pass over the same ledger must not duplicate the experiments.
	s2, err := f.runner.Run(ctx, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(s2.ExperimentsStarted) != 0 {
		t.Errorf("second pass started %d experiments", len(s2.ExperimentsStarted))
	}
	active, err := f.experiments.GetActive(ctx)
	if err != nil {
		t.Fatalf("active experiments: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active experiments = %d, want 2", len(active))
	}
}
