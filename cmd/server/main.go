// Command server runs the trading daemon: the order lifecycle loop, the
// risk governor, the scheduled learning pass, and the HTTP command surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"short-options-loop/internal/config"
	"short-options-loop/internal/domain"
	"short-options-loop/internal/experiment"
	"short-options-loop/internal/gateway"
	"short-options-loop/internal/learning"
	"short-options-loop/internal/lifecycle"
	"short-options-loop/internal/notify"
	"short-options-loop/internal/observability"
	"short-options-loop/internal/optimizer"
	"short-options-loop/internal/pattern"
	"short-options-loop/internal/risk"
	"short-options-loop/internal/stats"
	"short-options-loop/internal/storage"
	"short-options-loop/internal/storage/clickhouse"
	"short-options-loop/internal/storage/memory"
	"short-options-loop/internal/storage/migrations"
	"short-options-loop/internal/storage/postgres"
)

const gracefulTimeout = 30 * time.Second

type server struct {
	cfg    *config.Config
	logger *log.Logger

	trades      storage.TradeStore
	configs     storage.ConfigVersionStore
	experiments storage.ExperimentStore
	learnEvents storage.LearningEventStore
	patterns    storage.PatternStore

	governor *risk.Governor
	manager  *lifecycle.Manager
	engine   *experiment.Engine
	detector *pattern.Detector
	runner   *learning.Runner
	notifier *notify.Notifier
	outcomes *clickhouse.TradeOutcomeStore

	startedAt time.Time

	mu           sync.Mutex
	closedMirror time.Time // closed-trade mirror high-water mark
	sessionOpen  bool
}

func main() {
	envFile := flag.String("env", ".env", "path to env file (optional)")
	useMemory := flag.Bool("use-memory", false, "use in-memory stores instead of postgres")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := newServer(ctx, cfg, logger, *useMemory)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.run(ctx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
		cancel()

		// A second signal skips the graceful drain.
		select {
		case <-sigCh:
			logger.Println("second signal, forcing exit")
			os.Exit(1)
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Fatalf("shutdown: %v", err)
			}
		case <-time.After(gracefulTimeout):
			logger.Println("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatalf("server: %v", err)
		}
	}
	logger.Println("stopped")
}

func newServer(ctx context.Context, cfg *config.Config, logger *log.Logger, useMemory bool) (*server, error) {
	s := &server{cfg: cfg, logger: logger, startedAt: time.Now().UTC()}

	if useMemory {
		logger.Println("using in-memory stores")
		s.trades = memory.NewTradeStore()
		s.configs = memory.NewConfigVersionStore()
		s.experiments = memory.NewExperimentStore()
		s.learnEvents = memory.NewLearningEventStore()
		s.patterns = memory.NewPatternStore()
		s.governor = risk.NewGovernor(memory.NewRiskEventStore(), logger)
	} else {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.trades = postgres.NewTradeStore(pool)
		s.configs = postgres.NewConfigVersionStore(pool)
		s.experiments = postgres.NewExperimentStore(pool)
		s.learnEvents = postgres.NewLearningEventStore(pool)
		s.patterns = postgres.NewPatternStore(pool)
		s.governor = risk.NewGovernor(postgres.NewRiskEventStore(pool), logger)
	}

	if cfg.ClickHouseEnabled {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.outcomes = clickhouse.NewTradeOutcomeStore(conn)
		logger.Println("clickhouse outcome mirror enabled")
	}

	active, err := s.ensureConfigVersion(ctx)
	if err != nil {
		return nil, err
	}
	observability.SetActiveConfigVersion(active.VersionID)

	notifier, err := notify.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	s.notifier = notifier

	gw, err := s.buildGateway(ctx)
	if err != nil {
		return nil, err
	}

	validator := stats.NewValidator(stats.Config{
		MinSamples:    active.Params.MinSamplesForLearning,
		Alpha:         active.Params.SignificanceAlpha,
		MinEffectSize: active.Params.MinEffectSize,
	})
	s.engine = experiment.NewEngine(s.experiments, s.trades, s.learnEvents, validator, cfg.AllocationSeed, logger)

	s.detector = pattern.NewDetector(s.trades, s.patterns, s.learnEvents, validator, logger)
	opt := optimizer.NewOptimizer(s.configs, s.learnEvents, logger)
	s.runner = learning.NewRunner(s.detector, s.engine, opt, s.configs, s.learnEvents, logger)

	s.manager = lifecycle.NewManager(lifecycle.Options{
		Gateway:        gw,
		Governor:       s.governor,
		Trades:         s.trades,
		Configs:        s.configs,
		Experiments:    s.experiments,
		Assigner:       s.engine,
		Logger:         logger,
		BuyingPower:    cfg.BuyingPower,
		PollInterval:   cfg.PollInterval,
		MaxStaleness:   cfg.MaxStaleness,
		GatewayTimeout: cfg.GatewayTimeout,
		RetryBudget:    cfg.RetryBudget,
		ExitDTE:        cfg.ExitDTE,
	})

	s.governor.StartSession(cfg.BuyingPower)
	s.sessionOpen = true
	return s, nil
}

func (s *server) buildGateway(ctx context.Context) (gateway.Gateway, error) {
	if s.cfg.PaperMode {
		s.logger.Println("paper trading mode")
		return gateway.NewPaperGateway(), nil
	}

	stream, err := gateway.NewEventStream(ctx, s.cfg.StreamEndpoint, nil, s.logger)
	if err != nil {
		return nil, fmt.Errorf("event stream: %w", err)
	}
	s.logger.Printf("live mode, broker %s", s.cfg.BrokerBaseURL)
	return gateway.NewRESTGateway(s.cfg.BrokerBaseURL, stream), nil
}

// ensureConfigVersion seeds version 1 from the environment baseline on a
// fresh database and returns the version currently in effect.
func (s *server) ensureConfigVersion(ctx context.Context) (*domain.ConfigVersion, error) {
	active, err := s.configs.Latest(ctx)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load config version: %w", err)
	}

	seed := &domain.ConfigVersion{
		VersionID: 1,
		Params:    s.cfg.Strategy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.configs.Insert(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed config version: %w", err)
	}
	s.logger.Println("seeded config version 1 from environment baseline")
	return seed, nil
}

func (s *server) run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 2)

	go func() {
		if err := s.manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("lifecycle: %w", err)
		}
	}()

	go s.runner.RunEvery(ctx, s.cfg.LearnInterval, s.cfg.LearnWindow)
	go s.alertLoop(ctx)
	if s.outcomes != nil {
		go s.mirrorLoop(ctx)
	}

	go func() {
		s.logger.Printf("http listening on %s", s.cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)
		s.endSession()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// alertLoop pages on state transitions: the circuit breaker latching and
// entry placement halting after repeated gateway failures.
func (s *server) alertLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var tripped, halted bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := s.governor.Tripped()
			if t && !tripped {
				s.notifier.CircuitBreakerTripped(
					s.governor.DailyRealized()/s.cfg.BuyingPower,
					s.cfg.Strategy.DailyLossCircuitBreakerPct)
			}
			tripped = t

			h := s.manager.EntryHalted()
			if h && !halted {
				s.notifier.EntryHalted(s.cfg.RetryBudget)
			}
			halted = h
		}
	}
}

// mirrorLoop copies newly closed trades into the ClickHouse outcome table.
// The table dedupes on trade_id, so overlapping windows are harmless.
func (s *server) mirrorLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LearnInterval)
	defer ticker.Stop()

	s.mu.Lock()
	s.closedMirror = time.Now().UTC().Add(-s.cfg.LearnWindow)
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mirrorClosed(ctx)
		}
	}
}

func (s *server) mirrorClosed(ctx context.Context) {
	s.mu.Lock()
	since := s.closedMirror
	s.mu.Unlock()

	now := time.Now().UTC()
	closed, err := s.trades.GetClosed(ctx, since, now)
	if err != nil {
		s.logger.Printf("mirror: read closed trades: %v", err)
		return
	}
	if len(closed) == 0 {
		return
	}
	if err := s.outcomes.InsertBatch(ctx, closed); err != nil {
		s.logger.Printf("mirror: insert outcomes: %v", err)
		return
	}

	s.mu.Lock()
	s.closedMirror = now
	s.mu.Unlock()
	s.logger.Printf("mirrored %d closed trades", len(closed))
}

func (s *server) endSession() {
	s.mu.Lock()
	open := s.sessionOpen
	s.sessionOpen = false
	s.mu.Unlock()
	if !open {
		return
	}

	realized := s.governor.DailyRealized()
	s.governor.EndSession()
	s.notifier.SessionSummary(realized, len(s.manager.OpenPositions()))
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/api/propose", s.handlePropose)
	mux.HandleFunc("/api/exit", s.handleExit)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/session/start", s.handleSessionStart)
	mux.HandleFunc("/api/session/stop", s.handleSessionStop)
	mux.HandleFunc("/api/experiments", s.handleExperiments)
	mux.HandleFunc("/api/experiments/adjudicate", s.handleAdjudicate)
	mux.HandleFunc("/api/patterns/scan", s.handlePatternScan)
	mux.HandleFunc("/api/learn", s.handleLearn)
	mux.HandleFunc("/api/learn/history", s.handleLearnHistory)
	mux.HandleFunc("/api/outcomes", s.handleOutcomes)

	return mux
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	version := int64(0)
	if v, err := s.configs.Latest(r.Context()); err == nil {
		version = v.VersionID
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"paper_mode":      s.cfg.PaperMode,
		"session_active":  s.governor.SessionActive(),
		"breaker_tripped": s.governor.Tripped(),
		"entry_halted":    s.manager.EntryHalted(),
		"daily_realized":  s.governor.DailyRealized(),
		"open_positions":  len(s.manager.OpenPositions()),
		"config_version":  version,
	})
}

type proposeRequest struct {
	Symbol          string  `json:"symbol"`
	Sector          string  `json:"sector"`
	Strike          float64 `json:"strike"`
	Expiration      string  `json:"expiration"` // YYYY-MM-DD
	Kind            string  `json:"kind"`
	Contracts       int     `json:"contracts"`
	Premium         float64 `json:"premium"`
	UnderlyingPrice float64 `json:"underlying_price"`
	VolatilityIndex float64 `json:"volatility_index"`
	Annotation      string  `json:"annotation"`
}

func (s *server) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	expiration, err := time.Parse("2006-01-02", req.Expiration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expiration must be YYYY-MM-DD")
		return
	}

	trade, err := s.manager.Propose(r.Context(), lifecycle.Proposal{
		Instrument: domain.Instrument{
			Symbol:     req.Symbol,
			Sector:     req.Sector,
			Strike:     req.Strike,
			Expiration: expiration.UTC(),
			Kind:       domain.OptionKind(req.Kind),
		},
		Contracts: req.Contracts,
		Premium:   req.Premium,
		Market: domain.MarketSnapshot{
			UnderlyingPrice: req.UnderlyingPrice,
			VolatilityIndex: req.VolatilityIndex,
			Regime:          domain.InferRegime(req.VolatilityIndex),
		},
		Annotation: req.Annotation,
	})

	var rejection *domain.RiskRejection
	switch {
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"rejected": true,
			"check":    rejection.Check,
			"reason":   rejection.Reason,
		})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrGateway):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, trade)
	}
}

func (s *server) handleExit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req struct {
		TradeID string `json:"trade_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	err := s.manager.ForceExit(r.Context(), req.TradeID)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"trade_id": req.TradeID, "exit": "requested"})
	}
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.manager.ResumeEntries()
	writeJSON(w, http.StatusOK, map[string]any{"entry_halted": s.manager.EntryHalted()})
}

func (s *server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.OpenPositions())
}

func (s *server) handleConfig(w http.ResponseWriter, r *http.Request) {
	v, err := s.configs.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req struct {
		BuyingPower float64 `json:"buying_power"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	bp := req.BuyingPower
	if bp <= 0 {
		bp = s.cfg.BuyingPower
	}

	s.governor.StartSession(bp)
	s.manager.SetBuyingPower(bp)
	s.mu.Lock()
	s.sessionOpen = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"session_active": true, "buying_power": bp})
}

func (s *server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.endSession()
	writeJSON(w, http.StatusOK, map[string]any{"session_active": false})
}

type experimentRequest struct {
	Parameter    string  `json:"parameter"`
	ControlValue float64 `json:"control_value"`
	TestValue    float64 `json:"test_value"`
	Hypothesis   string  `json:"hypothesis"`
	SampleBudget int     `json:"sample_budget"`
}

func (s *server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := s.experiments.GetAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, all)
	case http.MethodPost:
		var req experimentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		exp, err := s.engine.Start(r.Context(), req.Parameter, req.ControlValue, req.TestValue, req.Hypothesis, req.SampleBudget)
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrDuplicateKey):
			writeError(w, http.StatusConflict, "an active experiment already targets this parameter")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, exp)
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (s *server) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	decided, err := s.engine.AdjudicateAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decided": decided})
}

func (s *server) handlePatternScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	end := time.Now().UTC()
	patterns, err := s.detector.Scan(r.Context(), end.Add(-s.cfg.LearnWindow), end)
	switch {
	case errors.Is(err, domain.ErrDataInsufficient):
		writeJSON(w, http.StatusOK, map[string]any{"patterns": []any{}, "skipped": "insufficient data"})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
	}
}

// handleOutcomes serves the ClickHouse aggregates: overall outcomes plus
// per-dimension and per-version breakdowns over the learning window.
func (s *server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.outcomes == nil {
		writeError(w, http.StatusServiceUnavailable, "clickhouse outcome store is not enabled")
		return
	}

	end := time.Now().UTC()
	start := end.Add(-s.cfg.LearnWindow)
	ctx := r.Context()

	overall, err := s.outcomes.Summary(ctx, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dims := make(map[string][]*clickhouse.BucketSummary)
	for _, d := range []string{domain.DimensionRegime, domain.DimensionSector, domain.DimensionDayOfWeek} {
		buckets, err := s.outcomes.SummaryByDimension(ctx, d, start, end)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		dims[d] = buckets
	}

	byVersion, err := s.outcomes.SummaryByConfigVersion(ctx, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window_start": start,
		"window_end":   end,
		"overall":      overall,
		"by_dimension": dims,
		"by_version":   byVersion,
	})
}

func (s *server) handleLearn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	summary, err := s.runner.Run(r.Context(), s.cfg.LearnWindow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n := len(summary.NewVersions); n > 0 {
		latest := summary.NewVersions[n-1]
		observability.SetActiveConfigVersion(latest.VersionID)
		for _, exp := range summary.Decided {
			if exp.Decision == domain.DecisionAdopt {
				s.notifier.ConfigAdopted(latest, exp.Parameter, exp.ControlValue, exp.TestValue)
			}
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleLearnHistory(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.Add(-s.cfg.LearnWindow)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		end = t
	}

	events, err := s.runner.History(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
