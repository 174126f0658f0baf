package clickhouse

import (
	"context"
	"fmt"
	"time"

	"short-options-loop/internal/domain"
)

// OutcomeSummary is an aggregate over closed-trade outcomes.
type OutcomeSummary struct {
	Trades    uint64
	Wins      uint64
	WinRate   float64
	AvgROI    float64
	ROIStdDev float64
	NetProfit float64
}

// BucketSummary is an OutcomeSummary for one bucket of a dimension.
type BucketSummary struct {
	Bucket string
	OutcomeSummary
}

// dimensionColumns whitelists the groupable columns. Dimension names match
// the pattern detector's partition dimensions.
var dimensionColumns = map[string]string{
	domain.DimensionSector:    "sector",
	domain.DimensionRegime:    "entry_regime",
	domain.DimensionDayOfWeek: "day_of_week",
}

// TradeOutcomeStore appends closed trades to the analytics table and serves
// aggregate queries over them. Rows are immutable once written.
type TradeOutcomeStore struct {
	conn *Conn
}

// NewTradeOutcomeStore creates a new TradeOutcomeStore.
func NewTradeOutcomeStore(conn *Conn) *TradeOutcomeStore {
	return &TradeOutcomeStore{conn: conn}
}

// InsertBatch appends a batch of closed trades. Trades that are not closed
// are rejected, since an open trade has no outcome to record.
func (s *TradeOutcomeStore) InsertBatch(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_outcomes (
			trade_id, symbol, sector, kind, strike, contracts,
			otm_pct, dte, entry_time, exit_time, exit_reason,
			profit, profit_pct, days_held, won,
			config_version_id, experiment_id, experiment_arm,
			entry_regime, entry_volatility_index, day_of_week
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare trade outcome batch: %w", err)
	}

	for _, t := range trades {
		if !t.IsClosed() {
			return fmt.Errorf("trade %s is not closed", t.TradeID)
		}

		experimentID := ""
		if t.ExperimentID != nil {
			experimentID = *t.ExperimentID
		}

		won := uint8(0)
		if t.Won() {
			won = 1
		}

		err := batch.Append(
			t.TradeID, t.Instrument.Symbol, t.Instrument.Sector, string(t.Instrument.Kind),
			t.Instrument.Strike, uint32(t.Contracts),
			t.OTMPct, uint32(t.DTE), t.EntryTime, *t.ExitTime, t.ExitReason,
			t.Profit, t.ProfitPct, uint32(t.DaysHeld), won,
			t.ConfigVersionID, experimentID, t.ExperimentArm,
			t.EntryMarket.Regime, t.EntryMarket.VolatilityIndex,
			t.EntryTime.Weekday().String(),
		)
		if err != nil {
			return fmt.Errorf("append trade outcome %s: %w", t.TradeID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trade outcome batch: %w", err)
	}
	return nil
}

// Summary aggregates outcomes with exit time within [start, end].
func (s *TradeOutcomeStore) Summary(ctx context.Context, start, end time.Time) (*OutcomeSummary, error) {
	query := `
		SELECT
			count() AS trades,
			countIf(won = 1) AS wins,
			avg(profit_pct) AS avg_roi,
			stddevSamp(profit_pct) AS roi_stddev,
			sum(profit) AS net_profit
		FROM trade_outcomes
		WHERE exit_time >= ? AND exit_time <= ?
	`

	var sum OutcomeSummary
	row := s.conn.QueryRow(ctx, query, start, end)
	if err := row.Scan(&sum.Trades, &sum.Wins, &sum.AvgROI, &sum.ROIStdDev, &sum.NetProfit); err != nil {
		return nil, fmt.Errorf("trade outcome summary: %w", err)
	}
	if sum.Trades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.Trades)
	}
	return &sum, nil
}

// SummaryByDimension aggregates outcomes grouped by one partition dimension.
// Only columnar dimensions are supported here; OTM and DTE bucketing belongs
// to the detector.
func (s *TradeOutcomeStore) SummaryByDimension(ctx context.Context, dimension string, start, end time.Time) ([]*BucketSummary, error) {
	column, ok := dimensionColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unsupported dimension %q", dimension)
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS bucket,
			count() AS trades,
			countIf(won = 1) AS wins,
			avg(profit_pct) AS avg_roi,
			stddevSamp(profit_pct) AS roi_stddev,
			sum(profit) AS net_profit
		FROM trade_outcomes
		WHERE exit_time >= ? AND exit_time <= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`, column)

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("trade outcome summary by %s: %w", dimension, err)
	}
	defer rows.Close()

	var out []*BucketSummary
	for rows.Next() {
		var b BucketSummary
		if err := rows.Scan(&b.Bucket, &b.Trades, &b.Wins, &b.AvgROI, &b.ROIStdDev, &b.NetProfit); err != nil {
			return nil, fmt.Errorf("scan bucket summary: %w", err)
		}
		if b.Trades > 0 {
			b.WinRate = float64(b.Wins) / float64(b.Trades)
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket summaries: %w", err)
	}
	return out, nil
}

// SummaryByConfigVersion aggregates outcomes per configuration version, the
// raw material for comparing versions after an adoption.
func (s *TradeOutcomeStore) SummaryByConfigVersion(ctx context.Context, start, end time.Time) (map[int64]*OutcomeSummary, error) {
	query := `
		SELECT
			config_version_id,
			count() AS trades,
			countIf(won = 1) AS wins,
			avg(profit_pct) AS avg_roi,
			stddevSamp(profit_pct) AS roi_stddev,
			sum(profit) AS net_profit
		FROM trade_outcomes
		WHERE exit_time >= ? AND exit_time <= ?
		GROUP BY config_version_id
		ORDER BY config_version_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("trade outcome summary by config version: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*OutcomeSummary)
	for rows.Next() {
		var version int64
		var sum OutcomeSummary
		if err := rows.Scan(&version, &sum.Trades, &sum.Wins, &sum.AvgROI, &sum.ROIStdDev, &sum.NetProfit); err != nil {
			return nil, fmt.Errorf("scan version summary: %w", err)
		}
		if sum.Trades > 0 {
			sum.WinRate = float64(sum.Wins) / float64(sum.Trades)
		}
		out[version] = &sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version summaries: %w", err)
	}
	return out, nil
}
