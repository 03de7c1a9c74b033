package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gridline/internal/grid"
)

// Trade is one row of trade_history.
type Trade struct {
	ID              int64            `json:"id"`
	Timestamp       time.Time        `json:"timestamp"`
	TradingDay      string           `json:"tradingDay"`
	Side            grid.Side        `json:"side"`
	Price           decimal.Decimal  `json:"price"`
	Quantity        decimal.Decimal  `json:"quantity"`
	USDValue        decimal.Decimal  `json:"usdValue"`
	LevelIndex      int              `json:"levelIndex"`
	Ref             string           `json:"ref"`
	IsPaper         bool             `json:"isPaper"`
	SlippagePercent *decimal.Decimal `json:"slippagePercent"`
	GasCost         *decimal.Decimal `json:"gasCost"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// TradeStats are informational aggregates; the float casts are fine here
// because nothing downstream does money math with them.
type TradeStats struct {
	TotalTrades int        `json:"totalTrades"`
	BuyCount    int        `json:"buyCount"`
	SellCount   int        `json:"sellCount"`
	TotalVolume *float64   `json:"totalVolume"`
	AvgPrice    *float64   `json:"avgPrice"`
	FirstTrade  *time.Time `json:"firstTrade"`
	LastTrade   *time.Time `json:"lastTrade"`
}

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

const tradeColumns = `id, timestamp, trading_day, side, price, quantity, usd_value,
	level_index, ref, is_paper, slippage_percent, gas_cost, created_at`

func (r *TradeRepo) Record(ctx context.Context, t *Trade) (*Trade, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	td := TradingDay(ts)

	row := r.pool.QueryRow(ctx,
		`INSERT INTO trade_history
		 (timestamp, trading_day, side, price, quantity, usd_value,
		  level_index, ref, is_paper, slippage_percent, gas_cost)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING `+tradeColumns,
		ts, td, t.Side.String(), t.Price, t.Quantity, t.USDValue,
		t.LevelIndex, t.Ref, t.IsPaper, t.SlippagePercent, t.GasCost,
	)
	return scanTrade(row)
}

// GetByDay returns trades for a given trading day.
// If paperMode is non-nil, filters by is_paper.
func (r *TradeRepo) GetByDay(ctx context.Context, tradingDay string, paperMode *bool) ([]Trade, error) {
	query, args := buildFilteredQuery(
		`SELECT `+tradeColumns+` FROM trade_history WHERE trading_day = $1`,
		[]any{tradingDay},
		paperMode,
	)
	query += " ORDER BY timestamp ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetAll returns the most recent trades.
// If paperMode is non-nil, filters by is_paper.
func (r *TradeRepo) GetAll(ctx context.Context, limit int, paperMode *bool) ([]Trade, error) {
	query, args := buildFilteredQuery(
		`SELECT `+tradeColumns+` FROM trade_history WHERE 1=1`,
		nil,
		paperMode,
	)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetStats returns aggregate trade statistics.
// If paperMode is non-nil, filters by is_paper.
func (r *TradeRepo) GetStats(ctx context.Context, paperMode *bool) (*TradeStats, error) {
	query, args := buildFilteredQuery(
		`SELECT
			COUNT(*),
			COUNT(CASE WHEN side = 'buy' THEN 1 END),
			COUNT(CASE WHEN side = 'sell' THEN 1 END),
			SUM(usd_value::numeric)::float8,
			AVG(price::numeric)::float8,
			MIN(timestamp),
			MAX(timestamp)
		 FROM trade_history WHERE 1=1`,
		nil,
		paperMode,
	)

	var s TradeStats
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.TotalTrades, &s.BuyCount, &s.SellCount,
		&s.TotalVolume, &s.AvgPrice, &s.FirstTrade, &s.LastTrade,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *TradeRepo) CountToday(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE trading_day = $1`,
		TradingDayNow(),
	).Scan(&count)
	return count, err
}

// buildFilteredQuery appends an is_paper clause when paperMode is non-nil.
func buildFilteredQuery(baseQuery string, baseArgs []any, paperMode *bool) (string, []any) {
	if paperMode == nil {
		return baseQuery, baseArgs
	}
	args := append(baseArgs, *paperMode)
	return baseQuery + fmt.Sprintf(" AND is_paper = $%d", len(args)), args
}

// --- scan helpers ---

func scanTradeInto(row scannable, t *Trade) error {
	var td time.Time
	var side string
	if err := row.Scan(
		&t.ID, &t.Timestamp, &td, &side, &t.Price, &t.Quantity, &t.USDValue,
		&t.LevelIndex, &t.Ref, &t.IsPaper, &t.SlippagePercent, &t.GasCost,
		&t.CreatedAt,
	); err != nil {
		return err
	}
	parsed, err := grid.ParseSide(side)
	if err != nil {
		return err
	}
	t.Side = parsed
	t.TradingDay = td.Format("2006-01-02")
	return nil
}

func scanTrade(row scannable) (*Trade, error) {
	var t Trade
	if err := scanTradeInto(row, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTrades(rows rowsIter) ([]Trade, error) {
	var out []Trade
	for rows.Next() {
		var t Trade
		if err := scanTradeInto(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
