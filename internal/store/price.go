package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PricePoint is one row of price_history.
type PricePoint struct {
	ID         int64           `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Price      decimal.Decimal `json:"price"`
	TradingDay string          `json:"tradingDay"`
	Source     string          `json:"source"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

const priceColumns = `id, timestamp, price, trading_day, source, created_at`

func (r *PriceRepo) Record(ctx context.Context, price decimal.Decimal, ts time.Time) (*PricePoint, error) {
	td := TradingDay(ts)
	row := r.pool.QueryRow(ctx,
		`INSERT INTO price_history (timestamp, price, trading_day, source)
		 VALUES ($1, $2, $3, $4) RETURNING `+priceColumns,
		ts, price, td, "coingecko",
	)
	return scanPrice(row)
}

func (r *PriceRepo) GetByDay(ctx context.Context, tradingDay string) ([]PricePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+priceColumns+` FROM price_history WHERE trading_day = $1 ORDER BY timestamp ASC`,
		tradingDay,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

func (r *PriceRepo) GetAvailableDays(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT trading_day FROM price_history ORDER BY trading_day ASC LIMIT 30`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d.Format("2006-01-02"))
	}
	return days, rows.Err()
}

func (r *PriceRepo) GetLatest(ctx context.Context) (*PricePoint, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+priceColumns+` FROM price_history ORDER BY timestamp DESC LIMIT 1`,
	)
	p, err := scanPrice(row)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// --- scan helpers ---

func scanPriceInto(row scannable, p *PricePoint) error {
	var td time.Time
	if err := row.Scan(&p.ID, &p.Timestamp, &p.Price, &td, &p.Source, &p.CreatedAt); err != nil {
		return err
	}
	p.TradingDay = td.Format("2006-01-02")
	return nil
}

func scanPrice(row scannable) (*PricePoint, error) {
	var p PricePoint
	if err := scanPriceInto(row, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPrices(rows rowsIter) ([]PricePoint, error) {
	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := scanPriceInto(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
