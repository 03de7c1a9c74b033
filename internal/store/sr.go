package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gridline/internal/market"
)

// SRRecord is one row of sr_history: a support/resistance observation plus
// whether it caused a ladder rebuild.
type SRRecord struct {
	ID           int64            `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Method       string           `json:"method"`
	LookbackDays int              `json:"lookbackDays"`
	Support      decimal.Decimal  `json:"support"`
	Resistance   decimal.Decimal  `json:"resistance"`
	Midpoint     decimal.Decimal  `json:"midpoint"`
	AvgPrice     *decimal.Decimal `json:"avgPrice"`
	Rebuilt      bool             `json:"rebuilt"`
	Reasons      *string          `json:"reasons"`
	CreatedAt    time.Time        `json:"createdAt"`
}

type SRRepo struct {
	pool *pgxpool.Pool
}

func NewSRRepo(pool *pgxpool.Pool) *SRRepo {
	return &SRRepo{pool: pool}
}

const srColumns = `id, timestamp, method, lookback_days, support, resistance,
	midpoint, avg_price, rebuilt, reasons, created_at`

func (r *SRRepo) Record(ctx context.Context, rec *SRRecord) (*SRRecord, error) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sr_history
		 (timestamp, method, lookback_days, support, resistance, midpoint, avg_price, rebuilt, reasons)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING `+srColumns,
		ts, rec.Method, rec.LookbackDays, rec.Support, rec.Resistance,
		rec.Midpoint, rec.AvgPrice, rec.Rebuilt, rec.Reasons,
	)
	return scanSR(row)
}

func (r *SRRepo) GetLatest(ctx context.Context) (*SRRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+srColumns+` FROM sr_history ORDER BY timestamp DESC LIMIT 1`,
	)
	rec, err := scanSR(row)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SRRepo) GetHistory(ctx context.Context, limit int) ([]SRRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+srColumns+` FROM sr_history ORDER BY timestamp DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSRs(rows)
}

func (r *SRRepo) NeedsRefresh(ctx context.Context, refreshHours int) (bool, error) {
	latest, err := r.GetLatest(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	age := time.Since(latest.Timestamp)
	return age >= time.Duration(refreshHours)*time.Hour, nil
}

// LatestSignal returns the most recent observation as a market.Signal for
// drift comparison, or nil when none exists.
func (r *SRRepo) LatestSignal(ctx context.Context) (*market.Signal, error) {
	rec, err := r.GetLatest(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	sig := &market.Signal{
		Support:      rec.Support,
		Resistance:   rec.Resistance,
		Midpoint:     rec.Midpoint,
		Method:       rec.Method,
		LookbackDays: rec.LookbackDays,
		FetchedAt:    rec.Timestamp,
	}
	if rec.AvgPrice != nil {
		sig.AvgPrice = *rec.AvgPrice
	}
	return sig, nil
}

// RecordSignal stores a fresh observation tagged with the rebuild decision.
func (r *SRRepo) RecordSignal(ctx context.Context, sig *market.Signal, rebuilt bool, reasons []string) error {
	avg := sig.AvgPrice
	var reasonsCol *string
	if len(reasons) > 0 {
		joined := strings.Join(reasons, "; ")
		reasonsCol = &joined
	}
	_, err := r.Record(ctx, &SRRecord{
		Timestamp:    sig.FetchedAt,
		Method:       sig.Method,
		LookbackDays: sig.LookbackDays,
		Support:      sig.Support,
		Resistance:   sig.Resistance,
		Midpoint:     sig.Midpoint,
		AvgPrice:     &avg,
		Rebuilt:      rebuilt,
		Reasons:      reasonsCol,
	})
	return err
}

// --- scan helpers ---

func scanSRInto(row scannable, rec *SRRecord) error {
	return row.Scan(
		&rec.ID, &rec.Timestamp, &rec.Method, &rec.LookbackDays,
		&rec.Support, &rec.Resistance, &rec.Midpoint, &rec.AvgPrice,
		&rec.Rebuilt, &rec.Reasons, &rec.CreatedAt,
	)
}

func scanSR(row scannable) (*SRRecord, error) {
	var rec SRRecord
	if err := scanSRInto(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectSRs(rows rowsIter) ([]SRRecord, error) {
	var out []SRRecord
	for rows.Next() {
		var rec SRRecord
		if err := scanSRInto(rows, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
