package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StateRecord is one row of ladder_state. The active row is the engine's
// durable snapshot; older rows are kept as history.
type StateRecord struct {
	ID             int64            `json:"id"`
	BasePrice      decimal.Decimal  `json:"basePrice"`
	LastPrice      *decimal.Decimal `json:"lastPrice"`
	LadderJSON     json.RawMessage  `json:"ladder"`
	TradesExecuted int              `json:"tradesExecuted"`
	LastSRRefresh  *time.Time       `json:"lastSrRefresh"`
	IsActive       bool             `json:"isActive"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`

	PaperBase         *decimal.Decimal `json:"paperEthBalance"`
	PaperQuote        *decimal.Decimal `json:"paperUsdcBalance"`
	PaperGasSpent     *decimal.Decimal `json:"paperGasSpent"`
	PaperInitialBase  *decimal.Decimal `json:"paperInitialEth"`
	PaperInitialQuote *decimal.Decimal `json:"paperInitialUsdc"`
	PaperStartedAt    *time.Time       `json:"paperStartedAt"`
}

type StateRepo struct {
	pool *pgxpool.Pool
}

func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

const stateColumns = `id, base_price, last_price, ladder_json, trades_executed,
	last_sr_refresh, is_active, created_at, updated_at,
	paper_eth_balance, paper_usdc_balance, paper_gas_spent,
	paper_initial_eth, paper_initial_usdc, paper_started_at`

func (r *StateRepo) GetActive(ctx context.Context) (*StateRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM ladder_state
		 WHERE is_active = true ORDER BY updated_at DESC LIMIT 1`,
	)
	rec, err := scanState(row)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save updates the active row in place, inserting one when none exists.
// The paper wallet columns are owned by the wallet methods and left alone.
func (r *StateRepo) Save(ctx context.Context, basePrice decimal.Decimal, lastPrice *decimal.Decimal,
	ladderJSON json.RawMessage, tradesExecuted int, lastSRRefresh *time.Time) error {

	tag, err := r.pool.Exec(ctx,
		`UPDATE ladder_state
		 SET base_price = $1, last_price = $2, ladder_json = $3,
		     trades_executed = $4, last_sr_refresh = $5, updated_at = NOW()
		 WHERE is_active = true`,
		basePrice, lastPrice, ladderJSON, tradesExecuted, lastSRRefresh,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO ladder_state
		 (base_price, last_price, ladder_json, trades_executed, last_sr_refresh, is_active, updated_at)
		 VALUES ($1,$2,$3,$4,$5,true,NOW())`,
		basePrice, lastPrice, ladderJSON, tradesExecuted, lastSRRefresh,
	)
	return err
}

// Archive deactivates the active row so the next Save starts a new one.
// Used when a fresh ladder should not overwrite the previous run's row.
func (r *StateRepo) Archive(ctx context.Context) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ladder_state SET is_active = false WHERE is_active = true`)
	return err
}

func (r *StateRepo) GetHistory(ctx context.Context, limit int) ([]StateRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM ladder_state ORDER BY updated_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStates(rows)
}

// --- paper wallet columns ---

// InitPaperWallet seeds the wallet columns on the active row, creating the
// row first when the engine has not saved yet. A wallet that is already
// initialized is left untouched.
func (r *StateRepo) InitPaperWallet(ctx context.Context, initialBase, initialQuote decimal.Decimal, startedAt time.Time) error {
	rec, err := r.GetActive(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO ladder_state (base_price, ladder_json, trades_executed, is_active, updated_at)
			 VALUES ('0', '[]'::jsonb, 0, true, NOW())`,
		); err != nil {
			return err
		}
	} else if rec.PaperBase != nil {
		return nil
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE ladder_state
		 SET paper_eth_balance = $1,
		     paper_usdc_balance = $2,
		     paper_initial_eth = $1,
		     paper_initial_usdc = $2,
		     paper_gas_spent = '0',
		     paper_started_at = $3,
		     updated_at = NOW()
		 WHERE is_active = true`,
		initialBase, initialQuote, startedAt,
	)
	return err
}

func (r *StateRepo) UpdatePaperWallet(ctx context.Context, base, quote, gasSpent decimal.Decimal) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ladder_state
		 SET paper_eth_balance = $1,
		     paper_usdc_balance = $2,
		     paper_gas_spent = $3,
		     updated_at = NOW()
		 WHERE is_active = true`,
		base, quote, gasSpent,
	)
	return err
}

// --- scan helpers ---

func scanStateInto(row scannable, rec *StateRecord) error {
	return row.Scan(
		&rec.ID, &rec.BasePrice, &rec.LastPrice, &rec.LadderJSON,
		&rec.TradesExecuted, &rec.LastSRRefresh,
		&rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.PaperBase, &rec.PaperQuote, &rec.PaperGasSpent,
		&rec.PaperInitialBase, &rec.PaperInitialQuote, &rec.PaperStartedAt,
	)
}

func scanState(row scannable) (*StateRecord, error) {
	var rec StateRecord
	if err := scanStateInto(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectStates(rows rowsIter) ([]StateRecord, error) {
	var out []StateRecord
	for rows.Next() {
		var rec StateRecord
		if err := scanStateInto(rows, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
