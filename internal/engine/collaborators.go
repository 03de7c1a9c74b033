package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"gridline/internal/grid"
	"gridline/internal/market"
	"gridline/internal/notify"
)

// Execution backend errors. Backends wrap these so the engine can treat
// every execution failure uniformly: the level stays armed and the loop
// continues.
var (
	ErrExecutionFailed  = errors.New("execution failed")
	ErrSlippageExceeded = errors.New("slippage exceeded")
)

// PriceSource supplies the current spot price.
type PriceSource interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// SignalSource supplies support/resistance signals. May be absent; the
// engine then builds ladders from the fallback signal.
type SignalSource interface {
	Fetch(ctx context.Context, forceRefresh bool) (*market.Signal, error)
}

// SwapRequest describes one grid fill to execute.
type SwapRequest struct {
	Side        grid.Side
	BaseAmount  decimal.Decimal // ETH quantity of the level
	QuoteAmount decimal.Decimal // USD value at the execution price
	Price       decimal.Decimal // current market price
	LevelIndex  int
	LevelPrice  decimal.Decimal
}

// SwapResult reports what an execution backend actually did.
type SwapResult struct {
	Ref             string // tx hash or paper fill id
	BaseAmount      decimal.Decimal
	QuoteAmount     decimal.Decimal
	SlippagePercent *decimal.Decimal
	GasCost         *decimal.Decimal
}

// Executor is the execution backend: the paper simulator or the live DEX
// router. Fixed at engine construction, never mixed at runtime.
type Executor interface {
	Swap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}

// BalanceReader is optionally implemented by an Executor that can report
// wallet balances for status reports.
type BalanceReader interface {
	Balances(ctx context.Context) (base, quote decimal.Decimal, err error)
}

// PnLReader is optionally implemented by an Executor that tracks
// unrealized P&L (the paper backend).
type PnLReader interface {
	UnrealizedPnL(price decimal.Decimal) (pnl decimal.Decimal, pct float64)
}

// Snapshot is the persistable engine state.
type Snapshot struct {
	Ladder         grid.Ladder
	BasePrice      decimal.Decimal
	LastPrice      decimal.Decimal
	TradesExecuted int
	LastSRRefresh  *time.Time
}

// TradeRecord is one executed fill for the history collaborator.
type TradeRecord struct {
	Time            time.Time
	Side            grid.Side
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	QuoteValue      decimal.Decimal
	LevelIndex      int
	Ref             string
	Paper           bool
	SlippagePercent *decimal.Decimal
	GasCost         *decimal.Decimal
}

// Store persists engine state and history. Best-effort: the engine logs
// failures and keeps trading on in-memory state.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	RecordTrade(ctx context.Context, rec TradeRecord) error
	RecordPrice(ctx context.Context, price decimal.Decimal, ts time.Time) error
}

// Notifier is the fire-and-forget chat sink.
type Notifier interface {
	Notify(msg string, level notify.Level)
}

// View is the read-only slice of engine state the scheduler consumes.
type View struct {
	Ladder    grid.Ladder
	LastPrice decimal.Decimal
}
