// Package paper simulates trade execution against virtual ETH/USDC
// balances so the full trading loop can run with zero on-chain risk.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a simulated fill would overdraw
// the virtual wallet. The wallet is left untouched.
var ErrInsufficientBalance = errors.New("insufficient paper balance")

// WalletState is the persistable wallet snapshot.
type WalletState struct {
	InitialBase  decimal.Decimal
	InitialQuote decimal.Decimal
	Base         decimal.Decimal
	Quote        decimal.Decimal
	GasSpent     decimal.Decimal
	Trades       int
	StartedAt    *time.Time
}

// Store persists the virtual wallet across restarts. May be nil; the
// wallet then lives purely in memory.
type Store interface {
	LoadWallet(ctx context.Context) (*WalletState, error)
	InitWallet(ctx context.Context, st WalletState) error
	SaveWallet(ctx context.Context, st WalletState) error
}

// Wallet is a virtual two-asset ledger. Debits and credits of one fill
// are applied atomically under the mutex.
type Wallet struct {
	mu    sync.Mutex
	store Store
	log   zerolog.Logger

	initialBase  decimal.Decimal
	initialQuote decimal.Decimal
	base         decimal.Decimal
	quote        decimal.Decimal
	gasSpent     decimal.Decimal
	buys         int
	sells        int
	startedAt    time.Time
}

func NewWallet(store Store, initialBase, initialQuote decimal.Decimal, log zerolog.Logger) *Wallet {
	return &Wallet{
		store:        store,
		log:          log.With().Str("component", "paper").Logger(),
		initialBase:  initialBase,
		initialQuote: initialQuote,
		base:         initialBase,
		quote:        initialQuote,
		startedAt:    time.Now(),
	}
}

// Init restores the wallet from the store, or seeds the store with the
// configured starting balances on first run.
func (w *Wallet) Init(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	st, err := w.store.LoadWallet(ctx)
	if err != nil {
		return fmt.Errorf("load paper wallet: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if st != nil && st.Base.Sign() > 0 {
		w.base = st.Base
		w.quote = st.Quote
		w.gasSpent = st.GasSpent
		w.initialBase = st.InitialBase
		w.initialQuote = st.InitialQuote
		if st.StartedAt != nil {
			w.startedAt = *st.StartedAt
		}
		w.log.Info().Str("eth", w.base.StringFixed(6)).Str("usdc", w.quote.StringFixed(2)).
			Msg("paper wallet restored")
		return nil
	}

	w.log.Info().Str("eth", w.initialBase.StringFixed(4)).Str("usdc", w.initialQuote.StringFixed(2)).
		Msg("starting fresh paper wallet")
	if err := w.store.InitWallet(ctx, w.stateLocked()); err != nil {
		return fmt.Errorf("initialize paper wallet: %w", err)
	}
	return nil
}

func (w *Wallet) stateLocked() WalletState {
	started := w.startedAt
	return WalletState{
		InitialBase:  w.initialBase,
		InitialQuote: w.initialQuote,
		Base:         w.base,
		Quote:        w.quote,
		GasSpent:     w.gasSpent,
		Trades:       w.buys + w.sells,
		StartedAt:    &started,
	}
}

func (w *Wallet) saveLocked(ctx context.Context) {
	if w.store == nil {
		return
	}
	if err := w.store.SaveWallet(ctx, w.stateLocked()); err != nil {
		w.log.Warn().Err(err).Msg("paper wallet persist failed")
	}
}

// Buy debits quote and credits base. Fails without mutation when the
// quote balance cannot cover the debit.
func (w *Wallet) Buy(ctx context.Context, quoteOut, baseIn decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.quote.LessThan(quoteOut) {
		return fmt.Errorf("%w: have %s USDC, need %s",
			ErrInsufficientBalance, w.quote.StringFixed(2), quoteOut.StringFixed(2))
	}
	w.quote = w.quote.Sub(quoteOut)
	w.base = w.base.Add(baseIn)
	w.buys++
	w.saveLocked(ctx)
	return nil
}

// Sell debits base and credits quote. Fails without mutation when the
// base balance cannot cover the debit.
func (w *Wallet) Sell(ctx context.Context, baseOut, quoteIn decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.base.LessThan(baseOut) {
		return fmt.Errorf("%w: have %s ETH, need %s",
			ErrInsufficientBalance, w.base.StringFixed(6), baseOut.StringFixed(6))
	}
	w.base = w.base.Sub(baseOut)
	w.quote = w.quote.Add(quoteIn)
	w.sells++
	w.saveLocked(ctx)
	return nil
}

// DeductGas charges a simulated gas cost in base currency.
func (w *Wallet) DeductGas(ctx context.Context, gas decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.base = w.base.Sub(gas)
	w.gasSpent = w.gasSpent.Add(gas)
	w.saveLocked(ctx)
}

// Balances returns the current virtual holdings.
func (w *Wallet) Balances() (base, quote decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.base, w.quote
}

// Stats is a valuation of the wallet at a given price.
type Stats struct {
	InitialBase      decimal.Decimal
	InitialQuote     decimal.Decimal
	Base             decimal.Decimal
	Quote            decimal.Decimal
	InitialValueUSD  decimal.Decimal
	CurrentValueUSD  decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct float64
	Buys             int
	Sells            int
	GasSpent         decimal.Decimal
	GasSpentUSD      decimal.Decimal
	RunningTime      time.Duration
}

// StatsAt values both the initial and current holdings at the same price,
// so the P&L isolates what trading did rather than what the market did.
func (w *Wallet) StatsAt(price decimal.Decimal) Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	initial := w.initialBase.Mul(price).Add(w.initialQuote)
	current := w.base.Mul(price).Add(w.quote)
	pnl := current.Sub(initial)

	pct := 0.0
	if initial.Sign() > 0 {
		pct, _ = pnl.Div(initial).Mul(decimal.NewFromInt(100)).Float64()
	}

	return Stats{
		InitialBase:      w.initialBase,
		InitialQuote:     w.initialQuote,
		Base:             w.base,
		Quote:            w.quote,
		InitialValueUSD:  initial,
		CurrentValueUSD:  current,
		UnrealizedPnL:    pnl,
		UnrealizedPnLPct: pct,
		Buys:             w.buys,
		Sells:            w.sells,
		GasSpent:         w.gasSpent,
		GasSpentUSD:      w.gasSpent.Mul(price),
		RunningTime:      time.Since(w.startedAt),
	}
}
