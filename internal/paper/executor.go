package paper

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/engine"
	"gridline/internal/grid"
)

// DefaultGasCost is the simulated per-trade gas charge in ETH.
var DefaultGasCost = decimal.NewFromFloat(0.005)

// Executor fills swap requests against a Wallet, applying random slippage
// and a flat gas charge so paper results stay honest about friction. The
// RNG is injected so tests can seed it.
type Executor struct {
	wallet         *Wallet
	rng            *rand.Rand
	maxSlippagePct float64
	gasCost        decimal.Decimal
	log            zerolog.Logger
}

func NewExecutor(w *Wallet, rng *rand.Rand, maxSlippagePct float64, log zerolog.Logger) *Executor {
	return &Executor{
		wallet:         w,
		rng:            rng,
		maxSlippagePct: maxSlippagePct,
		gasCost:        DefaultGasCost,
		log:            log.With().Str("component", "paper-exec").Logger(),
	}
}

// Swap simulates one fill. Buys pay an execution price above market by the
// slippage amount, sells receive below market. Gas is deducted in ETH
// after the fill; an insufficient balance leaves the wallet untouched.
func (e *Executor) Swap(ctx context.Context, req engine.SwapRequest) (*engine.SwapResult, error) {
	slipPct := decimal.NewFromFloat(e.rng.Float64() * e.maxSlippagePct)
	slip := slipPct.Div(decimal.NewFromInt(100))

	var execPrice, baseAmt, quoteAmt decimal.Decimal
	if req.Side == grid.Buy {
		execPrice = req.Price.Mul(decimal.NewFromInt(1).Add(slip))
		quoteAmt = req.QuoteAmount
		baseAmt = quoteAmt.Div(execPrice)
		if err := e.wallet.Buy(ctx, quoteAmt, baseAmt); err != nil {
			return nil, err
		}
	} else {
		execPrice = req.Price.Mul(decimal.NewFromInt(1).Sub(slip))
		baseAmt = req.BaseAmount
		quoteAmt = baseAmt.Mul(execPrice)
		if err := e.wallet.Sell(ctx, baseAmt, quoteAmt); err != nil {
			return nil, err
		}
	}

	gas := e.gasCost
	e.wallet.DeductGas(ctx, gas)

	e.log.Info().
		Str("side", req.Side.String()).
		Int("level", req.LevelIndex).
		Str("exec_price", execPrice.StringFixed(2)).
		Str("slippage_pct", slipPct.StringFixed(4)).
		Str("eth", baseAmt.StringFixed(6)).
		Str("usdc", quoteAmt.StringFixed(2)).
		Msg("paper fill")

	return &engine.SwapResult{
		Ref:             "paper-" + uuid.NewString(),
		BaseAmount:      baseAmt,
		QuoteAmount:     quoteAmt,
		SlippagePercent: &slipPct,
		GasCost:         &gas,
	}, nil
}

// Balances satisfies engine.BalanceReader.
func (e *Executor) Balances(ctx context.Context) (base, quote decimal.Decimal, err error) {
	base, quote = e.wallet.Balances()
	return base, quote, nil
}

// UnrealizedPnL satisfies engine.PnLReader.
func (e *Executor) UnrealizedPnL(price decimal.Decimal) (decimal.Decimal, float64) {
	st := e.wallet.StatsAt(price)
	return st.UnrealizedPnL, st.UnrealizedPnLPct
}

// Stats exposes the wallet valuation for status reporting and the API.
func (e *Executor) Stats(price decimal.Decimal) Stats {
	return e.wallet.StatsAt(price)
}
