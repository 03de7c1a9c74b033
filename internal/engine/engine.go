package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/grid"
	"gridline/internal/market"
	"gridline/internal/metrics"
	"gridline/internal/notify"
	"gridline/internal/risk"
)

// Mode selects the execution backend at construction time.
type Mode int

const (
	ModePaper Mode = iota
	ModeLive
)

func (m Mode) String() string {
	if m == ModePaper {
		return "paper"
	}
	return "live"
}

// Phase is the engine's position in its trading state machine.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseBuilding
	PhaseIdle
	PhaseTriggered
	PhaseExecuting
	PhaseRebuilding
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "building"
	case PhaseIdle:
		return "idle"
	case PhaseTriggered:
		return "triggered"
	case PhaseExecuting:
		return "executing"
	case PhaseRebuilding:
		return "rebuilding"
	case PhaseShuttingDown:
		return "shutting-down"
	case PhaseStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

type Config struct {
	Mode           Mode
	Levels         int
	SpacingPercent decimal.Decimal
	AmountPerLevel decimal.Decimal
	// BasePrice pins the ladder center; zero means derive it from the
	// signal midpoint on every rebuild.
	BasePrice decimal.Decimal

	// Sanity bounds for the price feed; prices outside are discarded.
	PriceMin decimal.Decimal
	PriceMax decimal.Decimal

	TickInterval   time.Duration
	Cooldown       time.Duration
	StatusInterval time.Duration
}

// Deps are the engine's collaborators. Prices and Exec are required;
// everything else degrades gracefully when nil.
type Deps struct {
	Log      zerolog.Logger
	Prices   PriceSource
	Signals  SignalSource
	Exec     Executor
	Store    Store
	Notifier Notifier
	Guard    *risk.Guardian
}

// Engine owns the ladder and all trading state. Every mutation happens
// under one mutex so a scheduler-driven rebuild can never interleave with
// an in-flight trigger/execute sequence.
type Engine struct {
	cfg      Config
	log      zerolog.Logger
	prices   PriceSource
	signals  SignalSource
	exec     Executor
	store    Store
	notifier Notifier
	guard    *risk.Guardian

	mu             sync.Mutex
	ladder         grid.Ladder
	basePrice      decimal.Decimal
	lastPrice      decimal.Decimal
	lastSRRefresh  *time.Time
	priceChecks    int
	tradesExecuted int
	phase          Phase
	cooldownUntil  time.Time
	lastStatus     time.Time
	running        bool
	pending        []pendingNote

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 60 * time.Minute
	}
	return &Engine{
		cfg:       cfg,
		log:       deps.Log.With().Str("component", "engine").Str("mode", cfg.Mode.String()).Logger(),
		prices:    deps.Prices,
		signals:   deps.Signals,
		exec:      deps.Exec,
		store:     deps.Store,
		notifier:  deps.Notifier,
		guard:     deps.Guard,
		basePrice: cfg.BasePrice,
		stopCh:    make(chan struct{}),
	}
}

// Init restores a previously persisted snapshot, if any.
func (e *Engine) Init(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, err := e.store.Load(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to load prior state, starting fresh")
		return nil
	}
	if snap == nil {
		e.log.Info().Msg("no prior state found, will build a fresh ladder")
		return nil
	}

	e.mu.Lock()
	e.ladder = snap.Ladder
	e.tradesExecuted = snap.TradesExecuted
	e.lastSRRefresh = snap.LastSRRefresh
	if snap.BasePrice.Sign() > 0 {
		e.basePrice = snap.BasePrice
	}
	if snap.LastPrice.Sign() > 0 {
		e.lastPrice = snap.LastPrice
	}
	e.mu.Unlock()

	e.log.Info().Int("levels", len(snap.Ladder)).Int("trades", snap.TradesExecuted).
		Msg("state restored from store")
	return nil
}

// Run drives the tick loop until Stop or context cancellation. The final
// tick or rebuild completes before the loop exits.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.running = true
	empty := len(e.ladder) == 0
	e.mu.Unlock()

	e.notify(fmt.Sprintf("Starting grid trader: %d levels, %s%% spacing",
		e.cfg.Levels, e.cfg.SpacingPercent), notify.Info)

	if empty {
		if err := e.InitializeLadder(ctx); err != nil {
			e.log.Error().Err(err).Msg("ladder initialization failed")
			e.finish()
			return
		}
	}

	e.mu.Lock()
	fmt.Println("\n" + grid.Render(e.ladder, e.basePrice, e.cfg.AmountPerLevel) + "\n")
	e.mu.Unlock()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.tick(ctx)

	for {
		select {
		case <-e.stopCh:
			e.notify("Grid trader shutting down", notify.Info)
			e.finish()
			return
		case <-ctx.Done():
			e.finish()
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.phase = PhaseShuttingDown
	e.running = false
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.Save(ctx, snap); err != nil {
			e.log.Error().Err(err).Msg("final state flush failed")
		}
	}

	e.mu.Lock()
	e.phase = PhaseStopped
	e.mu.Unlock()
}

// Stop requests a cooperative shutdown.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// StateView returns a copy of the ladder and last price for the
// scheduler. Nil when no ladder exists yet.
func (e *Engine) StateView() *View {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.ladder) == 0 {
		return nil
	}
	return &View{Ladder: e.ladder.Clone(), LastPrice: e.lastPrice}
}

// --- tick ---

func (e *Engine) tick(ctx context.Context) {
	price := e.fetchPrice(ctx)
	if price.Sign() <= 0 {
		e.log.Warn().Msg("no usable price, skipping tick")
		return
	}

	if pnl, ok := e.unrealizedPct(price); ok && e.guard != nil {
		if err := e.guard.PortfolioCheck(pnl); err != nil {
			e.notify(fmt.Sprintf("CIRCUIT BREAKER: %v — halting trading", err), notify.Error)
			e.Stop()
			return
		}
	}

	e.mu.Lock()

	if time.Now().Before(e.cooldownUntil) {
		e.log.Debug().Time("until", e.cooldownUntil).Msg("in post-trade cooldown")
		e.maybeReportStatus(ctx, price)
		e.mu.Unlock()
		e.sendPending()
		return
	}

	triggered := grid.FindTriggered(price, e.ladder)
	if triggered != nil {
		e.phase = PhaseTriggered
		e.log.Info().Int("level", triggered.Index).
			Str("side", triggered.Side.String()).
			Str("level_price", triggered.Price.StringFixed(2)).
			Str("price", price.StringFixed(2)).
			Msg("grid level triggered")

		if err := e.executeLocked(ctx, triggered, price); err != nil {
			// Level state untouched: it stays armed for a later tick.
			metrics.TradeFailures.WithLabelValues(e.cfg.Mode.String()).Inc()
			e.log.Error().Err(err).Int("level", triggered.Index).Msg("trade execution failed")
			e.queueLocked(fmt.Sprintf("Trade failed at level %d: %v", triggered.Index, err), notify.Error)
		} else {
			e.cooldownUntil = time.Now().Add(e.cfg.Cooldown)
		}
	}
	e.phase = PhaseIdle

	e.maybeReportStatus(ctx, price)
	e.mu.Unlock()
	e.sendPending()
}

// fetchPrice returns a sane current price, falling back to the last good
// one when the feed is down or the value fails the sanity bound.
func (e *Engine) fetchPrice(ctx context.Context) decimal.Decimal {
	e.mu.Lock()
	last := e.lastPrice
	e.mu.Unlock()

	price, err := e.prices.Fetch(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("last", last.StringFixed(2)).
			Msg("price fetch failed, reusing last known price")
		return last
	}
	if e.cfg.PriceMin.Sign() > 0 && price.LessThan(e.cfg.PriceMin) ||
		e.cfg.PriceMax.Sign() > 0 && price.GreaterThan(e.cfg.PriceMax) {
		e.log.Warn().Str("price", price.StringFixed(2)).
			Msg("price failed sanity bound, reusing last known price")
		return last
	}

	e.mu.Lock()
	e.lastPrice = price
	e.priceChecks++
	e.mu.Unlock()
	metrics.PriceChecks.Inc()

	if e.store != nil {
		if err := e.store.RecordPrice(ctx, price, time.Now()); err != nil {
			e.log.Debug().Err(err).Msg("price history write failed")
		}
	}
	return price
}

// executeLocked dispatches one fill to the execution backend. Caller
// holds e.mu; the lock is held across the swap so a rebuild can never
// observe a half-updated ladder and the same level cannot double-fire.
func (e *Engine) executeLocked(ctx context.Context, level *grid.Level, price decimal.Decimal) error {
	quote := level.Quantity.Mul(price)

	if e.guard != nil {
		if err := e.guard.PreTradeCheck(ctx, quote); err != nil {
			e.queueLocked(fmt.Sprintf("[RISK] %v", err), notify.Warn)
			return err
		}
	}

	e.phase = PhaseExecuting
	e.queueLocked(fmt.Sprintf("%sExecuting %s at level %d: ~%s ETH for ~%s USDC (@ $%s)",
		e.prefix(), level.Side, level.Index,
		level.Quantity.StringFixed(6), quote.StringFixed(2), price.StringFixed(2)), notify.Info)

	res, err := e.exec.Swap(ctx, SwapRequest{
		Side:        level.Side,
		BaseAmount:  level.Quantity,
		QuoteAmount: quote,
		Price:       price,
		LevelIndex:  level.Index,
		LevelPrice:  level.Price,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	level.Filled = true
	level.FilledAt = &now
	level.ExecutionRef = &res.Ref
	e.tradesExecuted++
	metrics.Trades.WithLabelValues(e.cfg.Mode.String(), level.Side.String()).Inc()

	e.persistLocked(ctx)

	if e.store != nil {
		rec := TradeRecord{
			Time:            now,
			Side:            level.Side,
			Price:           price,
			Quantity:        res.BaseAmount,
			QuoteValue:      res.QuoteAmount,
			LevelIndex:      level.Index,
			Ref:             res.Ref,
			Paper:           e.cfg.Mode == ModePaper,
			SlippagePercent: res.SlippagePercent,
			GasCost:         res.GasCost,
		}
		if err := e.store.RecordTrade(ctx, rec); err != nil {
			e.log.Warn().Err(err).Msg("trade history write failed")
		}
	}

	e.resetOppositeLocked(ctx, *level)
	return nil
}

// resetOppositeLocked re-arms the adjacent level on the other side after a
// fill so the ladder can oscillate instead of filling up permanently.
func (e *Engine) resetOppositeLocked(ctx context.Context, filled grid.Level) {
	idx, ok := grid.OppositeIndex(filled, len(e.ladder))
	if !ok {
		return
	}
	adj := &e.ladder[idx]
	if !adj.Filled {
		return
	}
	adj.Filled = false
	adj.FilledAt = nil
	adj.ExecutionRef = nil
	e.persistLocked(ctx)
	e.log.Info().Int("level", idx).Msg("opposite level re-armed")
}

// --- ladder lifecycle ---

// InitializeLadder fetches an S/R signal (or the fallback) and rebuilds.
func (e *Engine) InitializeLadder(ctx context.Context) error {
	sig := e.fetchSignal(ctx)
	return e.Rebuild(ctx, sig)
}

func (e *Engine) fetchSignal(ctx context.Context) *market.Signal {
	if e.signals != nil {
		sig, err := e.signals.Fetch(ctx, false)
		if err == nil {
			now := time.Now()
			e.mu.Lock()
			e.lastSRRefresh = &now
			e.mu.Unlock()
			return sig
		}
		e.log.Warn().Err(err).Msg("S/R fetch failed, using fallback signal")
	}

	price := e.fetchPrice(ctx)
	fb := market.Fallback(price)
	return &fb
}

// Rebuild replaces the ladder from a fresh signal. All-or-nothing: the old
// ladder stays in place when building fails, and the swap happens under
// the engine lock so the trigger scan never sees a partial ladder.
func (e *Engine) Rebuild(ctx context.Context, sig *market.Signal) error {
	center := e.cfg.BasePrice
	if center.Sign() <= 0 {
		center = sig.Midpoint
	}
	if center.Sign() <= 0 {
		return fmt.Errorf("%w: no usable center price", grid.ErrInvalidConfig)
	}

	ladder, err := grid.Build(grid.Params{
		Center:         center,
		Levels:         e.cfg.Levels,
		SpacingPercent: e.cfg.SpacingPercent,
		AmountPerLevel: e.cfg.AmountPerLevel,
	})
	if err != nil {
		return fmt.Errorf("build ladder: %w", err)
	}

	e.mu.Lock()
	e.phase = PhaseRebuilding
	e.ladder = ladder
	e.basePrice = center
	if sig.Method != "fallback" {
		now := time.Now()
		e.lastSRRefresh = &now
	}
	e.persistLocked(ctx)
	e.phase = PhaseIdle
	e.mu.Unlock()

	lo, hi, _ := ladder.Span()
	e.notify(fmt.Sprintf("Ladder rebuilt (%s, %dd): %d levels from $%s to $%s, center $%s",
		sig.Method, sig.LookbackDays, len(ladder),
		lo.StringFixed(2), hi.StringFixed(2), center.StringFixed(2)), notify.Info)
	return nil
}

// --- persistence & reporting ---

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Ladder:         e.ladder.Clone(),
		BasePrice:      e.basePrice,
		LastPrice:      e.lastPrice,
		TradesExecuted: e.tradesExecuted,
		LastSRRefresh:  e.lastSRRefresh,
	}
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, e.snapshotLocked()); err != nil {
		e.log.Warn().Err(err).Msg("state persist failed, in-memory state remains authoritative")
	}
}

func (e *Engine) unrealizedPct(price decimal.Decimal) (float64, bool) {
	p, ok := e.exec.(PnLReader)
	if !ok {
		return 0, false
	}
	pnl, pct := p.UnrealizedPnL(price)
	_ = pnl
	return pct, true
}

func (e *Engine) maybeReportStatus(ctx context.Context, price decimal.Decimal) {
	if time.Since(e.lastStatus) < e.cfg.StatusInterval {
		return
	}
	e.lastStatus = time.Now()

	stats := e.ladder.Stats()

	var base, quote decimal.Decimal
	if br, ok := e.exec.(BalanceReader); ok {
		if b, q, err := br.Balances(ctx); err == nil {
			base, quote = b, q
		}
	}
	equity := base.Mul(price).Add(quote)
	ev, _ := equity.Float64()
	metrics.Equity.Set(ev)

	e.queueLocked(fmt.Sprintf(
		"%sStatus: ETH @ $%s | ETH: %s ($%s) | USDC: %s | Grid: %d/%d buys, %d/%d sells | Checks: %d | Trades: %d",
		e.prefix(), price.StringFixed(2),
		base.StringFixed(4), base.Mul(price).StringFixed(2), quote.StringFixed(2),
		stats.FilledBuys, stats.FilledBuys+stats.PendingBuys,
		stats.FilledSells, stats.FilledSells+stats.PendingSells,
		e.priceChecks, e.tradesExecuted,
	), notify.Info)

	if p, ok := e.exec.(PnLReader); ok {
		pnl, pct := p.UnrealizedPnL(price)
		sign := "+"
		if pnl.Sign() < 0 {
			sign = ""
		}
		e.queueLocked(fmt.Sprintf("[P&L] Unrealized: %s$%s (%s%.2f%%)",
			sign, pnl.StringFixed(2), sign, pct), notify.Info)
	}
}

func (e *Engine) prefix() string {
	if e.cfg.Mode == ModePaper {
		return "[PAPER] "
	}
	return ""
}

// pendingNote is a notification composed under the engine lock. The
// webhook post retries synchronously for up to tens of seconds, so
// delivery waits until the lock is released.
type pendingNote struct {
	msg   string
	level notify.Level
}

func (e *Engine) queueLocked(msg string, level notify.Level) {
	e.pending = append(e.pending, pendingNote{msg: msg, level: level})
}

// sendPending drains the queued notifications and delivers them without
// holding e.mu.
func (e *Engine) sendPending() {
	e.mu.Lock()
	notes := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, n := range notes {
		e.notify(n.msg, n.level)
	}
}

func (e *Engine) notify(msg string, level notify.Level) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(msg, level)
}
