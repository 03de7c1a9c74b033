package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gridline/internal/engine"
	"gridline/internal/grid"
	"gridline/internal/paper"
)

// Store bundles the repositories and adapts them to the persistence
// contracts of the engine and the paper wallet.
type Store struct {
	State  *StateRepo
	Trades *TradeRepo
	Prices *PriceRepo
	SR     *SRRepo
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		State:  NewStateRepo(pool),
		Trades: NewTradeRepo(pool),
		Prices: NewPriceRepo(pool),
		SR:     NewSRRepo(pool),
	}
}

// --- engine persistence ---

func (s *Store) Load(ctx context.Context) (*engine.Snapshot, error) {
	rec, err := s.State.GetActive(ctx)
	if err != nil || rec == nil {
		return nil, err
	}

	var ladder grid.Ladder
	if len(rec.LadderJSON) > 0 {
		if err := json.Unmarshal(rec.LadderJSON, &ladder); err != nil {
			return nil, fmt.Errorf("decode stored ladder: %w", err)
		}
	}
	if len(ladder) == 0 {
		// A row with no ladder (wallet seeded before the first build).
		return nil, nil
	}

	snap := &engine.Snapshot{
		Ladder:         ladder,
		BasePrice:      rec.BasePrice,
		TradesExecuted: rec.TradesExecuted,
		LastSRRefresh:  rec.LastSRRefresh,
	}
	if rec.LastPrice != nil {
		snap.LastPrice = *rec.LastPrice
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, snap engine.Snapshot) error {
	ladderJSON, err := json.Marshal(snap.Ladder)
	if err != nil {
		return fmt.Errorf("encode ladder: %w", err)
	}
	var lastPrice *decimal.Decimal
	if snap.LastPrice.Sign() > 0 {
		lp := snap.LastPrice
		lastPrice = &lp
	}
	return s.State.Save(ctx, snap.BasePrice, lastPrice, ladderJSON,
		snap.TradesExecuted, snap.LastSRRefresh)
}

func (s *Store) RecordTrade(ctx context.Context, rec engine.TradeRecord) error {
	_, err := s.Trades.Record(ctx, &Trade{
		Timestamp:       rec.Time,
		Side:            rec.Side,
		Price:           rec.Price,
		Quantity:        rec.Quantity,
		USDValue:        rec.QuoteValue,
		LevelIndex:      rec.LevelIndex,
		Ref:             rec.Ref,
		IsPaper:         rec.Paper,
		SlippagePercent: rec.SlippagePercent,
		GasCost:         rec.GasCost,
	})
	return err
}

func (s *Store) RecordPrice(ctx context.Context, price decimal.Decimal, ts time.Time) error {
	_, err := s.Prices.Record(ctx, price, ts)
	return err
}

// --- paper wallet persistence ---

func (s *Store) LoadWallet(ctx context.Context) (*paper.WalletState, error) {
	rec, err := s.State.GetActive(ctx)
	if err != nil || rec == nil || rec.PaperBase == nil {
		return nil, err
	}

	st := &paper.WalletState{
		Base:      *rec.PaperBase,
		StartedAt: rec.PaperStartedAt,
	}
	if rec.PaperQuote != nil {
		st.Quote = *rec.PaperQuote
	}
	if rec.PaperGasSpent != nil {
		st.GasSpent = *rec.PaperGasSpent
	}
	if rec.PaperInitialBase != nil {
		st.InitialBase = *rec.PaperInitialBase
	}
	if rec.PaperInitialQuote != nil {
		st.InitialQuote = *rec.PaperInitialQuote
	}
	return st, nil
}

func (s *Store) InitWallet(ctx context.Context, st paper.WalletState) error {
	started := time.Now()
	if st.StartedAt != nil {
		started = *st.StartedAt
	}
	return s.State.InitPaperWallet(ctx, st.InitialBase, st.InitialQuote, started)
}

func (s *Store) SaveWallet(ctx context.Context, st paper.WalletState) error {
	return s.State.UpdatePaperWallet(ctx, st.Base, st.Quote, st.GasSpent)
}
