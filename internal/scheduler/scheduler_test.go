package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/engine"
	"gridline/internal/grid"
	"gridline/internal/market"
	"gridline/internal/scheduler"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeSignals struct {
	sig *market.Signal
	err error
}

func (f *fakeSignals) Fetch(ctx context.Context, forceRefresh bool) (*market.Signal, error) {
	return f.sig, f.err
}

type recorded struct {
	sig     *market.Signal
	rebuilt bool
	reasons []string
}

type fakeSRStore struct {
	prev    *market.Signal
	prevErr error
	records []recorded
}

func (f *fakeSRStore) LatestSignal(ctx context.Context) (*market.Signal, error) {
	return f.prev, f.prevErr
}

func (f *fakeSRStore) RecordSignal(ctx context.Context, sig *market.Signal, rebuilt bool, reasons []string) error {
	f.records = append(f.records, recorded{sig: sig, rebuilt: rebuilt, reasons: reasons})
	return nil
}

func sigAt(mid string) *market.Signal {
	m := dec(mid)
	return &market.Signal{
		Support:    m.Mul(dec("0.9")),
		Resistance: m.Mul(dec("1.1")),
		Midpoint:   m,
		AvgPrice:   m,
		Method:     "simple",
		FetchedAt:  time.Now(),
	}
}

func testLadder(t *testing.T, center string) grid.Ladder {
	t.Helper()
	l, err := grid.Build(grid.Params{
		Center:         dec(center),
		Levels:         10,
		SpacingPercent: dec("2"),
		AmountPerLevel: dec("100"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func newScheduler(signals scheduler.SignalSource, store scheduler.SRStore,
	state scheduler.StateFn, rebuild scheduler.Rebuilder) *scheduler.Scheduler {
	return scheduler.New(signals, store, state, rebuild, scheduler.Config{
		Interval:         1 * time.Hour,
		ThresholdPercent: dec("5"),
	}, zerolog.Nop())
}

func TestRunNow_MidpointDriftTriggersRebuild(t *testing.T) {
	store := &fakeSRStore{prev: sigAt("3100")}
	var rebuilt bool
	// 3100 -> 3255 is exactly 5%, meeting the threshold.
	s := newScheduler(&fakeSignals{sig: sigAt("3255")}, store, nil,
		func(ctx context.Context, sig *market.Signal) error {
			rebuilt = true
			return nil
		})

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !rebuilt {
		t.Fatal("expected rebuild at exactly the drift threshold")
	}
	if len(store.records) != 1 || !store.records[0].rebuilt {
		t.Fatalf("record: %+v", store.records)
	}
	if len(store.records[0].reasons) == 0 {
		t.Fatal("record should carry the rebuild reasons")
	}
}

func TestRunNow_SmallDriftNoRebuild(t *testing.T) {
	store := &fakeSRStore{prev: sigAt("3100")}
	var rebuilt bool
	// 3100 -> 3145 is ~1.45%, under the 5% threshold.
	s := newScheduler(&fakeSignals{sig: sigAt("3145")}, store, nil,
		func(ctx context.Context, sig *market.Signal) error {
			rebuilt = true
			return nil
		})

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if rebuilt {
		t.Fatal("small drift must not rebuild")
	}
	// The observation still gets recorded for the next comparison.
	if len(store.records) != 1 || store.records[0].rebuilt {
		t.Fatalf("record: %+v", store.records)
	}
}

func TestRunNow_NoPreviousSignalCountsAsChanged(t *testing.T) {
	store := &fakeSRStore{}
	var rebuilt bool
	s := newScheduler(&fakeSignals{sig: sigAt("3100")}, store, nil,
		func(ctx context.Context, sig *market.Signal) error {
			rebuilt = true
			return nil
		})

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !rebuilt {
		t.Fatal("missing prior record must force a rebuild")
	}
}

func TestRunNow_StoreReadErrorSkipsDriftCheck(t *testing.T) {
	// The previous signal is unreadable but the midpoint has not moved:
	// a transient store failure must not tear down the ladder.
	store := &fakeSRStore{prevErr: errors.New("connection refused")}
	var rebuilt bool
	s := newScheduler(&fakeSignals{sig: sigAt("3100")}, store, nil,
		func(ctx context.Context, sig *market.Signal) error {
			rebuilt = true
			return nil
		})

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if rebuilt {
		t.Fatal("store read failure must not force a rebuild")
	}
	if len(store.records) != 1 || store.records[0].rebuilt {
		t.Fatalf("record: %+v", store.records)
	}
}

func TestRunNow_PriceOutsideLadder(t *testing.T) {
	// Midpoint unchanged, so only the ladder condition can fire.
	store := &fakeSRStore{prev: sigAt("3100")}
	ladder := testLadder(t, "3100")

	run := func(price string) bool {
		var rebuilt bool
		s := newScheduler(&fakeSignals{sig: sigAt("3100")}, store,
			func() *engine.View {
				return &engine.View{Ladder: ladder, LastPrice: dec(price)}
			},
			func(ctx context.Context, sig *market.Signal) error {
				rebuilt = true
				return nil
			})
		if err := s.RunNow(context.Background()); err != nil {
			t.Fatal(err)
		}
		return rebuilt
	}

	if !run("2700") {
		t.Fatal("price below the ladder span must rebuild")
	}
	if run("3000") {
		t.Fatal("price inside the ladder span must not rebuild")
	}
}

func TestRunNow_SideExhaustion(t *testing.T) {
	store := &fakeSRStore{prev: sigAt("3100")}
	ladder := testLadder(t, "3100")
	for i := range ladder {
		if ladder[i].Side == grid.Buy {
			ladder[i].Filled = true
		}
	}

	var rebuilt bool
	s := newScheduler(&fakeSignals{sig: sigAt("3100")}, store,
		func() *engine.View {
			return &engine.View{Ladder: ladder, LastPrice: dec("3000")}
		},
		func(ctx context.Context, sig *market.Signal) error {
			rebuilt = true
			return nil
		})

	if err := s.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !rebuilt {
		t.Fatal("exhausted buy side must rebuild")
	}
}

func TestRunNow_FetchErrorRecordsNothing(t *testing.T) {
	store := &fakeSRStore{prev: sigAt("3100")}
	s := newScheduler(&fakeSignals{err: market.ErrSignalUnavailable}, store, nil, nil)

	err := s.RunNow(context.Background())
	if !errors.Is(err, market.ErrSignalUnavailable) {
		t.Fatalf("expected signal error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("nothing should be recorded when the fetch fails")
	}
}

func TestStartStop(t *testing.T) {
	store := &fakeSRStore{}
	s := newScheduler(&fakeSignals{sig: sigAt("3100")}, store, nil, nil)

	s.Start()
	if !s.Running() {
		t.Fatal("expected running after Start")
	}
	// Second Start is a no-op.
	s.Start()

	time.Sleep(50 * time.Millisecond)

	s.Stop()
	if s.Running() {
		t.Fatal("expected stopped after Stop")
	}
	// Second Stop is a no-op.
	s.Stop()
}
