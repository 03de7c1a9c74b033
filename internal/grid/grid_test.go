package grid

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuild(t *testing.T) {
	ladder, err := Build(Params{
		Center:         dec("3050"),
		Levels:         10,
		SpacingPercent: dec("2"),
		AmountPerLevel: dec("100"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(ladder) != 10 {
		t.Fatalf("expected 10 levels, got %d", len(ladder))
	}

	for i := 1; i < len(ladder); i++ {
		if !ladder[i-1].Price.LessThan(ladder[i].Price) {
			t.Fatalf("not sorted ascending at index %d: %s >= %s",
				i, ladder[i-1].Price, ladder[i].Price)
		}
	}
	for i, lv := range ladder {
		if lv.Index != i {
			t.Fatalf("index mismatch at %d: got %d", i, lv.Index)
		}
		if lv.Filled {
			t.Fatal("new levels must start unfilled")
		}
		// quantity = amountPerLevel / price
		want := dec("100").Div(lv.Price)
		if !lv.Quantity.Equal(want) {
			t.Fatalf("level %d quantity %s, want %s", i, lv.Quantity, want)
		}
	}

	buys, sells := 0, 0
	center := dec("3050")
	for _, lv := range ladder {
		switch lv.Side {
		case Buy:
			buys++
			if !lv.Price.LessThan(center) {
				t.Fatalf("buy level %s not below center", lv.Price)
			}
		case Sell:
			sells++
			if !lv.Price.GreaterThan(center) {
				t.Fatalf("sell level %s not above center", lv.Price)
			}
		}
	}
	if buys != 5 || sells != 5 {
		t.Fatalf("expected 5 buys + 5 sells, got %d + %d", buys, sells)
	}

	// Geometric compounding: edges sit at center*(1.02)^±5.
	lo, hi, _ := ladder.Span()
	if lo.LessThan(dec("2760")) || lo.GreaterThan(dec("2768")) {
		t.Fatalf("lowest level %s outside expected window", lo)
	}
	if hi.LessThan(dec("3365")) || hi.GreaterThan(dec("3370")) {
		t.Fatalf("highest level %s outside expected window", hi)
	}

	for _, lv := range ladder {
		t.Logf("  [%d] %s @ $%s  qty=%s ETH",
			lv.Index, lv.Side, lv.Price.StringFixed(2), lv.Quantity.StringFixed(6))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := Params{
		Center:         dec("2700"),
		Levels:         8,
		SpacingPercent: dec("1.5"),
		AmountPerLevel: dec("50"),
	}
	a, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || !a[i].Quantity.Equal(b[i].Quantity) {
			t.Fatalf("build is not deterministic at index %d", i)
		}
	}
}

func TestBuild_OddCount(t *testing.T) {
	ladder, err := Build(Params{
		Center:         dec("2000"),
		Levels:         7,
		SpacingPercent: dec("3"),
		AmountPerLevel: dec("50"),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Odd N keeps the i=0 level, classified as sell.
	if len(ladder) != 7 {
		t.Fatalf("expected 7 levels, got %d", len(ladder))
	}
	buys := 0
	for _, lv := range ladder {
		if lv.Side == Buy {
			buys++
		}
	}
	if buys != 3 {
		t.Fatalf("expected 3 buy levels for odd count, got %d", buys)
	}
}

func TestBuild_Validation(t *testing.T) {
	cases := []Params{
		{Center: dec("-1"), Levels: 10, SpacingPercent: dec("2"), AmountPerLevel: dec("100")},
		{Center: decimal.Zero, Levels: 10, SpacingPercent: dec("2"), AmountPerLevel: dec("100")},
		{Center: dec("2700"), Levels: 1, SpacingPercent: dec("2"), AmountPerLevel: dec("100")},
		{Center: dec("2700"), Levels: 10, SpacingPercent: decimal.Zero, AmountPerLevel: dec("100")},
		{Center: dec("2700"), Levels: 10, SpacingPercent: dec("2"), AmountPerLevel: dec("-5")},
	}
	for i, c := range cases {
		_, err := Build(c)
		if err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func testLadder() Ladder {
	return Ladder{
		{Index: 0, Price: dec("2550"), Side: Buy},
		{Index: 1, Price: dec("2600"), Side: Buy},
		{Index: 2, Price: dec("2700"), Side: Sell},
		{Index: 3, Price: dec("2750"), Side: Sell},
	}
}

func TestFindTriggered(t *testing.T) {
	ladder := testLadder()

	cases := []struct {
		price string
		want  int // -1 for no trigger
	}{
		{"2540", 0}, // below both buys: nearest (lowest index) wins
		{"2590", 1}, // between the buys
		{"2650", -1},
		{"2710", 2}, // above first sell
		{"2800", 2}, // above both sells: lowest-price sell still wins
	}
	for _, c := range cases {
		got := FindTriggered(dec(c.price), ladder)
		if c.want == -1 {
			if got != nil {
				t.Fatalf("price %s: expected no trigger, got index %d", c.price, got.Index)
			}
			continue
		}
		if got == nil {
			t.Fatalf("price %s: expected trigger at index %d, got none", c.price, c.want)
		}
		if got.Index != c.want {
			t.Fatalf("price %s: expected index %d, got %d", c.price, c.want, got.Index)
		}
	}
}

func TestFindTriggered_Idempotent(t *testing.T) {
	ladder := testLadder()
	price := dec("2540")

	first := FindTriggered(price, ladder)
	second := FindTriggered(price, ladder)
	if first == nil || second == nil || first.Index != second.Index {
		t.Fatal("repeated scans on an unchanged ladder must return the same level")
	}

	// Marking the level filled retires it; the scan moves on.
	ladder[first.Index].Filled = true
	third := FindTriggered(price, ladder)
	if third == nil || third.Index != 1 {
		t.Fatalf("expected next buy (index 1) after fill, got %v", third)
	}
}

func TestFindTriggered_SkipsFilled(t *testing.T) {
	ladder := testLadder()
	ladder[2].Filled = true
	got := FindTriggered(dec("2800"), ladder)
	if got == nil || got.Index != 3 {
		t.Fatalf("expected sell at index 3, got %v", got)
	}
}

func TestOppositeIndex(t *testing.T) {
	ladder := testLadder()

	idx, ok := OppositeIndex(ladder[1], len(ladder))
	if !ok || idx != 2 {
		t.Fatalf("buy at 1: expected opposite 2, got %d ok=%v", idx, ok)
	}

	idx, ok = OppositeIndex(ladder[2], len(ladder))
	if !ok || idx != 1 {
		t.Fatalf("sell at 2: expected opposite 1, got %d ok=%v", idx, ok)
	}

	// Topmost sell has no level above it; nothing resets.
	if _, ok := OppositeIndex(Level{Index: 3, Side: Buy}, 4); ok {
		t.Fatal("buy at topmost index must be out of bounds")
	}
	if _, ok := OppositeIndex(Level{Index: 0, Side: Sell}, 4); ok {
		t.Fatal("sell at bottom index must be out of bounds")
	}
}

func TestStatsAndPredicates(t *testing.T) {
	ladder := testLadder()
	ladder[0].Filled = true
	ladder[1].Filled = true

	s := ladder.Stats()
	if s.FilledBuys != 2 || s.PendingBuys != 0 || s.FilledSells != 0 || s.PendingSells != 2 {
		t.Fatalf("unexpected stats: %+v", s)
	}

	if !ladder.AllFilled(Buy) {
		t.Fatal("all buys are filled")
	}
	if ladder.AllFilled(Sell) {
		t.Fatal("no sell is filled")
	}
	if Ladder(nil).AllFilled(Buy) {
		t.Fatal("empty ladder must not count as exhausted")
	}

	if ladder.Outside(dec("2600")) {
		t.Fatal("2600 is inside the span")
	}
	if !ladder.Outside(dec("2500")) || !ladder.Outside(dec("2800")) {
		t.Fatal("prices beyond the edges are outside")
	}
	// Boundary prices are not strictly outside.
	if ladder.Outside(dec("2550")) || ladder.Outside(dec("2750")) {
		t.Fatal("edge prices are not outside")
	}
}

func TestLevelJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	ref := "0xabc"
	lv := Level{
		Index:        3,
		Price:        dec("2762.478964"),
		Side:         Buy,
		Quantity:     dec("0.036199262"),
		Filled:       true,
		FilledAt:     &now,
		ExecutionRef: &ref,
	}

	b, err := json.Marshal(lv)
	if err != nil {
		t.Fatal(err)
	}

	var back Level
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Price.Equal(lv.Price) || !back.Quantity.Equal(lv.Quantity) {
		t.Fatalf("decimal drift across round trip: %s / %s", back.Price, back.Quantity)
	}
	if back.Side != Buy || !back.Filled || back.ExecutionRef == nil || *back.ExecutionRef != ref {
		t.Fatalf("field mismatch after round trip: %+v", back)
	}
}
