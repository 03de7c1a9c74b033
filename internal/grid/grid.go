package grid

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is returned by Build when the ladder parameters are
// unusable. This is the only fatal error in the trading core.
var ErrInvalidConfig = errors.New("invalid grid configuration")

// Side is the direction of a grid level.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

func ParseSide(v string) (Side, error) {
	switch v {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", v)
}

func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("side must be a JSON string, got %s", b)
	}
	parsed, err := ParseSide(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Level is one price point in the ladder. Price and Quantity are fixed at
// build time; only the fill fields mutate afterwards.
type Level struct {
	Index        int             `json:"index"`
	Price        decimal.Decimal `json:"price"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Filled       bool            `json:"filled"`
	FilledAt     *time.Time      `json:"filledAt,omitempty"`
	ExecutionRef *string         `json:"executionRef,omitempty"`
}

// Ladder is the ordered set of active grid levels, ascending by price and
// indexed 0..N-1.
type Ladder []Level

// Params are the inputs to Build.
type Params struct {
	Center         decimal.Decimal
	Levels         int
	SpacingPercent decimal.Decimal
	AmountPerLevel decimal.Decimal
}

var (
	one        = decimal.NewFromInt(1)
	oneHundred = decimal.NewFromInt(100)
)

// Build constructs a fresh ladder around a center price with geometric
// spacing: level i sits at center*(1+spacing/100)^i for offsets
// -floor(N/2)..+floor(N/2), skipping offset 0 when N is even. Buy levels
// sit below the center, sell levels above. Pure and deterministic.
func Build(p Params) (Ladder, error) {
	if p.Center.Sign() <= 0 {
		return nil, fmt.Errorf("%w: center price must be positive", ErrInvalidConfig)
	}
	if p.Levels < 2 {
		return nil, fmt.Errorf("%w: level count must be at least 2", ErrInvalidConfig)
	}
	if p.SpacingPercent.Sign() <= 0 {
		return nil, fmt.Errorf("%w: spacing percent must be positive", ErrInvalidConfig)
	}
	if p.AmountPerLevel.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount per level must be positive", ErrInvalidConfig)
	}

	step := one.Add(p.SpacingPercent.Div(oneHundred))
	half := p.Levels / 2
	even := p.Levels%2 == 0

	ladder := make(Ladder, 0, p.Levels)
	for i := -half; i <= half; i++ {
		if i == 0 && even {
			continue
		}

		mult, err := step.PowInt32(int32(i))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		price := p.Center.Mul(mult)

		side := Sell
		if i < 0 {
			side = Buy
		}

		ladder = append(ladder, Level{
			Price:    price,
			Side:     side,
			Quantity: p.AmountPerLevel.Div(price),
		})
	}

	sort.Slice(ladder, func(i, j int) bool {
		return ladder[i].Price.LessThan(ladder[j].Price)
	})
	for i := range ladder {
		ladder[i].Index = i
	}
	return ladder, nil
}

// FindTriggered scans levels in index order (ascending price) and returns
// the first unfilled level crossed by the current price, or nil. The
// ascending scan is a deliberate tie-break: during a fast move through
// several levels only the nearest one fires per call.
func FindTriggered(price decimal.Decimal, ladder Ladder) *Level {
	for i := range ladder {
		if ladder[i].Filled {
			continue
		}
		if ladder[i].Side == Buy && price.LessThanOrEqual(ladder[i].Price) {
			return &ladder[i]
		}
		if ladder[i].Side == Sell && price.GreaterThanOrEqual(ladder[i].Price) {
			return &ladder[i]
		}
	}
	return nil
}

// OppositeIndex returns the index of the adjacent level on the other side
// of a just-filled level (index+1 after a buy, index-1 after a sell). The
// second return is false when the adjacent index falls outside the ladder.
func OppositeIndex(filled Level, size int) (int, bool) {
	idx := filled.Index - 1
	if filled.Side == Buy {
		idx = filled.Index + 1
	}
	if idx < 0 || idx >= size {
		return 0, false
	}
	return idx, true
}

// Stats summarizes fill state by side.
type Stats struct {
	Levels       int              `json:"levels"`
	Lowest       *decimal.Decimal `json:"lowestPrice"`
	Highest      *decimal.Decimal `json:"highestPrice"`
	FilledLevels int              `json:"filledLevels"`
	PendingBuys  int              `json:"pendingBuys"`
	PendingSells int              `json:"pendingSells"`
	FilledBuys   int              `json:"filledBuys"`
	FilledSells  int              `json:"filledSells"`
}

func (l Ladder) Stats() Stats {
	if len(l) == 0 {
		return Stats{}
	}
	s := Stats{Levels: len(l)}
	lo := l[0].Price
	hi := l[len(l)-1].Price
	s.Lowest = &lo
	s.Highest = &hi

	for _, lv := range l {
		switch {
		case lv.Side == Buy && lv.Filled:
			s.FilledBuys++
			s.FilledLevels++
		case lv.Side == Buy:
			s.PendingBuys++
		case lv.Filled:
			s.FilledSells++
			s.FilledLevels++
		default:
			s.PendingSells++
		}
	}
	return s
}

// Span returns the lowest and highest level prices. ok is false for an
// empty ladder.
func (l Ladder) Span() (lo, hi decimal.Decimal, ok bool) {
	if len(l) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	lo, hi = l[0].Price, l[0].Price
	for _, lv := range l[1:] {
		if lv.Price.LessThan(lo) {
			lo = lv.Price
		}
		if lv.Price.GreaterThan(hi) {
			hi = lv.Price
		}
	}
	return lo, hi, true
}

// Outside reports whether a price sits strictly below the lowest or
// strictly above the highest level. An empty ladder counts as outside.
func (l Ladder) Outside(price decimal.Decimal) bool {
	lo, hi, ok := l.Span()
	if !ok {
		return true
	}
	return price.LessThan(lo) || price.GreaterThan(hi)
}

// AllFilled reports whether every level on the given side is filled.
// A ladder with no levels on that side reports false.
func (l Ladder) AllFilled(side Side) bool {
	total, filled := 0, 0
	for _, lv := range l {
		if lv.Side != side {
			continue
		}
		total++
		if lv.Filled {
			filled++
		}
	}
	return total > 0 && filled == total
}

// Clone returns a deep enough copy for read-only consumers; levels are
// value types so a slice copy suffices.
func (l Ladder) Clone() Ladder {
	if l == nil {
		return nil
	}
	out := make(Ladder, len(l))
	copy(out, l)
	return out
}
