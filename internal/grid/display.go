package grid

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Render draws the ladder as a text box for startup logs, highest price
// first.
func Render(ladder Ladder, center, amountPerLevel decimal.Decimal) string {
	if len(ladder) == 0 {
		return "No grid levels initialized."
	}

	sorted := ladder.Clone()
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Price.GreaterThan(sorted[j].Price)
	})

	var b strings.Builder
	b.WriteString("┌─────────────────────────────────────────────────┐\n")
	b.WriteString("│              GRID LEVELS (USD)               │\n")
	b.WriteString("├─────────────────────────────────────────────────┤\n")

	for _, lv := range sorted {
		tag := "BUY "
		if lv.Side == Sell {
			tag = "SELL"
		}
		status := "[ ]"
		if lv.Filled {
			status = "[X]"
		}
		fmt.Fprintf(&b, "│ %s %s @ %10s │ %15s │\n",
			status, tag, lv.Price.StringFixed(2),
			lv.Quantity.StringFixed(6)+" ETH")
	}

	b.WriteString("├─────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&b, "│  Center: $%8s  │  $%s/level  │\n",
		center.StringFixed(2), amountPerLevel.StringFixed(0))
	b.WriteString("└─────────────────────────────────────────────────┘")

	return b.String()
}
