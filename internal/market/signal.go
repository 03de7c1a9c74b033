package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable wraps any failure of the spot price source.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrSignalUnavailable wraps any failure of the S/R analytics source.
	ErrSignalUnavailable = errors.New("support/resistance signal unavailable")
)

// Signal is one support/resistance observation from the upstream analytics
// source (or the synthetic fallback).
type Signal struct {
	Support      decimal.Decimal `json:"support"`
	Resistance   decimal.Decimal `json:"resistance"`
	Midpoint     decimal.Decimal `json:"midpoint"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	Method       string          `json:"method"`
	LookbackDays int             `json:"lookbackDays"`
	FetchedAt    time.Time       `json:"fetchedAt"`
}

// Midpoint derives the center of an S/R range, rejecting inverted ranges.
func Midpoint(support, resistance decimal.Decimal) (decimal.Decimal, error) {
	if support.GreaterThanOrEqual(resistance) {
		return decimal.Zero, fmt.Errorf("invalid S/R: support (%s) >= resistance (%s)",
			support.StringFixed(2), resistance.StringFixed(2))
	}
	return support.Add(resistance).Div(decimal.NewFromInt(2)), nil
}

// Fallback builds a synthetic signal around the last known price when the
// analytics source is unreachable: support at -10%, resistance at +10%,
// midpoint at the price itself.
func Fallback(price decimal.Decimal) Signal {
	return Signal{
		Support:    price.Mul(decimal.RequireFromString("0.9")),
		Resistance: price.Mul(decimal.RequireFromString("1.1")),
		Midpoint:   price,
		AvgPrice:   price,
		Method:     "fallback",
		FetchedAt:  time.Now(),
	}
}

// ChangePercent is the absolute percentage move of a midpoint against a
// previous one. A zero previous midpoint counts as a full change.
func ChangePercent(newMid, oldMid decimal.Decimal) decimal.Decimal {
	if oldMid.IsZero() {
		return decimal.NewFromInt(100)
	}
	return newMid.Sub(oldMid).Div(oldMid).Mul(decimal.NewFromInt(100)).Abs()
}
