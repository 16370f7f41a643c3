package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Ticks is a fixed-point dollar amount: 1 dollar = 1e6 ticks. All price and
// size arithmetic in the decision path is integer arithmetic on Ticks so the
// "< $1.00" comparison never suffers binary-float rounding.
type Ticks int64

// Dollar is the settlement value of a winning outcome token, in ticks.
const Dollar Ticks = 1_000_000

// TicksFromFloat converts a display dollar amount to ticks, rounding to the
// nearest tick.
func TicksFromFloat(v float64) Ticks {
	return Ticks(math.Round(v * 1e6))
}

// Float returns the display dollar value.
func (t Ticks) Float() float64 {
	return float64(t) / 1e6
}

// String formats the amount as a dollar string with four decimals.
func (t Ticks) String() string {
	return fmt.Sprintf("%.4f", t.Float())
}

// ParseTicks parses a decimal price string (as returned by the CLOB price
// endpoints, e.g. "0.47") into ticks.
func ParseTicks(s string) (Ticks, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: parse price %q: %w", s, err)
	}
	return TicksFromFloat(f), nil
}
