// Package money provides fixed-point types for USD and basis-point
// arithmetic used in fee and gas accounting. Integer cents avoid the
// float drift that matters when converting flat USD fees into pips.
package money

import "fmt"

// USD represents US dollars in cents (fixed-point, 2 decimals)
type USD int64

// BPS represents basis points (1 BPS = 0.01%)
type BPS int64

// NewUSD creates USD from a dollar amount
func NewUSD(dollars float64) USD {
	return USD(dollars*100 + 0.5)
}

// NewUSDFromCents creates USD from cents
func NewUSDFromCents(cents int64) USD {
	return USD(cents)
}

// Zero returns zero USD
func Zero() USD {
	return USD(0)
}

// Add returns a + b
func (a USD) Add(b USD) USD {
	return a + b
}

// Sub returns a - b
func (a USD) Sub(b USD) USD {
	return a - b
}

// MulFloat returns a scaled by f
func (a USD) MulFloat(f float64) USD {
	return USD(float64(a)*f + 0.5)
}

// MulBPS applies a basis-point fraction
func (a USD) MulBPS(bps BPS) USD {
	return USD(int64(a) * int64(bps) / 10000)
}

// IsZero reports whether the amount is zero
func (a USD) IsZero() bool {
	return a == 0
}

// IsPositive reports whether the amount is positive
func (a USD) IsPositive() bool {
	return a > 0
}

// Float64 returns the amount in dollars
func (a USD) Float64() float64 {
	return float64(a) / 100
}

// Cents returns the raw cent value
func (a USD) Cents() int64 {
	return int64(a)
}

func (a USD) String() string {
	return fmt.Sprintf("$%d.%02d", a/100, abs64(int64(a)%100))
}

// NewBPS creates BPS from a percentage (0.3 => 30 BPS)
func NewBPS(percent float64) BPS {
	return BPS(percent*100 + 0.5)
}

// NewBPSFromInt creates BPS from an integer basis-point value
func NewBPSFromInt(bps int64) BPS {
	return BPS(bps)
}

// Float64 returns the fraction this BPS represents (30 BPS => 0.003)
func (b BPS) Float64() float64 {
	return float64(b) / 10000
}

// Int64 returns the raw basis-point value
func (b BPS) Int64() int64 {
	return int64(b)
}

func (b BPS) String() string {
	return fmt.Sprintf("%dbps", int64(b))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
