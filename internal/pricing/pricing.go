// Package pricing computes VPS lease prices from a package's base monthly
// price, the billing cycle length and the selected add-ons.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedBillingCycle = errors.New("unsupported billing cycle")

// discount tiers keyed by billing cycle length in months
var discountRates = map[int]decimal.Decimal{
	1:  decimal.Zero,
	3:  decimal.RequireFromString("0.05"),
	6:  decimal.RequireFromString("0.10"),
	12: decimal.RequireFromString("0.15"),
}

// Monthly add-on prices, never discounted.
var (
	PleskMonthly     = decimal.NewFromInt(5)
	LiteSpeedMonthly = decimal.NewFromInt(10)
	ExtraIPv4Monthly = decimal.NewFromInt(2)
)

var hundred = decimal.NewFromInt(100)

// Addons are the optional paid features attached to a lease.
type Addons struct {
	Plesk     bool `json:"plesk"`
	LiteSpeed bool `json:"litespeed"`
	ExtraIPv4 bool `json:"extra_ipv4"`
}

// Quote is the full price breakdown for one lease term.
type Quote struct {
	BillingCycleMonths int
	BaseMonthly        decimal.Decimal
	DiscountRate       decimal.Decimal
	DiscountedMonthly  decimal.Decimal
	AddonsMonthly      decimal.Decimal
	MonthlyTotal       decimal.Decimal
	TermTotal          decimal.Decimal
	TermTotalCents     int64
}

// SupportedCycles returns the accepted billing cycle lengths in ascending order.
func SupportedCycles() []int {
	return []int{1, 3, 6, 12}
}

// DiscountRate returns the discount fraction for a billing cycle length.
func DiscountRate(months int) (decimal.Decimal, error) {
	rate, ok := discountRates[months]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %d months, want one of %v", ErrUnsupportedBillingCycle, months, SupportedCycles())
	}
	return rate, nil
}

// DiscountedMonthly returns base * (1 - rate), still a per-month price.
func DiscountedMonthly(baseMonthly decimal.Decimal, months int) (decimal.Decimal, error) {
	rate, err := DiscountRate(months)
	if err != nil {
		return decimal.Zero, err
	}
	return baseMonthly.Mul(decimal.NewFromInt(1).Sub(rate)), nil
}

// AddonsMonthly sums the monthly price of the selected add-ons.
func AddonsMonthly(a Addons) decimal.Decimal {
	total := decimal.Zero
	if a.Plesk {
		total = total.Add(PleskMonthly)
	}
	if a.LiteSpeed {
		total = total.Add(LiteSpeedMonthly)
	}
	if a.ExtraIPv4 {
		total = total.Add(ExtraIPv4Monthly)
	}
	return total
}

// NewQuote prices a full term: (discounted monthly + add-ons) * months.
func NewQuote(baseMonthly decimal.Decimal, months int, addons Addons) (*Quote, error) {
	if baseMonthly.IsNegative() {
		return nil, fmt.Errorf("base price must not be negative: %s", baseMonthly)
	}

	rate, err := DiscountRate(months)
	if err != nil {
		return nil, err
	}
	discounted, err := DiscountedMonthly(baseMonthly, months)
	if err != nil {
		return nil, err
	}

	addonsMonthly := AddonsMonthly(addons)
	monthly := discounted.Add(addonsMonthly)
	term := monthly.Mul(decimal.NewFromInt(int64(months)))

	return &Quote{
		BillingCycleMonths: months,
		BaseMonthly:        baseMonthly,
		DiscountRate:       rate,
		DiscountedMonthly:  discounted,
		AddonsMonthly:      addonsMonthly,
		MonthlyTotal:       monthly,
		TermTotal:          term,
		TermTotalCents:     ToCents(term),
	}, nil
}

// MonthlyTotalCents is the per-cycle charge in cents.
func (q *Quote) MonthlyTotalCents() int64 {
	return ToCents(q.MonthlyTotal)
}

// ToCents converts a currency amount to integer cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer cents back to a currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FromFloat converts a provider-reported float price, keeping cent precision.
func FromFloat(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(2)
}
