package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiscountRate(t *testing.T) {
	tests := []struct {
		months int
		want   string
	}{
		{1, "0"},
		{3, "0.05"},
		{6, "0.1"},
		{12, "0.15"},
	}
	for _, tt := range tests {
		rate, err := DiscountRate(tt.months)
		require.NoError(t, err)
		assert.True(t, rate.Equal(dec(tt.want)), "months=%d rate=%s", tt.months, rate)
	}
}

func TestDiscountRate_RejectsUnknownCycle(t *testing.T) {
	for _, months := range []int{0, 2, 4, 24, -1} {
		_, err := DiscountRate(months)
		assert.True(t, errors.Is(err, ErrUnsupportedBillingCycle), "months=%d", months)
		assert.Contains(t, err.Error(), "want one of [1 3 6 12]")
	}
}

func TestSupportedCycles_HaveDiscountTiers(t *testing.T) {
	for _, months := range SupportedCycles() {
		_, err := DiscountRate(months)
		assert.NoError(t, err, "months=%d", months)
	}
}

func TestDiscountedMonthly_MatchesFormula(t *testing.T) {
	rates := map[int]float64{1: 0, 3: 0.05, 6: 0.10, 12: 0.15}
	prices := []float64{0.01, 4, 5.99, 12.5, 24, 48, 64, 96, 192.33, 999.99}

	for months, rate := range rates {
		for _, p := range prices {
			got, err := DiscountedMonthly(decimal.NewFromFloat(p), months)
			require.NoError(t, err)
			want := p * (1 - rate)
			assert.LessOrEqual(t, math.Abs(got.InexactFloat64()-want), 1e-9, "price=%v months=%d", p, months)
		}
	}
}

func TestDiscountedMonthly_Idempotent(t *testing.T) {
	base := dec("33.33")
	first, err := DiscountedMonthly(base, 3)
	require.NoError(t, err)
	second, err := DiscountedMonthly(base, 3)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestNewQuote_TwelveMonthsNoAddons(t *testing.T) {
	q, err := NewQuote(dec("64.00"), 12, Addons{})
	require.NoError(t, err)

	assert.True(t, q.DiscountedMonthly.Equal(dec("54.40")), "got %s", q.DiscountedMonthly)
	assert.True(t, q.TermTotal.Equal(dec("652.80")), "got %s", q.TermTotal)
	assert.Equal(t, int64(65280), q.TermTotalCents)
	assert.Equal(t, int64(5440), q.MonthlyTotalCents())
}

func TestNewQuote_AddonsAreNotDiscounted(t *testing.T) {
	q, err := NewQuote(dec("20.00"), 6, Addons{Plesk: true, LiteSpeed: true, ExtraIPv4: true})
	require.NoError(t, err)

	assert.True(t, q.DiscountedMonthly.Equal(dec("18.00")))
	assert.True(t, q.AddonsMonthly.Equal(dec("17")))
	assert.True(t, q.MonthlyTotal.Equal(dec("35.00")))
	assert.True(t, q.TermTotal.Equal(dec("210.00")))
	assert.Equal(t, int64(21000), q.TermTotalCents)
}

func TestNewQuote_CentStability(t *testing.T) {
	tests := []struct {
		base      string
		months    int
		addons    Addons
		wantCents int64
	}{
		{"5.99", 3, Addons{}, 1707},                    // 5.6905 * 3 = 17.0715
		{"12.00", 3, Addons{}, 3420},                   // 11.40 * 3
		{"7.77", 3, Addons{Plesk: true}, 3714},         // (7.3815 + 5) * 3 = 37.1445
		{"48.00", 6, Addons{}, 25920},                  // 43.20 * 6
		{"96.00", 12, Addons{ExtraIPv4: true}, 100320}, // (81.60 + 2) * 12
		{"4.00", 1, Addons{LiteSpeed: true}, 1400},     // 4 + 10
	}
	for _, tt := range tests {
		q, err := NewQuote(dec(tt.base), tt.months, tt.addons)
		require.NoError(t, err)
		assert.Equal(t, tt.wantCents, q.TermTotalCents, "base=%s months=%d", tt.base, tt.months)
	}
}

func TestNewQuote_Errors(t *testing.T) {
	_, err := NewQuote(dec("10"), 5, Addons{})
	assert.ErrorIs(t, err, ErrUnsupportedBillingCycle)

	_, err = NewQuote(dec("-1"), 1, Addons{})
	assert.Error(t, err)
}

func TestCentsRoundTrip(t *testing.T) {
	assert.Equal(t, int64(1001), ToCents(dec("10.005")))
	assert.Equal(t, int64(1000), ToCents(dec("10.004")))
	assert.True(t, FromCents(65280).Equal(dec("652.80")))
	assert.True(t, FromFloat(64.0).Equal(dec("64")))
}
