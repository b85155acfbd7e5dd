package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeRate(t *testing.T) {
	tests := []struct {
		name         string
		prices       []decimal.Decimal
		discount     decimal.Decimal
		wantGross    string
		wantDiscount string
		wantNet      string
		wantBillable bool
	}{
		{
			name:      "single group with discount",
			prices:    []decimal.Decimal{dec("500000")},
			discount:  dec("10"),
			wantGross: "500000", wantDiscount: "50000", wantNet: "450000",
			wantBillable: true,
		},
		{
			name:      "multiple groups add up",
			prices:    []decimal.Decimal{dec("300000"), dec("250000.50")},
			discount:  decimal.Zero,
			wantGross: "550000.5", wantDiscount: "0", wantNet: "550000.5",
			wantBillable: true,
		},
		{
			name:      "fractional discount keeps full precision",
			prices:    []decimal.Decimal{dec("100")},
			discount:  dec("33.333"),
			wantGross: "100", wantDiscount: "33.333", wantNet: "66.667",
			wantBillable: true,
		},
		{
			name:      "full discount",
			prices:    []decimal.Decimal{dec("400000")},
			discount:  dec("100"),
			wantGross: "400000", wantDiscount: "400000", wantNet: "0",
			wantBillable: true,
		},
		{
			name:      "zero priced groups",
			prices:    []decimal.Decimal{decimal.Zero, decimal.Zero},
			discount:  dec("10"),
			wantGross: "0", wantDiscount: "0", wantNet: "0",
		},
		{
			name:      "no groups",
			discount:  dec("10"),
			wantGross: "0", wantDiscount: "0", wantNet: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRate(tt.prices, tt.discount)
			assert.True(t, got.Gross.Equal(dec(tt.wantGross)), "gross = %s", got.Gross)
			assert.True(t, got.Discount.Equal(dec(tt.wantDiscount)), "discount = %s", got.Discount)
			assert.True(t, got.Net.Equal(dec(tt.wantNet)), "net = %s", got.Net)
			assert.Equal(t, tt.wantBillable, got.Billable())
		})
	}
}
