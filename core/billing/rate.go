package billing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rate is a student's monthly tuition.
type Rate struct {
	Gross    decimal.Decimal // sum of the group prices
	Discount decimal.Decimal // gross * discount% / 100
	Net      decimal.Decimal // expected monthly payment
}

// ComputeRate sums the monthly group prices and applies the percentage discount. No rounding happens here.
func ComputeRate(prices []decimal.Decimal, discountPercent decimal.Decimal) Rate {
	gross := decimal.Zero
	for _, p := range prices {
		gross = gross.Add(p)
	}
	discount := gross.Mul(discountPercent).Div(hundred)
	return Rate{
		Gross:    gross,
		Discount: discount,
		Net:      gross.Sub(discount),
	}
}

// Billable reports whether the rate can produce any debt: a zero-rate plan never does.
func (r Rate) Billable() bool {
	return !r.Gross.IsZero()
}
