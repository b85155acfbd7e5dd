package billing

import "github.com/shopspring/decimal"

// Tagged is a payment amount with its optional billing period tag.
type Tagged struct {
	StudentID string
	Month     Month // 0 when untagged
	Year      int   // 0 when untagged
	Amount    decimal.Decimal
}

// Period returns the period the amount is credited to. Only fully tagged amounts have one.
func (t Tagged) Period() (Period, bool) {
	if !t.Month.Valid() || t.Year == 0 {
		return Period{}, false
	}
	return Period{Year: t.Year, Month: t.Month}, true
}

// Paid maps billing periods to the amount credited to them.
type Paid map[Period]decimal.Decimal

// For returns the amount credited to p (zero when nothing was).
func (p Paid) For(period Period) decimal.Decimal {
	if amount, ok := p[period]; ok {
		return amount
	}
	return decimal.Zero
}

// AggregateByPeriod sums the tagged amounts per period. Untagged amounts are ignored:
// they count toward the balance but never clear a specific month.
func AggregateByPeriod(entries []Tagged) Paid {
	paid := make(Paid)
	for _, e := range entries {
		if period, ok := e.Period(); ok {
			paid[period] = paid.For(period).Add(e.Amount)
		}
	}
	return paid
}

// AggregateByStudent is AggregateByPeriod keyed by student.
func AggregateByStudent(entries []Tagged) map[string]Paid {
	byStudent := make(map[string]Paid)
	for _, e := range entries {
		period, ok := e.Period()
		if !ok {
			continue
		}
		paid, ok := byStudent[e.StudentID]
		if !ok {
			paid = make(Paid)
			byStudent[e.StudentID] = paid
		}
		paid[period] = paid.For(period).Add(e.Amount)
	}
	return byStudent
}
