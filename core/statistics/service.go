// Package statistics summarizes the ledger for the administration dashboard.
package statistics

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/tuition/core"
)

// DefaultWindow is the reporting window used when no start date is given.
const DefaultWindow = 30 * 24 * time.Hour

type (
	// Ledger sums payments over a date range.
	Ledger interface {
		SumBetween(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) (decimal.Decimal, error)
	}

	Service struct {
		ledger   Ledger
		validate *validator.Validate

		// NowFunc returns the end of the reporting window.
		NowFunc func() time.Time
	}

	PaymentsSumQuery struct {
		DateFrom string `query:"dateFrom" validate:"omitempty,ddmmyyyy"`
	}

	// PaymentsSum compares the payments of a window with the window right before it.
	PaymentsSum struct {
		From          time.Time       `json:"from"`
		To            time.Time       `json:"to"`
		Total         decimal.Decimal `json:"total"`
		PreviousTotal decimal.Decimal `json:"previousTotal"`
		// ChangePercent is nil when the previous window is empty.
		ChangePercent *decimal.Decimal `json:"changePercent"`
	}
)

func NewService(ledger Ledger, validate *validator.Validate) *Service {
	return &Service{
		ledger:   ledger,
		validate: validate,
		NowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// PaymentsSum returns the ledger total of [dateFrom, now] and of the preceding window of equal length.
func (svc *Service) PaymentsSum(ctx context.Context, q PaymentsSumQuery) (PaymentsSum, error) {
	q.DateFrom = core.CleanString(q.DateFrom)
	if err := svc.validate.Struct(q); err != nil {
		return PaymentsSum{}, err
	}

	to := svc.NowFunc()
	from := to.Add(-DefaultWindow)
	if q.DateFrom != "" {
		from, _ = core.ParseDate(q.DateFrom)
	}
	if from.After(to) {
		return PaymentsSum{}, core.NewValidationError(nil, core.FieldError{Field: "dateFrom", Error: "dateFrom cannot be in the future"})
	}
	window := to.Sub(from)

	var current, previous decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		current, err = svc.ledger.SumBetween(gctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		previous, err = svc.ledger.SumBetween(gctx, from.Add(-window), from.Add(-time.Nanosecond))
		return err
	})
	if err := g.Wait(); err != nil {
		return PaymentsSum{}, core.WrapInternal(err, "summing payments")
	}

	sum := PaymentsSum{From: from, To: to, Total: current, PreviousTotal: previous}
	if !previous.IsZero() {
		change := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
		sum.ChangePercent = &change
	}
	return sum, nil
}
