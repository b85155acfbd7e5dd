// Package debtor reconstructs, from the ledger and the student directory, which billing months every
// student has left unpaid. Nothing is stored: each report is derived from the current ledger.
package debtor

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/student"
)

type (
	// Ledger is the read side of the payment ledger the engine needs.
	Ledger interface {
		PeriodCredits(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]billing.Tagged, error)
		Balances(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) (map[string]decimal.Decimal, error)
	}

	Options struct {
		// StartDate is the billing cutover: no month before it is ever billed. Zero disables clipping.
		StartDate time.Time
		// Threshold is the materiality threshold: only debts above it count.
		Threshold decimal.Decimal
	}

	Service struct {
		dir      student.Directory
		ledger   Ledger
		opts     Options
		validate *validator.Validate

		// NowFunc returns the reference time of the reconstruction.
		NowFunc func() time.Time
	}
)

func NewService(dir student.Directory, ledger Ledger, opts Options, validate *validator.Validate) *Service {
	return &Service{
		dir:      dir,
		ledger:   ledger,
		opts:     opts,
		validate: validate,
		NowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// candidate is a student that can owe tuition.
type candidate struct {
	student.Student
	rate  billing.Rate
	start time.Time // effective start
}

func (svc *Service) candidate(s student.Student) (candidate, bool) {
	if !s.IsActive() || len(s.Groups) == 0 {
		return candidate{}, false
	}
	rate := billing.ComputeRate(s.Prices(), s.DiscountPercent)
	if !rate.Billable() {
		return candidate{}, false
	}
	return candidate{
		Student: s,
		rate:    rate,
		start:   billing.EffectiveStart(s.StartDate(), svc.opts.StartDate),
	}, true
}

// ledgerState loads the period credits & balances of the students concurrently.
func (svc *Service) ledgerState(ctx context.Context, studentIDs []string) (map[string]billing.Paid, map[string]decimal.Decimal, error) {
	var (
		credits  []billing.Tagged
		balances map[string]decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		credits, err = svc.ledger.PeriodCredits(gctx, studentIDs)
		return err
	})
	g.Go(func() (err error) {
		balances, err = svc.ledger.Balances(gctx, studentIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return billing.AggregateByStudent(credits), balances, nil
}

// FindDebtors reports the active students owing more than the threshold, biggest debt first.
func (svc *Service) FindDebtors(ctx context.Context, filter Filter) (Result, error) {
	if err := filter.Validate(svc.validate); err != nil {
		return Result{}, err
	}

	students, err := svc.dir.QueryStudents(ctx, filter.directoryFilter())
	if err != nil {
		return Result{}, core.WrapInternal(err, "querying students")
	}

	now := svc.NowFunc()
	period, single := filter.Period()

	candidates := make([]candidate, 0, len(students))
	for _, s := range students {
		c, ok := svc.candidate(s)
		if !ok {
			continue
		}
		if single && period.Before(billing.PeriodOf(c.start)) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return Result{Data: []Debtor{}}, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	paid, balances, err := svc.ledgerState(ctx, ids)
	if err != nil {
		return Result{}, core.WrapInternal(err, "loading ledger")
	}

	debtors := make([]Debtor, 0)
	for _, c := range candidates {
		var d Debtor
		if single {
			d = svc.reconstruct(c, paid[c.ID], balances[c.ID], now, period)
		} else {
			d = svc.reconstruct(c, paid[c.ID], balances[c.ID], now)
		}
		if d.debt.GreaterThan(svc.opts.Threshold) {
			debtors = append(debtors, d)
		}
	}

	sort.SliceStable(debtors, func(i, j int) bool {
		if c := debtors[i].debt.Cmp(debtors[j].debt); c != 0 {
			return c > 0
		}
		if debtors[i].Code != debtors[j].Code {
			return debtors[i].Code < debtors[j].Code
		}
		return debtors[i].ID < debtors[j].ID
	})

	start, end := filter.PageRequest().Bounds(len(debtors))
	return Result{Data: debtors[start:end], Total: len(debtors)}, nil
}

// FindOneDebtorDetails reconstructs a single student's debt over every elapsed month.
// A student that owes nothing gets the zero-debt shape.
func (svc *Service) FindOneDebtorDetails(ctx context.Context, studentID string) (Debtor, error) {
	s, err := svc.dir.GetStudent(ctx, core.CleanString(studentID, true /* lower */))
	if err != nil {
		return Debtor{}, core.WrapInternal(err, "getting student")
	}

	paid, balances, err := svc.ledgerState(ctx, []string{s.ID})
	if err != nil {
		return Debtor{}, core.WrapInternal(err, "loading ledger")
	}

	c, ok := svc.candidate(s)
	if !ok {
		return zeroDebt(s, balances[s.ID]), nil
	}
	return svc.reconstruct(c, paid[s.ID], balances[s.ID], svc.NowFunc()), nil
}

// reconstruct compares the expected payment of every elapsed period (or only of `only`) to what was
// credited to it. Only periods owing more than the threshold are reported.
func (svc *Service) reconstruct(c candidate, paid billing.Paid, balance decimal.Decimal, now time.Time, only ...billing.Period) Debtor {
	periods := only
	if len(periods) == 0 {
		periods = billing.GeneratePeriods(c.start, now)
	}

	net := c.rate.Net
	breakdown := groupBreakdown(c.Student)
	d := Debtor{
		Student:                   c.Student,
		MonthlyRateBeforeDiscount: c.rate.Gross.Round(2),
		MonthlyExpectedPayment:    net.Round(2),
		MonthlyDiscountAmount:     c.rate.Discount.Round(2),
		TotalPaid:                 balance,
		MonthsActive:              billing.MonthsActive(c.start, now),
		DebtorMonths:              []Month{},
		GroupDetails:              groupDetails(c.Student),
		TotalDebt:                 decimal.Zero,
		debt:                      decimal.Zero,
	}

	for _, p := range periods {
		credited := paid.For(p)
		debt := net.Sub(credited)
		if !debt.GreaterThan(svc.opts.Threshold) {
			continue
		}
		d.debt = d.debt.Add(debt)
		d.TotalDebt = d.TotalDebt.Add(debt.Round(2))
		d.DebtorMonths = append(d.DebtorMonths, Month{
			Month:           p.Name(),
			Year:            p.Year,
			ExpectedPayment: net.StringFixed(2),
			PaidAmount:      credited.StringFixed(2),
			DebtAmount:      debt.StringFixed(2),
			GroupBreakdown:  breakdown,
		})
	}
	return d
}
