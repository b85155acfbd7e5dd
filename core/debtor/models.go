package debtor

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/student"
)

// Pagination defaults
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var errMonthYearPair = errors.New("filterByMonth and filterByYear must be provided together")

// Filter selects the students of the debtor report. Month & Year restrict it to a single billing period.
type Filter struct {
	Month       billing.Month `query:"filterByMonth" validate:"omitempty,min=1,max=12"`
	Year        int           `query:"filterByYear" validate:"omitempty,min=2020,max=2100"`
	GroupID     string        `query:"filterByGroupId" validate:"omitempty,uuid"`
	TeacherID   string        `query:"filterByTeacherId" validate:"omitempty,uuid"`
	Name        string        `query:"filterByName"`
	StudentCode string        `query:"filterByStudentId"`
	Page        int           `query:"page" validate:"omitempty,min=1"`
	Limit       int           `query:"limit" validate:"omitempty,min=1,max=100"`
}

func (f *Filter) Validate(validate *validator.Validate) error {
	f.GroupID = core.CleanString(f.GroupID, true /* lower */)
	f.TeacherID = core.CleanString(f.TeacherID, true /* lower */)
	f.Name = core.CleanString(f.Name)
	f.StudentCode = core.CleanString(f.StudentCode)

	if (f.Month == 0) != (f.Year == 0) {
		return core.NewValidationError(
			errMonthYearPair,
			core.FieldError{Field: "filterByMonth", Error: errMonthYearPair.Error()},
			core.FieldError{Field: "filterByYear", Error: errMonthYearPair.Error()},
		)
	}
	return validate.Struct(f)
}

// Period returns the single period to evaluate, if any.
func (f Filter) Period() (billing.Period, bool) {
	if f.Month == 0 || f.Year == 0 {
		return billing.Period{}, false
	}
	return billing.Period{Year: f.Year, Month: f.Month}, true
}

// PageRequest returns the requested page of the report.
func (f Filter) PageRequest() core.Page {
	return core.NewPage(f.Page, f.Limit, DefaultLimit, MaxLimit)
}

func (f Filter) directoryFilter() student.Filter {
	return student.Filter{
		Status:    student.StatusActive,
		Name:      f.Name,
		Code:      f.StudentCode,
		GroupID:   f.GroupID,
		TeacherID: f.TeacherID,
	}
}

type (
	// GroupPrice is one group's share of a month's tuition.
	GroupPrice struct {
		GroupName   string          `json:"groupName"`
		CoursePrice decimal.Decimal `json:"coursePrice"`
	}

	GroupDetail struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		CoursePrice decimal.Decimal `json:"coursePrice"`
	}

	// Month is one underpaid billing period. Amounts are rendered with 2 decimals.
	Month struct {
		Month           string       `json:"month"`
		Year            int          `json:"year"`
		ExpectedPayment string       `json:"expectedPayment"`
		PaidAmount      string       `json:"paidAmount"`
		DebtAmount      string       `json:"debtAmount"`
		GroupBreakdown  []GroupPrice `json:"groupBreakdown"`
	}

	// Debtor is a student with their reconstructed debt. Amounts are rounded to 2 decimals.
	Debtor struct {
		student.Student
		TotalDebt                 decimal.Decimal `json:"totalDebt"`
		MonthlyRateBeforeDiscount decimal.Decimal `json:"monthlyRateBeforeDiscount"`
		MonthlyExpectedPayment    decimal.Decimal `json:"monthlyExpectedPayment"`
		MonthlyDiscountAmount     decimal.Decimal `json:"monthlyDiscountAmount"`
		TotalPaid                 decimal.Decimal `json:"totalPaid"` // balance
		MonthsActive              int             `json:"monthsActive"`
		DebtorMonths              []Month         `json:"debtorMonths"`
		GroupDetails              []GroupDetail   `json:"groupDetails"`

		debt decimal.Decimal // full precision
	}

	Result struct {
		Data  []Debtor `json:"data"`
		Total int      `json:"total"`
	}
)

func groupDetails(s student.Student) []GroupDetail {
	details := make([]GroupDetail, 0, len(s.Groups))
	for _, g := range s.Groups {
		details = append(details, GroupDetail{ID: g.ID, Name: g.DisplayName(), CoursePrice: g.MonthlyPrice})
	}
	return details
}

func groupBreakdown(s student.Student) []GroupPrice {
	breakdown := make([]GroupPrice, 0, len(s.Groups))
	for _, g := range s.Groups {
		breakdown = append(breakdown, GroupPrice{GroupName: g.DisplayName(), CoursePrice: g.MonthlyPrice})
	}
	return breakdown
}

// zeroDebt is the shape of a student that cannot owe anything.
func zeroDebt(s student.Student, balance decimal.Decimal) Debtor {
	return Debtor{
		Student:      s,
		TotalPaid:    balance,
		DebtorMonths: []Month{},
		GroupDetails: groupDetails(s),
	}
}
