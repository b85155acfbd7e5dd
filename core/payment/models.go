package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
)

// Payment types
const (
	TypeCash Type = "NAQD"
	TypeCard Type = "KARTA"
	TypeBank Type = "BANK"
)

// Audit actions
const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

var Types = []Type{TypeCash, TypeCard, TypeBank}

type (
	Type   string
	Action string
)

func (t Type) Valid() bool {
	for _, typ := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Entry is one payment recorded in the ledger.
type Entry struct {
	ID           string          `json:"id"`
	StudentID    string          `json:"studentId"`
	GroupID      string          `json:"groupId"`
	Amount       decimal.Decimal `json:"amount"`
	Type         Type            `json:"paymentType"`
	Date         time.Time       `json:"date"` // UTC, day precision
	BillingMonth billing.Month   `json:"billingMonth,omitempty"`
	BillingYear  int             `json:"billingYear,omitempty"`
	CreatedBy    string          `json:"createdBy,omitempty"`
	UpdatedBy    string          `json:"updatedBy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"` // UTC
	UpdatedAt    time.Time       `json:"updatedAt"` // UTC

	// StudentBalance is attached on reads only.
	StudentBalance *decimal.Decimal `json:"studentBalance,omitempty"`
}

// Tagged returns the entry as seen by the period aggregation.
func (e Entry) Tagged() billing.Tagged {
	return billing.Tagged{
		StudentID: e.StudentID,
		Month:     e.BillingMonth,
		Year:      e.BillingYear,
		Amount:    e.Amount,
	}
}

// Snapshot is the audited view of an Entry.
type Snapshot struct {
	ID           string          `json:"id,omitempty"`
	StudentID    string          `json:"studentId"`
	GroupID      string          `json:"groupId"`
	Amount       decimal.Decimal `json:"amount"`
	Type         Type            `json:"paymentType"`
	Date         string          `json:"date"` // DD-MM-YYYY
	BillingMonth billing.Month   `json:"billingMonth,omitempty"`
	BillingYear  int             `json:"billingYear,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
}

func (e Entry) Snapshot() Snapshot {
	return Snapshot{
		StudentID:    e.StudentID,
		GroupID:      e.GroupID,
		Amount:       e.Amount,
		Type:         e.Type,
		Date:         e.Date.Format(core.DateLayout),
		BillingMonth: e.BillingMonth,
		BillingYear:  e.BillingYear,
	}
}

// AuditRecord is one immutable row of the ledger's administrative history.
type AuditRecord struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"paymentId"`
	AdminID   string          `json:"adminId,omitempty"`
	Action    Action          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"createdAt"` // UTC
}

type (
	createDetails struct {
		Created       Snapshot        `json:"created"`
		BalanceChange string          `json:"balanceChange"`
		NewBalance    decimal.Decimal `json:"newBalance"`
	}

	// StudentBalance is a student's balance right after an audited change.
	StudentBalance struct {
		StudentID string          `json:"studentId"`
		Balance   decimal.Decimal `json:"balance"`
	}

	updateDetails struct {
		Old      Snapshot         `json:"old"`
		New      Snapshot         `json:"new"`
		Balances []StudentBalance `json:"balances"`
	}

	deletedSnapshot struct {
		Snapshot
		StudentName   string `json:"studentFullName,omitempty"`
		BalanceChange string `json:"balanceChange"`
	}

	deleteDetails struct {
		Deleted    deletedSnapshot `json:"deleted"`
		NewBalance decimal.Decimal `json:"newBalance"`
	}
)

// signed renders a balance change, eg. "+450000" or "-450000".
func signed(amount decimal.Decimal) string {
	if amount.Sign() < 0 {
		return amount.String()
	}
	return "+" + amount.String()
}

// NewEntry contains information needed to record a payment.
type NewEntry struct {
	StudentID    string          `json:"studentId" validate:"required,uuid"`
	GroupID      string          `json:"groupId" validate:"required,uuid"`
	Amount       decimal.Decimal `json:"amount" validate:"required,money"`
	Type         Type            `json:"paymentType" validate:"required,paymenttype"`
	Date         string          `json:"date" validate:"required,ddmmyyyy"`
	BillingMonth billing.Month   `json:"billingMonth" validate:"omitempty,min=1,max=12"`
	BillingYear  int             `json:"billingYear" validate:"omitempty,min=2000,max=2100"`
}

func (ne *NewEntry) Validate(validate *validator.Validate) error {
	ne.StudentID = core.CleanString(ne.StudentID, true /* lower */)
	ne.GroupID = core.CleanString(ne.GroupID, true /* lower */)
	ne.Date = core.CleanString(ne.Date)
	return validate.Struct(ne)
}

// UpdateEntry defines what information may be provided to amend a recorded payment.
// Only non-nil fields are applied.
type UpdateEntry struct {
	StudentID    *string          `json:"studentId" validate:"omitempty,uuid"`
	GroupID      *string          `json:"groupId" validate:"omitempty,uuid"`
	Amount       *decimal.Decimal `json:"amount" validate:"omitempty,ne=0,money"`
	Type         *Type            `json:"paymentType" validate:"omitempty,paymenttype"`
	Date         *string          `json:"date" validate:"omitempty,ddmmyyyy"`
	BillingMonth *billing.Month   `json:"billingMonth" validate:"omitempty,min=1,max=12"`
	BillingYear  *int             `json:"billingYear" validate:"omitempty,min=2000,max=2100"`
}

func (ue *UpdateEntry) Validate(validate *validator.Validate) error {
	if ue.StudentID != nil {
		id := core.CleanString(*ue.StudentID, true /* lower */)
		ue.StudentID = &id
	}
	if ue.GroupID != nil {
		id := core.CleanString(*ue.GroupID, true /* lower */)
		ue.GroupID = &id
	}
	if ue.Date != nil {
		d := core.CleanString(*ue.Date)
		ue.Date = &d
	}
	return validate.Struct(ue)
}

// apply returns a copy of e with the patch applied and whether anything changed.
func (ue UpdateEntry) apply(e Entry) (Entry, bool) {
	orig := e
	if ue.StudentID != nil {
		e.StudentID = *ue.StudentID
	}
	if ue.GroupID != nil {
		e.GroupID = *ue.GroupID
	}
	if ue.Amount != nil {
		e.Amount = *ue.Amount
	}
	if ue.Type != nil {
		e.Type = *ue.Type
	}
	if ue.Date != nil {
		if d, ok := core.ParseDate(*ue.Date); ok {
			e.Date = d
		}
	}
	if ue.BillingMonth != nil {
		e.BillingMonth = *ue.BillingMonth
	}
	if ue.BillingYear != nil {
		e.BillingYear = *ue.BillingYear
	}

	changed := e.StudentID != orig.StudentID ||
		e.GroupID != orig.GroupID ||
		!e.Amount.Equal(orig.Amount) ||
		e.Type != orig.Type ||
		!e.Date.Equal(orig.Date) ||
		e.BillingMonth != orig.BillingMonth ||
		e.BillingYear != orig.BillingYear
	return e, changed
}

// QueryFilter filters ledger entries; empty fields are ignored.
type QueryFilter struct {
	StudentID    string        `query:"filterByStudentUuid" validate:"omitempty,uuid"`
	Name         string        `query:"filterByName"`
	StudentCode  string        `query:"filterByStudentId"`
	GroupCode    string        `query:"filterByGroupId"`
	GroupIDs     []string      `query:"groupId_in" validate:"omitempty,dive,uuid"`
	Type         Type          `query:"filterByPaymentType" validate:"omitempty,paymenttype"`
	DateFrom     string        `query:"filterByDateFrom" validate:"omitempty,ddmmyyyy"`
	DateTo       string        `query:"filterByDateTo" validate:"omitempty,ddmmyyyy"`
	MinAmount    string        `query:"filterByMinAmount" validate:"omitempty,numeric"`
	MaxAmount    string        `query:"filterByMaxAmount" validate:"omitempty,numeric"`
	BillingMonth billing.Month `query:"filterByMonth" validate:"omitempty,min=1,max=12"`
	BillingYear  int           `query:"filterByYear" validate:"omitempty,min=2000,max=2100"`

	// parsed by Validate
	From, To             time.Time
	AmountMin, AmountMax *decimal.Decimal
}

func (f *QueryFilter) Validate(validate *validator.Validate) error {
	f.StudentID = core.CleanString(f.StudentID, true /* lower */)
	f.Name = core.CleanString(f.Name)
	f.StudentCode = core.CleanString(f.StudentCode)
	f.GroupCode = core.CleanString(f.GroupCode)
	if err := validate.Struct(f); err != nil {
		return err
	}

	if f.DateFrom != "" {
		f.From, _ = core.ParseDate(f.DateFrom)
	}
	if f.DateTo != "" {
		to, _ := core.ParseDate(f.DateTo)
		f.To = to.Add(24*time.Hour - time.Nanosecond) // end of day
	}
	if f.MinAmount != "" {
		d := decimal.RequireFromString(f.MinAmount)
		f.AmountMin = &d
	}
	if f.MaxAmount != "" {
		d := decimal.RequireFromString(f.MaxAmount)
		f.AmountMax = &d
	}
	return nil
}

// Match reports whether e passes the filter, given the payer's code & name and the group code.
func (f QueryFilter) Match(e Entry, studentCode, studentName, groupCode string) bool {
	switch {
	case f.StudentID != "" && e.StudentID != f.StudentID,
		f.Type != "" && e.Type != f.Type,
		f.BillingMonth != 0 && e.BillingMonth != f.BillingMonth,
		f.BillingYear != 0 && e.BillingYear != f.BillingYear,
		!f.From.IsZero() && e.Date.Before(f.From),
		!f.To.IsZero() && e.Date.After(f.To),
		f.AmountMin != nil && e.Amount.LessThan(*f.AmountMin),
		f.AmountMax != nil && e.Amount.GreaterThan(*f.AmountMax),
		f.StudentCode != "" && !containsFold(studentCode, f.StudentCode),
		f.Name != "" && !containsFold(studentName, f.Name),
		f.GroupCode != "" && !containsFold(groupCode, f.GroupCode):
		return false
	}
	if len(f.GroupIDs) > 0 {
		for _, id := range f.GroupIDs {
			if id == e.GroupID {
				return true
			}
		}
		return false
	}
	return true
}

// Orderable ledger fields: API name -> column.
var orderableFields = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"date":        "paid_on",
	"amount":      "amount",
	"paymentType": "payment_type",
}

// DefaultOrdering lists the most recent payments first.
var DefaultOrdering = []core.DBOrdering{{Field: "paid_on", Ascending: false}}

// CleanOrdering maps API field names to columns, dropping unknown fields.
func CleanOrdering(ordering []core.DBOrdering) []core.DBOrdering {
	cleaned := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := orderableFields[ord.Field]; ok {
			cleaned = append(cleaned, core.DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	if len(cleaned) == 0 {
		return DefaultOrdering
	}
	return cleaned
}

// HistoryFilter filters audit records; empty fields are ignored.
type HistoryFilter struct {
	PaymentID string `query:"paymentId" validate:"omitempty,uuid"`
	AdminID   string `query:"adminId" validate:"omitempty,uuid"`
	Action    Action `query:"action" validate:"omitempty,oneof=CREATE UPDATE DELETE"`
	DateFrom  string `query:"dateFrom" validate:"omitempty,ddmmyyyy"`
	DateTo    string `query:"dateTo" validate:"omitempty,ddmmyyyy"`
	SortBy    string `query:"sortBy" validate:"omitempty,oneof=createdAt action"`
	SortOrder string `query:"sortOrder" validate:"omitempty,oneof=asc desc"`

	// parsed by Validate
	From, To time.Time
}

func (f *HistoryFilter) Validate(validate *validator.Validate) error {
	f.PaymentID = core.CleanString(f.PaymentID, true /* lower */)
	f.AdminID = core.CleanString(f.AdminID, true /* lower */)
	if err := validate.Struct(f); err != nil {
		return err
	}
	if f.DateFrom != "" {
		f.From, _ = core.ParseDate(f.DateFrom)
	}
	if f.DateTo != "" {
		to, _ := core.ParseDate(f.DateTo)
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return nil
}

// Ordering returns the audit ordering column; newest first by default.
func (f HistoryFilter) Ordering() core.DBOrdering {
	ord := core.DBOrdering{Field: "created_at", Ascending: f.SortOrder == "asc"}
	if f.SortBy == "action" {
		ord.Field = "action"
	}
	return ord
}

func (f HistoryFilter) Match(rec AuditRecord) bool {
	switch {
	case f.PaymentID != "" && rec.PaymentID != f.PaymentID,
		f.AdminID != "" && rec.AdminID != f.AdminID,
		f.Action != "" && rec.Action != f.Action,
		!f.From.IsZero() && rec.CreatedAt.Before(f.From),
		!f.To.IsZero() && rec.CreatedAt.After(f.To):
		return false
	}
	return true
}

// Summary is a ledger total over a period of time.
type Summary struct {
	From  time.Time       `json:"from"`
	To    time.Time       `json:"to"`
	Total decimal.Decimal `json:"total"`
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
