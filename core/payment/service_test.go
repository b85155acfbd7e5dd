package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/student"
	"github.com/trezcool/tuition/storage/database/inmem"
	"github.com/trezcool/tuition/tests"
)

type recordingNotifier struct {
	receipts []payment.Receipt
	err      error
}

func (n *recordingNotifier) PaymentRecorded(_ context.Context, rcpt payment.Receipt) error {
	n.receipts = append(n.receipts, rcpt)
	return n.err
}

type fixture struct {
	db       *inmemdb.DB
	svc      *payment.Service
	notifier *recordingNotifier
	logger   *testutil.Logger
	english  student.Group
	math     student.Group
	aziza    student.Student
	bobur    student.Student
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := inmemdb.Open()
	validate, _ := testutil.NewValidator()

	f := &fixture{
		db:       db,
		notifier: new(recordingNotifier),
		logger:   new(testutil.Logger),
	}
	f.english = db.AddGroup(testutil.Group("ENG-1", "500000"))
	f.math = db.AddGroup(testutil.Group("MATH-1", "300000"))
	f.aziza = db.AddStudent(student.Student{
		Code:           "S-001",
		FirstName:      "Aziza",
		LastName:       "Karimova",
		ParentEmail:    "parent@example.com",
		EnrollmentDate: testutil.Date(2024, 1, 10),
	}, f.english.ID)
	f.bobur = db.AddStudent(student.Student{
		Code:           "S-002",
		FirstName:      "Bobur",
		LastName:       "Aliyev",
		EnrollmentDate: testutil.Date(2024, 1, 10),
	}, f.math.ID)

	f.svc = payment.NewService(
		db,
		inmemdb.NewPaymentRepository(db),
		inmemdb.NewStudentDirectory(db),
		f.notifier,
		validate,
		f.logger,
	)
	return f
}

func (f *fixture) record(t *testing.T, studentID, groupID, amount string, month billing.Month, year int) payment.Entry {
	t.Helper()
	e, err := f.svc.Record(context.Background(), payment.NewEntry{
		StudentID:    studentID,
		GroupID:      groupID,
		Amount:       testutil.Dec(amount),
		Type:         payment.TypeCash,
		Date:         "15-02-2024",
		BillingMonth: month,
		BillingYear:  year,
	}, "admin-1")
	require.NoError(t, err)
	return e
}

func (f *fixture) history(t *testing.T, filter payment.HistoryFilter) []payment.AuditRecord {
	t.Helper()
	res, err := f.svc.History(context.Background(), filter, core.Page{})
	require.NoError(t, err)
	return res.Data
}

func details(t *testing.T, rec payment.AuditRecord) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Details, &m))
	return m
}

func TestService_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("records the payment with its audit", func(t *testing.T) {
		f := setup(t)
		f.record(t, f.aziza.ID, f.english.ID, "200000", 0, 0)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)

		assert.NotEmpty(t, e.ID)
		assert.Equal(t, testutil.Date(2024, 2, 15), e.Date)
		assert.Equal(t, "admin-1", e.CreatedBy)
		require.NotNil(t, e.StudentBalance)
		assert.True(t, e.StudentBalance.Equal(testutil.Dec("650000")))

		recs := f.history(t, payment.HistoryFilter{PaymentID: e.ID})
		require.Len(t, recs, 1)
		assert.Equal(t, payment.ActionCreate, recs[0].Action)
		assert.Equal(t, "admin-1", recs[0].AdminID)
		d := details(t, recs[0])
		assert.Equal(t, "+450000", d["balanceChange"])
		assert.Equal(t, "650000", d["newBalance"])
		created := d["created"].(map[string]interface{})
		assert.Equal(t, "15-02-2024", created["date"])
		assert.Equal(t, "FEVRAL", created["billingMonth"])

		require.Len(t, f.notifier.receipts, 2)
		rcpt := f.notifier.receipts[1]
		assert.Equal(t, e.ID, rcpt.Entry.ID)
		assert.Equal(t, f.aziza.ID, rcpt.Student.ID)
		assert.Equal(t, f.english.ID, rcpt.Group.ID)
		assert.True(t, rcpt.Balance.Equal(testutil.Dec("650000")))
	})

	t.Run("negative amounts are refunds", func(t *testing.T) {
		f := setup(t)
		f.record(t, f.aziza.ID, f.english.ID, "300000", 0, 0)
		e := f.record(t, f.aziza.ID, f.english.ID, "-100000", 0, 0)
		assert.True(t, e.StudentBalance.Equal(testutil.Dec("200000")))

		recs := f.history(t, payment.HistoryFilter{PaymentID: e.ID})
		require.Len(t, recs, 1)
		assert.Equal(t, "-100000", details(t, recs[0])["balanceChange"])
	})

	t.Run("notification failures are logged only", func(t *testing.T) {
		f := setup(t)
		f.notifier.err = errors.New("smtp down")
		f.record(t, f.aziza.ID, f.english.ID, "100", 0, 0)
		assert.Len(t, f.logger.Messages, 1)
	})

	invalid := []struct {
		name string
		mod  func(ne *payment.NewEntry)
	}{
		{"zero amount", func(ne *payment.NewEntry) { ne.Amount = decimal.Zero }},
		{"sub-cent amount", func(ne *payment.NewEntry) { ne.Amount = testutil.Dec("100.005") }},
		{"amount too large", func(ne *payment.NewEntry) { ne.Amount = testutil.Dec("1000000000000") }},
		{"refund too large", func(ne *payment.NewEntry) { ne.Amount = testutil.Dec("-1000000000000") }},
		{"unknown payment type", func(ne *payment.NewEntry) { ne.Type = "CHEQUE" }},
		{"impossible date", func(ne *payment.NewEntry) { ne.Date = "31-02-2024" }},
		{"wrong date format", func(ne *payment.NewEntry) { ne.Date = "2024-02-15" }},
		{"month out of range", func(ne *payment.NewEntry) { ne.BillingMonth = 13 }},
		{"year out of range", func(ne *payment.NewEntry) { ne.BillingYear = 1999 }},
		{"malformed student id", func(ne *payment.NewEntry) { ne.StudentID = "42" }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ne := payment.NewEntry{
				StudentID: f.aziza.ID,
				GroupID:   f.english.ID,
				Amount:    testutil.Dec("1000"),
				Type:      payment.TypeCard,
				Date:      "29-02-2024",
			}
			tt.mod(&ne)

			_, err := f.svc.Record(ctx, ne, "admin-1")
			assert.True(t, core.IsValidation(err), "got %v", err)
			assert.Empty(t, f.history(t, payment.HistoryFilter{}))
		})
	}

	t.Run("cents are kept as is", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "999999999999.99", 0, 0)
		assert.True(t, e.StudentBalance.Equal(testutil.Dec("999999999999.99")))

		recs := f.history(t, payment.HistoryFilter{PaymentID: e.ID})
		require.Len(t, recs, 1)
		d := details(t, recs[0])
		assert.Equal(t, "999999999999.99", d["created"].(map[string]interface{})["amount"])
		assert.Equal(t, "999999999999.99", d["newBalance"])
	})

	t.Run("unknown student or group", func(t *testing.T) {
		f := setup(t)
		ne := payment.NewEntry{
			StudentID: "8b2c1f0e-7a52-4a7e-9d7a-0d7e3f1c2b11",
			GroupID:   f.english.ID,
			Amount:    testutil.Dec("1000"),
			Type:      payment.TypeBank,
			Date:      "01-03-2024",
		}
		_, err := f.svc.Record(ctx, ne, "admin-1")
		assert.True(t, core.IsNotFound(err))

		ne.StudentID, ne.GroupID = f.aziza.ID, "8b2c1f0e-7a52-4a7e-9d7a-0d7e3f1c2b11"
		_, err = f.svc.Record(ctx, ne, "admin-1")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("audit failure rolls the payment back", func(t *testing.T) {
		f := setup(t)
		f.db.FailAudit = errors.New("disk full")
		_, err := f.svc.Record(ctx, payment.NewEntry{
			StudentID: f.aziza.ID,
			GroupID:   f.english.ID,
			Amount:    testutil.Dec("1000"),
			Type:      payment.TypeBank,
			Date:      "01-03-2024",
		}, "admin-1")
		assert.True(t, core.IsInternal(err))
		assert.Empty(t, f.notifier.receipts)

		f.db.FailAudit = nil
		balance, err := f.svc.BalanceOf(ctx, f.aziza.ID)
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})
}

func TestService_Amend(t *testing.T) {
	ctx := context.Background()
	amount := testutil.Dec("400000")

	t.Run("unknown payment", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Amend(ctx, "missing", payment.UpdateEntry{Amount: &amount}, "admin-2")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("nothing changes", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "400000", 2, 2024)
		got, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{Amount: &amount}, "admin-2")
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Len(t, f.history(t, payment.HistoryFilter{PaymentID: e.ID}), 1)
	})

	t.Run("amount and period", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)
		month := billing.Month(3)
		got, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{Amount: &amount, BillingMonth: &month}, "admin-2")
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(amount))
		assert.Equal(t, billing.Month(3), got.BillingMonth)
		assert.Equal(t, "admin-2", got.UpdatedBy)
		assert.Equal(t, "admin-1", got.CreatedBy)
		assert.True(t, got.StudentBalance.Equal(amount))

		recs := f.history(t, payment.HistoryFilter{PaymentID: e.ID, Action: payment.ActionUpdate})
		require.Len(t, recs, 1)
		d := details(t, recs[0])
		assert.Equal(t, "450000", d["old"].(map[string]interface{})["amount"])
		assert.Equal(t, "400000", d["new"].(map[string]interface{})["amount"])
		assert.Len(t, d["balances"], 1)
	})

	t.Run("re-attribution outside the group conflicts", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)
		_, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{StudentID: &f.bobur.ID}, "admin-2")
		assert.True(t, core.IsConflict(err))
		assert.Len(t, f.history(t, payment.HistoryFilter{PaymentID: e.ID}), 1)
	})

	t.Run("re-attribution with a group recomputes both balances", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)
		got, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{StudentID: &f.bobur.ID, GroupID: &f.math.ID}, "admin-2")
		require.NoError(t, err)
		assert.Equal(t, f.bobur.ID, got.StudentID)
		assert.True(t, got.StudentBalance.Equal(testutil.Dec("450000")))

		azizaBal, err := f.svc.BalanceOf(ctx, f.aziza.ID)
		require.NoError(t, err)
		assert.True(t, azizaBal.IsZero())

		recs := f.history(t, payment.HistoryFilter{Action: payment.ActionUpdate})
		require.Len(t, recs, 1)
		assert.Len(t, details(t, recs[0])["balances"], 2)
	})

	t.Run("re-attribution to an unknown student", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)
		unknown := "8b2c1f0e-7a52-4a7e-9d7a-0d7e3f1c2b11"
		_, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{StudentID: &unknown}, "admin-2")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("invalid patch", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)
		date := "2024-02-01"
		_, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{Date: &date}, "admin-2")
		assert.True(t, core.IsValidation(err))

		for _, s := range []string{"0", "450000.001", "1000000000000"} {
			amt := testutil.Dec(s)
			_, err = f.svc.Amend(ctx, e.ID, payment.UpdateEntry{Amount: &amt}, "admin-2")
			assert.True(t, core.IsValidation(err), "amount %s: got %v", s, err)
		}
		assert.Len(t, f.history(t, payment.HistoryFilter{PaymentID: e.ID}), 1)
	})

	t.Run("audit failure rolls the amendment back", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)

		f.db.FailAudit = errors.New("disk full")
		one := testutil.Dec("1")
		_, err := f.svc.Amend(ctx, e.ID, payment.UpdateEntry{Amount: &one}, "admin-2")
		assert.True(t, core.IsInternal(err), "got %v", err)
		f.db.FailAudit = nil

		got, err := f.svc.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(testutil.Dec("450000")))
		assert.Equal(t, "admin-1", got.UpdatedBy)
		assert.True(t, got.StudentBalance.Equal(testutil.Dec("450000")))

		recs := f.history(t, payment.HistoryFilter{PaymentID: e.ID})
		require.Len(t, recs, 1)
		assert.Equal(t, payment.ActionCreate, recs[0].Action)
	})
}

func TestService_Void(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown payment is not audited", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Void(ctx, "missing", "admin-3")
		assert.True(t, core.IsNotFound(err))
		assert.Empty(t, f.history(t, payment.HistoryFilter{}))
	})

	t.Run("voids with a snapshot", func(t *testing.T) {
		f := setup(t)
		f.record(t, f.aziza.ID, f.english.ID, "100000", 1, 2024)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)

		voided, err := f.svc.Void(ctx, e.ID, "admin-3")
		require.NoError(t, err)
		assert.Equal(t, e.ID, voided.ID)

		_, err = f.svc.Get(ctx, e.ID)
		assert.True(t, core.IsNotFound(err))

		recs := f.history(t, payment.HistoryFilter{Action: payment.ActionDelete})
		require.Len(t, recs, 1)
		assert.Equal(t, "admin-3", recs[0].AdminID)
		d := details(t, recs[0])
		deleted := d["deleted"].(map[string]interface{})
		assert.Equal(t, e.ID, deleted["id"])
		assert.Equal(t, "Aziza Karimova", deleted["studentFullName"])
		assert.Equal(t, "-450000", deleted["balanceChange"])
		assert.Equal(t, "100000", d["newBalance"])
	})

	t.Run("audit failure keeps the payment", func(t *testing.T) {
		f := setup(t)
		e := f.record(t, f.aziza.ID, f.english.ID, "450000", 2, 2024)

		f.db.FailAudit = errors.New("disk full")
		_, err := f.svc.Void(ctx, e.ID, "admin-3")
		assert.True(t, core.IsInternal(err), "got %v", err)
		f.db.FailAudit = nil

		got, err := f.svc.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(testutil.Dec("450000")))
		assert.True(t, got.StudentBalance.Equal(testutil.Dec("450000")))

		recs := f.history(t, payment.HistoryFilter{PaymentID: e.ID})
		require.Len(t, recs, 1)
		assert.Equal(t, payment.ActionCreate, recs[0].Action)
	})
}

func TestService_BalanceOf(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.BalanceOf(ctx, "missing")
	assert.True(t, core.IsNotFound(err))

	balance, err := f.svc.BalanceOf(ctx, f.bobur.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	f.record(t, f.bobur.ID, f.math.ID, "300000.50", 1, 2024)
	f.record(t, f.bobur.ID, f.math.ID, "99999.50", 0, 0)
	balance, err = f.svc.BalanceOf(ctx, f.bobur.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(testutil.Dec("400000")))
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.record(t, f.aziza.ID, f.english.ID, "100000", 1, 2024)
	f.record(t, f.aziza.ID, f.english.ID, "200000", 2, 2024)
	f.record(t, f.bobur.ID, f.math.ID, "300000", 2, 2024)

	tests := []struct {
		name      string
		filter    payment.QueryFilter
		ordering  []core.DBOrdering
		wantTotal int
		wantFirst string
	}{
		{name: "all, biggest first", ordering: []core.DBOrdering{{Field: "amount"}}, wantTotal: 3, wantFirst: "300000"},
		{name: "smallest first", ordering: []core.DBOrdering{{Field: "amount", Ascending: true}}, wantTotal: 3, wantFirst: "100000"},
		{name: "by name", filter: payment.QueryFilter{Name: "aziza"}, ordering: []core.DBOrdering{{Field: "amount"}}, wantTotal: 2, wantFirst: "200000"},
		{name: "by month", filter: payment.QueryFilter{BillingMonth: 2, BillingYear: 2024}, ordering: []core.DBOrdering{{Field: "amount", Ascending: true}}, wantTotal: 2, wantFirst: "200000"},
		{name: "by group code", filter: payment.QueryFilter{GroupCode: "math"}, wantTotal: 1, wantFirst: "300000"},
		{name: "by amount range", filter: payment.QueryFilter{MinAmount: "150000", MaxAmount: "250000"}, wantTotal: 1, wantFirst: "200000"},
		{name: "by date range", filter: payment.QueryFilter{DateFrom: "16-02-2024"}, wantTotal: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Query(ctx, tt.filter, core.Page{}, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, res.Total)
			if tt.wantFirst != "" {
				require.NotEmpty(t, res.Data)
				assert.True(t, res.Data[0].Amount.Equal(testutil.Dec(tt.wantFirst)), "first = %s", res.Data[0].Amount)
				assert.NotNil(t, res.Data[0].StudentBalance)
			}
		})
	}

	t.Run("paginates", func(t *testing.T) {
		res, err := f.svc.Query(ctx, payment.QueryFilter{}, core.Page{Number: 2, Size: 2}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Total)
		assert.Len(t, res.Data, 1)
	})

	t.Run("invalid filter", func(t *testing.T) {
		_, err := f.svc.Query(ctx, payment.QueryFilter{DateFrom: "2024-01-01"}, core.Page{}, nil)
		assert.True(t, core.IsValidation(err))
	})
}
