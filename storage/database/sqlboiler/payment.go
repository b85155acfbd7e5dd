package boiledrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/student"
)

const foreignKeyViolation = pq.ErrorCode("23503")

const paymentColumns = `p.id, p.student_id, p.group_id, p.amount, p.payment_type, p.paid_on, p.billing_month,
	p.billing_year, p.created_by, p.updated_by, p.created_at, p.updated_at`

type (
	paymentRow struct {
		ID           string          `boil:"id"`
		StudentID    string          `boil:"student_id"`
		GroupID      string          `boil:"group_id"`
		Amount       decimal.Decimal `boil:"amount"`
		PaymentType  string          `boil:"payment_type"`
		PaidOn       time.Time       `boil:"paid_on"`
		BillingMonth null.Int        `boil:"billing_month"`
		BillingYear  null.Int        `boil:"billing_year"`
		CreatedBy    null.String     `boil:"created_by"`
		UpdatedBy    null.String     `boil:"updated_by"`
		CreatedAt    time.Time       `boil:"created_at"`
		UpdatedAt    time.Time       `boil:"updated_at"`
	}

	auditRow struct {
		ID        string      `boil:"id"`
		PaymentID string      `boil:"payment_id"`
		AdminID   null.String `boil:"admin_id"`
		Action    string      `boil:"action"`
		Details   null.JSON   `boil:"details"`
		CreatedAt time.Time   `boil:"created_at"`
	}

	balanceRow struct {
		StudentID string          `boil:"student_id"`
		Balance   decimal.Decimal `boil:"balance"`
	}

	creditRow struct {
		StudentID    string          `boil:"student_id"`
		BillingMonth int             `boil:"billing_month"`
		BillingYear  int             `boil:"billing_year"`
		Amount       decimal.Decimal `boil:"amount"`
	}
)

func (r paymentRow) unboil() payment.Entry {
	return payment.Entry{
		ID:           r.ID,
		StudentID:    r.StudentID,
		GroupID:      r.GroupID,
		Amount:       r.Amount,
		Type:         payment.Type(r.PaymentType),
		Date:         r.PaidOn.UTC(),
		BillingMonth: billing.Month(r.BillingMonth.Int),
		BillingYear:  r.BillingYear.Int,
		CreatedBy:    r.CreatedBy.String,
		UpdatedBy:    r.UpdatedBy.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func (r auditRow) unboil() payment.AuditRecord {
	return payment.AuditRecord{
		ID:        r.ID,
		PaymentID: r.PaymentID,
		AdminID:   r.AdminID.String,
		Action:    payment.Action(r.Action),
		Details:   json.RawMessage(r.Details.JSON),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type paymentRepository struct {
	exec core.DBExecutor
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(exec core.DBExecutor) *paymentRepository {
	return &paymentRepository{exec: exec}
}

// trapNoRowsErr maps psql "no rows" err to payment.ErrNotFound
func (repo paymentRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return payment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapFKErr maps a payment's foreign key violations to the not-found error of the missing row
func (repo paymentRepository) trapFKErr(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		switch pqErr.Constraint {
		case "payment_created_by_fkey", "payment_updated_by_fkey":
			return payment.ErrAdminNotFound
		case "payment_student_id_fkey":
			return student.ErrNotFound
		case "payment_group_id_fkey":
			return student.ErrGroupNotFound
		}
	}
	return errors.Wrap(err, msg)
}

func (repo paymentRepository) CreateEntry(ctx context.Context, e payment.Entry, exec ...core.DBExecutor) (payment.Entry, error) {
	e.ID = uuid.New().String()
	_, err := queries.Raw(`
		INSERT INTO payment (id, student_id, group_id, amount, payment_type, paid_on, billing_month, billing_year,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.StudentID, e.GroupID, e.Amount, string(e.Type), e.Date,
		null.NewInt(int(e.BillingMonth), e.BillingMonth != 0), null.NewInt(e.BillingYear, e.BillingYear != 0),
		null.NewString(e.CreatedBy, e.CreatedBy != ""), null.NewString(e.UpdatedBy, e.UpdatedBy != ""),
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return payment.Entry{}, repo.trapFKErr(err, "inserting payment")
	}
	e.StudentBalance = nil
	return e, nil
}

func (repo paymentRepository) GetEntry(ctx context.Context, id string, exec ...core.DBExecutor) (payment.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payment.Entry{}, payment.ErrNotFound
	}
	var row paymentRow
	err := queries.Raw(`SELECT `+paymentColumns+` FROM payment p WHERE p.id = $1`, id).
		Bind(ctx, getExec(repo.exec, exec), &row)
	if err != nil {
		return payment.Entry{}, repo.trapNoRowsErr(err, "finding payment")
	}
	return row.unboil(), nil
}

func (repo paymentRepository) UpdateEntry(ctx context.Context, e payment.Entry, exec ...core.DBExecutor) (payment.Entry, error) {
	res, err := queries.Raw(`
		UPDATE payment SET student_id = $2, group_id = $3, amount = $4, payment_type = $5, paid_on = $6,
			billing_month = $7, billing_year = $8, updated_by = $9, updated_at = $10
		WHERE id = $1`,
		e.ID, e.StudentID, e.GroupID, e.Amount, string(e.Type), e.Date,
		null.NewInt(int(e.BillingMonth), e.BillingMonth != 0), null.NewInt(e.BillingYear, e.BillingYear != 0),
		null.NewString(e.UpdatedBy, e.UpdatedBy != ""), e.UpdatedAt.UTC(),
	).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return payment.Entry{}, repo.trapFKErr(err, "updating payment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.Entry{}, payment.ErrNotFound
	}
	e.StudentBalance = nil
	return e, nil
}

func (repo paymentRepository) DeleteEntry(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := queries.Raw(`DELETE FROM payment WHERE id = $1`, id).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (repo paymentRepository) entryConditions(filter payment.QueryFilter) *where {
	w := new(where)
	if filter.StudentID != "" {
		w.add("p.student_id = ?", filter.StudentID)
	}
	if filter.Type != "" {
		w.add("p.payment_type = ?", string(filter.Type))
	}
	if filter.BillingMonth != 0 {
		w.add("p.billing_month = ?", int(filter.BillingMonth))
	}
	if filter.BillingYear != 0 {
		w.add("p.billing_year = ?", filter.BillingYear)
	}
	if !filter.From.IsZero() {
		w.add("p.paid_on >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("p.paid_on <= ?", filter.To)
	}
	if filter.AmountMin != nil {
		w.add("p.amount >= ?", *filter.AmountMin)
	}
	if filter.AmountMax != nil {
		w.add("p.amount <= ?", *filter.AmountMax)
	}
	if filter.StudentCode != "" {
		w.add("s.code ILIKE ?", "%"+filter.StudentCode+"%")
	}
	if filter.Name != "" {
		w.add("(s.first_name || ' ' || s.last_name) ILIKE ?", "%"+filter.Name+"%")
	}
	if filter.GroupCode != "" {
		w.add("g.code ILIKE ?", "%"+filter.GroupCode+"%")
	}
	if len(filter.GroupIDs) > 0 {
		w.in("p.group_id", filter.GroupIDs)
	}
	return w
}

func (repo paymentRepository) QueryEntries(
	ctx context.Context,
	filter payment.QueryFilter,
	page core.Page,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]payment.Entry, int, error) {
	exe := getExec(repo.exec, exec)
	const from = ` FROM payment p
		LEFT JOIN student s ON s.id = p.student_id
		LEFT JOIN "group" g ON g.id = p.group_id`

	w := repo.entryConditions(filter)
	var total int
	if err := queries.Raw(`SELECT COUNT(*)`+from+w.String(), w.args...).QueryRowContext(ctx, exe).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting payments")
	}

	q := `SELECT ` + paymentColumns + from + w.String() + orderBy(ordering, "p.id") + w.limit(page)
	var rows []paymentRow
	if err := queries.Raw(q, w.args...).Bind(ctx, exe, &rows); err != nil && errors.Cause(err) != sql.ErrNoRows {
		return nil, 0, errors.Wrap(err, "querying payments")
	}

	entries := make([]payment.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.unboil())
	}
	return entries, total, nil
}

func (repo paymentRepository) Balance(ctx context.Context, studentID string, exec ...core.DBExecutor) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := queries.Raw(`SELECT COALESCE(SUM(amount), 0) FROM payment WHERE student_id = $1`, studentID).
		QueryRowContext(ctx, getExec(repo.exec, exec)).
		Scan(&balance)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "summing student payments")
	}
	return balance, nil
}

func (repo paymentRepository) Balances(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(studentIDs))
	if len(studentIDs) == 0 {
		return balances, nil
	}

	w := new(where)
	w.in("student_id", studentIDs)
	var rows []balanceRow
	err := queries.Raw(`SELECT student_id, SUM(amount) AS balance FROM payment`+w.String()+` GROUP BY student_id`, w.args...).
		Bind(ctx, getExec(repo.exec, exec), &rows)
	if err != nil && errors.Cause(err) != sql.ErrNoRows {
		return nil, errors.Wrap(err, "summing payments")
	}
	for _, r := range rows {
		balances[r.StudentID] = r.Balance
	}
	return balances, nil
}

func (repo paymentRepository) PeriodCredits(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]billing.Tagged, error) {
	credits := make([]billing.Tagged, 0)
	if len(studentIDs) == 0 {
		return credits, nil
	}

	w := new(where)
	w.in("student_id", studentIDs)
	w.add("billing_month IS NOT NULL")
	w.add("billing_year IS NOT NULL")
	q := `SELECT student_id, billing_month, billing_year, SUM(amount) AS amount FROM payment` + w.String() +
		` GROUP BY student_id, billing_year, billing_month`

	var rows []creditRow
	if err := queries.Raw(q, w.args...).Bind(ctx, getExec(repo.exec, exec), &rows); err != nil && errors.Cause(err) != sql.ErrNoRows {
		return nil, errors.Wrap(err, "summing period credits")
	}
	for _, r := range rows {
		credits = append(credits, billing.Tagged{
			StudentID: r.StudentID,
			Month:     billing.Month(r.BillingMonth),
			Year:      r.BillingYear,
			Amount:    r.Amount,
		})
	}
	return credits, nil
}

func (repo paymentRepository) SumBetween(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := queries.Raw(`SELECT COALESCE(SUM(amount), 0) FROM payment WHERE paid_on >= $1 AND paid_on <= $2`, from, to).
		QueryRowContext(ctx, getExec(repo.exec, exec)).
		Scan(&sum)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "summing payments")
	}
	return sum, nil
}

func (repo paymentRepository) AppendAudit(ctx context.Context, rec payment.AuditRecord, exec ...core.DBExecutor) (payment.AuditRecord, error) {
	rec.ID = uuid.New().String()
	_, err := queries.Raw(`
		INSERT INTO payment_audit (id, payment_id, admin_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.PaymentID, null.NewString(rec.AdminID, rec.AdminID != ""), string(rec.Action),
		null.JSONFrom(rec.Details), rec.CreatedAt.UTC(),
	).ExecContext(ctx, getExec(repo.exec, exec))
	if err != nil {
		return payment.AuditRecord{}, errors.Wrap(err, "inserting payment audit")
	}
	return rec, nil
}

func (repo paymentRepository) QueryAudit(
	ctx context.Context,
	filter payment.HistoryFilter,
	page core.Page,
	exec ...core.DBExecutor,
) ([]payment.AuditRecord, int, error) {
	exe := getExec(repo.exec, exec)

	w := new(where)
	if filter.PaymentID != "" {
		w.add("payment_id = ?", filter.PaymentID)
	}
	if filter.AdminID != "" {
		w.add("admin_id = ?", filter.AdminID)
	}
	if filter.Action != "" {
		w.add("action = ?", string(filter.Action))
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at <= ?", filter.To)
	}

	var total int
	if err := queries.Raw(`SELECT COUNT(*) FROM payment_audit`+w.String(), w.args...).QueryRowContext(ctx, exe).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting payment audit")
	}

	q := `SELECT id, payment_id, admin_id, action, details, created_at FROM payment_audit` + w.String() +
		orderBy([]core.DBOrdering{filter.Ordering()}, "id") + w.limit(page)
	var rows []auditRow
	if err := queries.Raw(q, w.args...).Bind(ctx, exe, &rows); err != nil && errors.Cause(err) != sql.ErrNoRows {
		return nil, 0, errors.Wrap(err, "querying payment audit")
	}

	records := make([]payment.AuditRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.unboil())
	}
	return records, total, nil
}
