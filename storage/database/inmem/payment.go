package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreateEntry(ctx context.Context, e payment.Entry, _ ...core.DBExecutor) (payment.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e.ID = uuid.New().String()
	e.StudentBalance = nil
	repo.db.t.payments[e.ID] = e
	return e, nil
}

func (repo *paymentRepository) GetEntry(ctx context.Context, id string, _ ...core.DBExecutor) (payment.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e, ok := repo.db.t.payments[id]; ok {
		return e, nil
	}
	return payment.Entry{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpdateEntry(ctx context.Context, e payment.Entry, _ ...core.DBExecutor) (payment.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.payments[e.ID]; !ok {
		return payment.Entry{}, payment.ErrNotFound
	}
	e.StudentBalance = nil
	repo.db.t.payments[e.ID] = e
	return e, nil
}

func (repo *paymentRepository) DeleteEntry(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.payments[id]; !ok {
		return payment.ErrNotFound
	}
	delete(repo.db.t.payments, id)
	return nil
}

func (repo *paymentRepository) QueryEntries(
	ctx context.Context,
	filter payment.QueryFilter,
	page core.Page,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]payment.Entry, int, error) {
	if err := wrapCtx(ctx); err != nil {
		return nil, 0, err
	}

	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]payment.Entry, 0)
	for _, e := range repo.db.t.payments {
		row := repo.db.t.students[e.StudentID]
		grp := repo.db.t.groups[e.GroupID]
		if filter.Match(e, row.Code, row.FullName(), grp.Code) {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareEntries(entries[i], entries[j], ord.Field); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return entries[i].ID < entries[j].ID
	})

	total := len(entries)
	start, end := page.Bounds(total)
	return entries[start:end], total, nil
}

func compareEntries(a, b payment.Entry, column string) int {
	switch column {
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "paid_on":
		return compareTimes(a.Date, b.Date)
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "payment_type":
		return strings.Compare(string(a.Type), string(b.Type))
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *paymentRepository) Balance(ctx context.Context, studentID string, _ ...core.DBExecutor) (decimal.Decimal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	balance := decimal.Zero
	for _, e := range repo.db.t.payments {
		if e.StudentID == studentID {
			balance = balance.Add(e.Amount)
		}
	}
	return balance, nil
}

func (repo *paymentRepository) Balances(ctx context.Context, studentIDs []string, _ ...core.DBExecutor) (map[string]decimal.Decimal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := toSet(studentIDs)
	balances := make(map[string]decimal.Decimal)
	for _, e := range repo.db.t.payments {
		if wanted[e.StudentID] {
			balances[e.StudentID] = balances[e.StudentID].Add(e.Amount)
		}
	}
	return balances, nil
}

func (repo *paymentRepository) PeriodCredits(ctx context.Context, studentIDs []string, _ ...core.DBExecutor) ([]billing.Tagged, error) {
	if err := wrapCtx(ctx); err != nil {
		return nil, err
	}

	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := toSet(studentIDs)
	credits := make([]billing.Tagged, 0)
	for _, e := range repo.db.t.payments {
		if _, ok := e.Tagged().Period(); ok && wanted[e.StudentID] {
			credits = append(credits, e.Tagged())
		}
	}
	return credits, nil
}

func (repo *paymentRepository) SumBetween(ctx context.Context, from, to time.Time, _ ...core.DBExecutor) (decimal.Decimal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range repo.db.t.payments {
		if !e.Date.Before(from) && !e.Date.After(to) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (repo *paymentRepository) AppendAudit(ctx context.Context, rec payment.AuditRecord, _ ...core.DBExecutor) (payment.AuditRecord, error) {
	if repo.db.FailAudit != nil {
		return payment.AuditRecord{}, repo.db.FailAudit
	}

	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	rec.ID = uuid.New().String()
	repo.db.t.audit = append(repo.db.t.audit, rec)
	return rec, nil
}

func (repo *paymentRepository) QueryAudit(
	ctx context.Context,
	filter payment.HistoryFilter,
	page core.Page,
	_ ...core.DBExecutor,
) ([]payment.AuditRecord, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]payment.AuditRecord, 0)
	for _, rec := range repo.db.t.audit {
		if filter.Match(rec) {
			records = append(records, rec)
		}
	}

	ord := filter.Ordering()
	sort.SliceStable(records, func(i, j int) bool {
		var c int
		if ord.Field == "action" {
			c = strings.Compare(string(records[i].Action), string(records[j].Action))
		} else {
			c = compareTimes(records[i].CreatedAt, records[j].CreatedAt)
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	})

	total := len(records)
	start, end := page.Bounds(total)
	return records[start:end], total, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
