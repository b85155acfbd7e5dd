// Package payment is the tuition ledger: every payment a student makes, and the audit trail of the
// administrative actions taken on it. A student's balance is always the sum of their entries.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/student"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("payment not found")
	ErrAdminNotFound = core.NewNotFoundError("the acting admin no longer exists")
	ErrGroupConflict = core.NewConflictError("the student is not a member of the payment's group; provide a groupId")
)

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		// GetEntry returns ErrNotFound when there is no entry with that id.
		GetEntry(ctx context.Context, id string, exec ...core.DBExecutor) (Entry, error)
		UpdateEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		DeleteEntry(ctx context.Context, id string, exec ...core.DBExecutor) error
		// QueryEntries returns a page of the matching entries and the total number of matches.
		QueryEntries(ctx context.Context, filter QueryFilter, page core.Page, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Entry, int, error)

		// Balance sums all the student's entries.
		Balance(ctx context.Context, studentID string, exec ...core.DBExecutor) (decimal.Decimal, error)
		// Balances sums the entries of each of the students. Students without entries are absent.
		Balances(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) (map[string]decimal.Decimal, error)
		// PeriodCredits sums the students' fully tagged entries, one row per (student, year, month).
		PeriodCredits(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]billing.Tagged, error)
		// SumBetween sums the entries paid within [from, to].
		SumBetween(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) (decimal.Decimal, error)

		AppendAudit(ctx context.Context, rec AuditRecord, exec ...core.DBExecutor) (AuditRecord, error)
		QueryAudit(ctx context.Context, filter HistoryFilter, page core.Page, exec ...core.DBExecutor) ([]AuditRecord, int, error)
	}

	Service struct {
		tx       core.TxRunner
		repo     Repository
		dir      student.Directory
		notifier Notifier
		validate *validator.Validate
		logger   core.Logger
	}

	QueryResult struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
	}

	HistoryResult struct {
		Data  []AuditRecord `json:"data"`
		Total int           `json:"total"`
	}
)

// NewService returns the ledger service. notifier may be nil.
func NewService(
	tx core.TxRunner,
	repo Repository,
	dir student.Directory,
	notifier Notifier,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		dir:      dir,
		notifier: notifier,
		validate: validate,
		logger:   logger,
	}
}

func (svc *Service) Record(ctx context.Context, ne NewEntry, adminID string) (Entry, error) {
	if err := ne.Validate(svc.validate); err != nil {
		return Entry{}, err
	}

	std, err := svc.dir.GetStudent(ctx, ne.StudentID)
	if err != nil {
		return Entry{}, core.WrapInternal(err, "getting student")
	}
	grp, err := svc.dir.GetGroup(ctx, ne.GroupID)
	if err != nil {
		return Entry{}, core.WrapInternal(err, "getting group")
	}

	date, _ := core.ParseDate(ne.Date)
	now := time.Now().UTC()
	entry := Entry{
		StudentID:    std.ID,
		GroupID:      grp.ID,
		Amount:       ne.Amount,
		Type:         ne.Type,
		Date:         date,
		BillingMonth: ne.BillingMonth,
		BillingYear:  ne.BillingYear,
		CreatedBy:    adminID,
		UpdatedBy:    adminID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var balance decimal.Decimal
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if entry, err = svc.repo.CreateEntry(ctx, entry, exec); err != nil {
			return err
		}
		if balance, err = svc.repo.Balance(ctx, entry.StudentID, exec); err != nil {
			return err
		}
		return svc.audit(ctx, exec, entry.ID, adminID, ActionCreate, createDetails{
			Created:       entry.Snapshot(),
			BalanceChange: signed(entry.Amount),
			NewBalance:    balance,
		})
	})
	if err != nil {
		return Entry{}, core.WrapInternal(err, "recording payment")
	}

	entry.StudentBalance = &balance
	svc.notify(ctx, Receipt{Entry: entry, Student: std, Group: grp, Balance: balance})
	return entry, nil
}

// Amend applies the supplied fields of ue to the entry. An amendment that changes nothing is not audited.
func (svc *Service) Amend(ctx context.Context, id string, ue UpdateEntry, adminID string) (Entry, error) {
	if err := ue.Validate(svc.validate); err != nil {
		return Entry{}, err
	}

	orig, err := svc.repo.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, core.WrapInternal(err, "getting payment")
	}

	entry, changed := ue.apply(orig)
	if !changed {
		return orig, nil
	}

	if entry.StudentID != orig.StudentID {
		std, err := svc.dir.GetStudent(ctx, entry.StudentID)
		if err != nil {
			return Entry{}, core.WrapInternal(err, "getting student")
		}
		if ue.GroupID == nil && !std.InGroup(entry.GroupID) {
			return Entry{}, ErrGroupConflict
		}
	}
	if entry.GroupID != orig.GroupID {
		if _, err = svc.dir.GetGroup(ctx, entry.GroupID); err != nil {
			return Entry{}, core.WrapInternal(err, "getting group")
		}
	}

	entry.UpdatedBy = adminID
	entry.UpdatedAt = time.Now().UTC()

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if entry, err = svc.repo.UpdateEntry(ctx, entry, exec); err != nil {
			return err
		}

		studentIDs := []string{orig.StudentID}
		if entry.StudentID != orig.StudentID {
			studentIDs = append(studentIDs, entry.StudentID)
		}
		balances := make([]StudentBalance, 0, len(studentIDs))
		for _, sid := range studentIDs {
			bal, err := svc.repo.Balance(ctx, sid, exec)
			if err != nil {
				return err
			}
			balances = append(balances, StudentBalance{StudentID: sid, Balance: bal})
			if sid == entry.StudentID {
				entry.StudentBalance = &bal
			}
		}

		return svc.audit(ctx, exec, entry.ID, adminID, ActionUpdate, updateDetails{
			Old:      orig.Snapshot(),
			New:      entry.Snapshot(),
			Balances: balances,
		})
	})
	if err != nil {
		return Entry{}, core.WrapInternal(err, "amending payment")
	}
	return entry, nil
}

// Void deletes the entry and returns it as it was.
func (svc *Service) Void(ctx context.Context, id, adminID string) (Entry, error) {
	entry, err := svc.repo.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, core.WrapInternal(err, "getting payment")
	}

	var studentName string
	std, err := svc.dir.GetStudent(ctx, entry.StudentID)
	switch {
	case err == nil:
		studentName = std.FullName()
	case !core.IsNotFound(err):
		return Entry{}, core.WrapInternal(err, "getting student")
	}

	snap := entry.Snapshot()
	snap.ID = entry.ID
	snap.CreatedAt = &entry.CreatedAt

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteEntry(ctx, entry.ID, exec); err != nil {
			return err
		}
		balance, err := svc.repo.Balance(ctx, entry.StudentID, exec)
		if err != nil {
			return err
		}
		return svc.audit(ctx, exec, entry.ID, adminID, ActionDelete, deleteDetails{
			Deleted: deletedSnapshot{
				Snapshot:      snap,
				StudentName:   studentName,
				BalanceChange: signed(entry.Amount.Neg()),
			},
			NewBalance: balance,
		})
	})
	if err != nil {
		return Entry{}, core.WrapInternal(err, "voiding payment")
	}
	return entry, nil
}

// BalanceOf is the sum of all the student's payments, computed on every call.
func (svc *Service) BalanceOf(ctx context.Context, studentID string) (decimal.Decimal, error) {
	if _, err := svc.dir.GetStudent(ctx, core.CleanString(studentID, true /* lower */)); err != nil {
		return decimal.Zero, core.WrapInternal(err, "getting student")
	}
	balance, err := svc.repo.Balance(ctx, core.CleanString(studentID, true /* lower */))
	if err != nil {
		return decimal.Zero, core.WrapInternal(err, "computing balance")
	}
	return balance, nil
}

// Get returns the entry with its student's current balance.
func (svc *Service) Get(ctx context.Context, id string) (Entry, error) {
	entry, err := svc.repo.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, core.WrapInternal(err, "getting payment")
	}
	balance, err := svc.repo.Balance(ctx, entry.StudentID)
	if err != nil {
		return Entry{}, core.WrapInternal(err, "computing balance")
	}
	entry.StudentBalance = &balance
	return entry, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Page, ordering []core.DBOrdering) (QueryResult, error) {
	if err := filter.Validate(svc.validate); err != nil {
		return QueryResult{}, err
	}

	entries, total, err := svc.repo.QueryEntries(ctx, filter, page, CleanOrdering(ordering))
	if err != nil {
		return QueryResult{}, core.WrapInternal(err, "querying payments")
	}

	seen := make(map[string]bool, len(entries))
	studentIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		if !seen[e.StudentID] {
			seen[e.StudentID] = true
			studentIDs = append(studentIDs, e.StudentID)
		}
	}
	if len(studentIDs) > 0 {
		balances, err := svc.repo.Balances(ctx, studentIDs)
		if err != nil {
			return QueryResult{}, core.WrapInternal(err, "computing balances")
		}
		for i := range entries {
			bal := balances[entries[i].StudentID]
			entries[i].StudentBalance = &bal
		}
	}

	return QueryResult{Data: entries, Total: total}, nil
}

// History lists the audit records of the ledger.
func (svc *Service) History(ctx context.Context, filter HistoryFilter, page core.Page) (HistoryResult, error) {
	if err := filter.Validate(svc.validate); err != nil {
		return HistoryResult{}, err
	}
	records, total, err := svc.repo.QueryAudit(ctx, filter, page)
	if err != nil {
		return HistoryResult{}, core.WrapInternal(err, "querying payment history")
	}
	return HistoryResult{Data: records, Total: total}, nil
}

func (svc *Service) audit(ctx context.Context, exec core.DBExecutor, paymentID, adminID string, action Action, details interface{}) error {
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = svc.repo.AppendAudit(ctx, AuditRecord{
		PaymentID: paymentID,
		AdminID:   adminID,
		Action:    action,
		Details:   data,
		CreatedAt: time.Now().UTC(),
	}, exec)
	return err
}

// notify runs after commit; a failed notification never fails the payment.
func (svc *Service) notify(ctx context.Context, rcpt Receipt) {
	if svc.notifier == nil {
		return
	}
	if err := svc.notifier.PaymentRecorded(ctx, rcpt); err != nil && svc.logger != nil {
		svc.logger.Error(fmt.Sprintf("notifying payment %s: %v", rcpt.Entry.ID, err), err)
	}
}
