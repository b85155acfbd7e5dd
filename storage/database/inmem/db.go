// Package inmemdb is an in-memory implementation of the storage interfaces, used by tests.
package inmemdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/student"
	"github.com/trezcool/tuition/core/user"
)

type (
	studentRow struct {
		student.Student
		groupIDs []string
	}

	tables struct {
		students map[string]studentRow
		groups   map[string]student.Group
		payments map[string]payment.Entry
		audit    []payment.AuditRecord
		users    map[string]user.User
	}

	// DB holds every table behind one lock.
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex
		t    tables

		// FailAudit, when set, is returned by every audit write.
		FailAudit error
	}
)

var _ core.TxRunner = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{t: tables{
		students: make(map[string]studentRow),
		groups:   make(map[string]student.Group),
		payments: make(map[string]payment.Entry),
		users:    make(map[string]user.User),
	}}
}

func (t tables) clone() tables {
	c := tables{
		students: make(map[string]studentRow, len(t.students)),
		groups:   make(map[string]student.Group, len(t.groups)),
		payments: make(map[string]payment.Entry, len(t.payments)),
		audit:    make([]payment.AuditRecord, len(t.audit)),
		users:    make(map[string]user.User, len(t.users)),
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.groups {
		c.groups[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	copy(c.audit, t.audit)
	for k, v := range t.users {
		c.users[k] = v
	}
	return c
}

// RunInTx serializes transactions and restores every table when fn fails.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.t.clone()
	db.mu.RUnlock()

	rollback := func() {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(nil); err != nil {
		rollback()
		return err
	}
	return nil
}

func wrapCtx(ctx context.Context) error {
	return errors.Wrap(ctx.Err(), "in-memory query")
}
