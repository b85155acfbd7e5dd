// Package boiledrepos implements the storage interfaces on PostgreSQL with sqlboiler's raw queries.
package boiledrepos

import (
	"fmt"
	"strings"

	"github.com/volatiletech/strmangle"

	"github.com/trezcool/tuition/core"
)

// where accumulates the conditions and the positional args of a query.
type where struct {
	conds []string
	args  []interface{}
}

// add appends cond, where every `?` is replaced by the next placeholder.
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

// in appends `column IN (...)` for the given values.
func (w *where) in(column string, values []string) {
	start := len(w.args) + 1
	for _, v := range values {
		w.args = append(w.args, v)
	}
	w.conds = append(w.conds, fmt.Sprintf("%s IN (%s)", column, strmangle.Placeholders(true, len(values), start, 1)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// limit appends the LIMIT/OFFSET clause of the page; a page without size returns every row.
func (w *where) limit(page core.Page) string {
	if page.Size <= 0 {
		return ""
	}
	w.args = append(w.args, page.Size, page.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func orderBy(ordering []core.DBOrdering, tieBreaker string) string {
	list := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		list = append(list, ord.String())
	}
	list = append(list, tieBreaker)
	return " ORDER BY " + strings.Join(list, ", ")
}

func getExec(fallback core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return fallback
}
