// Package billing holds the pure tuition arithmetic: billing periods, monthly rates and
// the aggregation of period-tagged payments. Nothing here does I/O.
package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Month is a calendar month, 1 (YANVAR) to 12 (DEKABR). The zero Month means "not set".
type Month int

var monthNames = [12]string{
	"YANVAR", "FEVRAL", "MART", "APREL", "MAY", "IYUN",
	"IYUL", "AVGUST", "SENTABR", "OKTABR", "NOYABR", "DEKABR",
}

var errInvalidMonth = errors.New("invalid month")

// MonthNames returns the fixed month name table, January first.
func MonthNames() []string {
	names := make([]string, len(monthNames))
	copy(names, monthNames[:])
	return names
}

func (m Month) Valid() bool {
	return m >= 1 && m <= 12
}

func (m Month) String() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m-1]
}

// ParseMonth accepts a month name (case-insensitive) or its number.
func ParseMonth(s string) (Month, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for i, name := range monthNames {
		if name == s {
			return Month(i + 1), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Month(n).Valid() {
		return 0, errInvalidMonth
	}
	return Month(n), nil
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n != 0 && !Month(n).Valid() {
			return errInvalidMonth
		}
		*m = Month(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errInvalidMonth
	}
	month, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = month
	return nil
}

// UnmarshalParam implements echo.BindUnmarshaler.
func (m *Month) UnmarshalParam(param string) error {
	month, err := ParseMonth(param)
	if err != nil {
		return err
	}
	*m = month
	return nil
}

// Period is one billing month.
type Period struct {
	Year  int   `json:"year"`
	Month Month `json:"month"`
}

// PeriodOf returns the period `t` falls in.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: Month(t.Month())}
}

func (p Period) Name() string {
	return p.Month.String()
}

func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Name(), p.Year)
}

func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// EffectiveStart clips the enrollment date to the system billing cutover. A zero cutover disables clipping.
func EffectiveStart(enrollment, systemStart time.Time) time.Time {
	if !systemStart.IsZero() && enrollment.Before(systemStart) {
		return systemStart
	}
	return enrollment
}

// MonthsActive counts the billing months elapsed between start and now.
// The current month counts once now's day-of-month reaches start's. The result is never below 1.
func MonthsActive(start, now time.Time) int {
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if now.Day() >= start.Day() {
		months++
	}
	if months <= 0 {
		return 1
	}
	return months
}

// GeneratePeriods lists the elapsed billing periods, oldest first, starting at start's month.
func GeneratePeriods(start, now time.Time) []Period {
	n := MonthsActive(start, now)
	periods := make([]Period, 0, n)
	p := PeriodOf(start)
	for i := 0; i < n; i++ {
		periods = append(periods, p)
		p = p.Next()
	}
	return periods
}
