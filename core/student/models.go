// Package student describes the student & group directory. Students and groups are managed by the
// administration; this service only reads them.
package student

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("student not found")
	ErrGroupNotFound = core.NewNotFoundError("group not found")
)

// Statuses
const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusGraduated Status = "GRADUATED"
)

type Status string

type Group struct {
	ID           string          `json:"id"`
	Code         string          `json:"groupId"` // business id
	Name         string          `json:"name"`
	TeacherID    string          `json:"teacherId,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
}

// DisplayName falls back to the business id for unnamed groups.
func (g Group) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Code
}

type Student struct {
	ID              string          `json:"id"`
	Code            string          `json:"studentId"` // business id
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	Phone           string          `json:"phone,omitempty"`
	ParentPhone     string          `json:"parentPhone,omitempty"`
	ParentEmail     string          `json:"parentEmail,omitempty"`
	EnrollmentDate  time.Time       `json:"enrollmentDate"` // zero when unknown
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Status          Status          `json:"status"`
	Groups          []Group         `json:"groups"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// StartDate is the date the student joined; records without an enrollment date use their creation date.
func (s Student) StartDate() time.Time {
	if s.EnrollmentDate.IsZero() {
		return s.CreatedAt
	}
	return s.EnrollmentDate
}

func (s Student) IsActive() bool {
	return s.Status == StatusActive
}

func (s Student) InGroup(groupID string) bool {
	for _, g := range s.Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}

// Prices lists the monthly price of every group the student belongs to.
func (s Student) Prices() []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(s.Groups))
	for _, g := range s.Groups {
		prices = append(prices, g.MonthlyPrice)
	}
	return prices
}

// Filter selects students; empty fields are ignored.
// Name and Code are case-insensitive "contains" matches.
type Filter struct {
	Status    Status
	Name      string // first or last name
	Code      string
	GroupID   string
	TeacherID string // teacher of any of the student's groups
}

// Directory is the read access to students & groups.
type Directory interface {
	// GetStudent returns the student with their current groups, or ErrNotFound.
	GetStudent(ctx context.Context, id string) (Student, error)
	// GetGroup returns the group, or ErrGroupNotFound.
	GetGroup(ctx context.Context, id string) (Group, error)
	// QueryStudents returns the matching students with their current groups, ordered by code.
	QueryStudents(ctx context.Context, filter Filter) ([]Student, error)
}
