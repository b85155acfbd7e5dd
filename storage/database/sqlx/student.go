// Package sqlxrepos implements the student directory on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core/student"
)

const studentColumns = `s.id, s.code, s.first_name, s.last_name, s.phone, s.parent_phone, s.parent_email,
	s.enrollment_date, s.discount_percent, s.status, s.created_at`

type (
	studentRow struct {
		ID              string          `db:"id"`
		Code            string          `db:"code"`
		FirstName       string          `db:"first_name"`
		LastName        string          `db:"last_name"`
		Phone           sql.NullString  `db:"phone"`
		ParentPhone     sql.NullString  `db:"parent_phone"`
		ParentEmail     sql.NullString  `db:"parent_email"`
		EnrollmentDate  sql.NullTime    `db:"enrollment_date"`
		DiscountPercent decimal.Decimal `db:"discount_percent"`
		Status          string          `db:"status"`
		CreatedAt       time.Time       `db:"created_at"`
	}

	groupRow struct {
		StudentID    string          `db:"student_id"` // set on membership queries only
		ID           string          `db:"id"`
		Code         string          `db:"code"`
		Name         sql.NullString  `db:"name"`
		TeacherID    sql.NullString  `db:"teacher_id"`
		MonthlyPrice decimal.Decimal `db:"monthly_price"`
	}
)

func (r studentRow) toStudent() student.Student {
	s := student.Student{
		ID:              r.ID,
		Code:            r.Code,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Phone:           r.Phone.String,
		ParentPhone:     r.ParentPhone.String,
		ParentEmail:     r.ParentEmail.String,
		DiscountPercent: r.DiscountPercent,
		Status:          student.Status(r.Status),
		Groups:          make([]student.Group, 0),
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.EnrollmentDate.Valid {
		s.EnrollmentDate = r.EnrollmentDate.Time.UTC()
	}
	return s
}

func (r groupRow) toGroup() student.Group {
	return student.Group{
		ID:           r.ID,
		Code:         r.Code,
		Name:         r.Name.String,
		TeacherID:    r.TeacherID.String,
		MonthlyPrice: r.MonthlyPrice,
	}
}

type studentDirectory struct {
	db *sqlx.DB
}

var _ student.Directory = (*studentDirectory)(nil) // interface compliance check

// NewStudentDirectory wraps an open PostgreSQL connection pool.
func NewStudentDirectory(db *sql.DB) *studentDirectory {
	return &studentDirectory{db: sqlx.NewDb(db, "postgres")}
}

func (dir studentDirectory) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}

	var row studentRow
	if err := dir.db.GetContext(ctx, &row, `SELECT `+studentColumns+` FROM student s WHERE s.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}

	students := []student.Student{row.toStudent()}
	if err := dir.attachGroups(ctx, students); err != nil {
		return student.Student{}, err
	}
	return students[0], nil
}

func (dir studentDirectory) GetGroup(ctx context.Context, id string) (student.Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Group{}, student.ErrGroupNotFound
	}

	var row groupRow
	err := dir.db.GetContext(ctx, &row, `SELECT '' AS student_id, id, code, name, teacher_id, monthly_price FROM "group" WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Group{}, student.ErrGroupNotFound
		}
		return student.Group{}, errors.Wrap(err, "finding group")
	}
	return row.toGroup(), nil
}

func (dir studentDirectory) QueryStudents(ctx context.Context, filter student.Filter) ([]student.Student, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		conds = append(conds, "s.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Code != "" {
		conds = append(conds, "s.code ILIKE ?")
		args = append(args, "%"+filter.Code+"%")
	}
	if filter.Name != "" {
		conds = append(conds, "(s.first_name ILIKE ? OR s.last_name ILIKE ?)")
		args = append(args, "%"+filter.Name+"%", "%"+filter.Name+"%")
	}
	if filter.GroupID != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM student_group sg WHERE sg.student_id = s.id AND sg.group_id = ?)")
		args = append(args, filter.GroupID)
	}
	if filter.TeacherID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM student_group sg JOIN "group" g ON g.id = sg.group_id
			WHERE sg.student_id = s.id AND g.teacher_id = ?)`)
		args = append(args, filter.TeacherID)
	}

	q := `SELECT ` + studentColumns + ` FROM student s`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY s.code, s.id"

	var rows []studentRow
	if err := dir.db.SelectContext(ctx, &rows, dir.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	if err := dir.attachGroups(ctx, students); err != nil {
		return nil, err
	}
	return students, nil
}

// attachGroups loads the current groups of every student in one query.
func (dir studentDirectory) attachGroups(ctx context.Context, students []student.Student) error {
	if len(students) == 0 {
		return nil
	}
	ids := make([]string, 0, len(students))
	index := make(map[string]int, len(students))
	for i, s := range students {
		ids = append(ids, s.ID)
		index[s.ID] = i
	}

	q, args, err := sqlx.In(`
		SELECT sg.student_id, g.id, g.code, g.name, g.teacher_id, g.monthly_price
		FROM student_group sg JOIN "group" g ON g.id = sg.group_id
		WHERE sg.student_id IN (?)
		ORDER BY g.code`, ids)
	if err != nil {
		return errors.Wrap(err, "building membership query")
	}

	var rows []groupRow
	if err = dir.db.SelectContext(ctx, &rows, dir.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "querying memberships")
	}
	for _, r := range rows {
		i := index[r.StudentID]
		students[i].Groups = append(students[i].Groups, r.toGroup())
	}
	return nil
}
