package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/tuition/core/student"
)

type studentDirectory struct {
	db *DB
}

var _ student.Directory = (*studentDirectory)(nil) // interface compliance check

func NewStudentDirectory(db *DB) *studentDirectory {
	return &studentDirectory{db: db}
}

// AddGroup stores g, generating its id when empty.
func (db *DB) AddGroup(g student.Group) student.Group {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t.groups[g.ID] = g
	return g
}

// AddStudent stores s as a member of the groups, generating its id when empty.
func (db *DB) AddStudent(s student.Student, groupIDs ...string) student.Student {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = student.StatusActive
	}
	s.Groups = nil

	db.mu.Lock()
	defer db.mu.Unlock()
	db.t.students[s.ID] = studentRow{Student: s, groupIDs: groupIDs}
	return db.withGroups(db.t.students[s.ID])
}

// SetMembership replaces the student's current groups.
func (db *DB) SetMembership(studentID string, groupIDs ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if row, ok := db.t.students[studentID]; ok {
		row.groupIDs = groupIDs
		db.t.students[studentID] = row
	}
}

// withGroups must be called with db.mu held.
func (db *DB) withGroups(row studentRow) student.Student {
	s := row.Student
	s.Groups = make([]student.Group, 0, len(row.groupIDs))
	for _, id := range row.groupIDs {
		if g, ok := db.t.groups[id]; ok {
			s.Groups = append(s.Groups, g)
		}
	}
	return s
}

func (dir *studentDirectory) GetStudent(ctx context.Context, id string) (student.Student, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	row, ok := dir.db.t.students[id]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	return dir.db.withGroups(row), nil
}

func (dir *studentDirectory) GetGroup(ctx context.Context, id string) (student.Group, error) {
	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	g, ok := dir.db.t.groups[id]
	if !ok {
		return student.Group{}, student.ErrGroupNotFound
	}
	return g, nil
}

func (dir *studentDirectory) QueryStudents(ctx context.Context, filter student.Filter) ([]student.Student, error) {
	if err := wrapCtx(ctx); err != nil {
		return nil, err
	}

	dir.db.mu.RLock()
	defer dir.db.mu.RUnlock()

	students := make([]student.Student, 0)
	for _, row := range dir.db.t.students {
		s := dir.db.withGroups(row)
		if matchStudent(s, filter) {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Code != students[j].Code {
			return students[i].Code < students[j].Code
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func matchStudent(s student.Student, f student.Filter) bool {
	switch {
	case f.Status != "" && s.Status != f.Status,
		f.Code != "" && !containsFold(s.Code, f.Code),
		f.Name != "" && !containsFold(s.FirstName, f.Name) && !containsFold(s.LastName, f.Name),
		f.GroupID != "" && !s.InGroup(f.GroupID):
		return false
	}
	if f.TeacherID != "" {
		for _, g := range s.Groups {
			if g.TeacherID == f.TeacherID {
				return true
			}
		}
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
