package inmemdb

import (
	"context"

	"github.com/trezcool/pueriangeli/core/coursework"
)

type courseworkRepository struct {
	assignment *table[coursework.Assignment]
	grade      *table[coursework.Grade]
}

var _ coursework.Repository = (*courseworkRepository)(nil) // interface compliance check

func NewCourseworkRepository(db *DB) coursework.Repository {
	return &courseworkRepository{assignment: db.assignment, grade: db.grade}
}

// copyAssignment detaches the document so callers cannot mutate stored rows.
func copyAssignment(a coursework.Assignment) coursework.Assignment {
	if a.Document != nil {
		doc := *a.Document
		a.Document = &doc
	}
	return a
}

func (repo *courseworkRepository) CreateAssignment(_ context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	repo.assignment.Lock()
	defer repo.assignment.Unlock()

	a = copyAssignment(a)
	a.ID = newID(a.ID)
	repo.assignment.rows[a.ID] = &a
	return copyAssignment(a), nil
}

func (repo *courseworkRepository) GetAssignment(_ context.Context, id string) (coursework.Assignment, error) {
	repo.assignment.RLock()
	defer repo.assignment.RUnlock()

	if a, ok := repo.assignment.rows[id]; ok {
		return copyAssignment(*a), nil
	}
	return coursework.Assignment{}, coursework.ErrAssignmentNotFound
}

func (repo *courseworkRepository) QueryAssignments(_ context.Context, filter coursework.AssignmentFilter) ([]coursework.Assignment, error) {
	repo.assignment.RLock()
	defer repo.assignment.RUnlock()

	assignments := repo.assignment.filter(filter.Match)
	for i := range assignments {
		assignments[i] = copyAssignment(assignments[i])
	}
	orderedByCreation(assignments, func(a coursework.Assignment) int64 { return a.CreatedAt.UnixNano() })
	return assignments, nil
}

func (repo *courseworkRepository) UpdateAssignment(_ context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	repo.assignment.Lock()
	defer repo.assignment.Unlock()

	if _, ok := repo.assignment.rows[a.ID]; !ok {
		return coursework.Assignment{}, coursework.ErrAssignmentNotFound
	}
	a = copyAssignment(a)
	repo.assignment.rows[a.ID] = &a
	return copyAssignment(a), nil
}

func (repo *courseworkRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.assignment.Lock()
	defer repo.assignment.Unlock()

	if _, ok := repo.assignment.rows[id]; !ok {
		return coursework.ErrAssignmentNotFound
	}
	delete(repo.assignment.rows, id)

	repo.grade.Lock()
	for gid, g := range repo.grade.rows {
		if g.AssignmentID == id {
			delete(repo.grade.rows, gid)
		}
	}
	repo.grade.Unlock()
	return nil
}

func (repo *courseworkRepository) SaveGrade(_ context.Context, g coursework.Grade) (coursework.Grade, error) {
	repo.grade.Lock()
	defer repo.grade.Unlock()

	for _, existing := range repo.grade.rows {
		if existing.StudentID == g.StudentID && existing.AssignmentID == g.AssignmentID {
			existing.Score = g.Score
			existing.Comment = g.Comment
			existing.UpdatedAt = g.UpdatedAt
			return *existing, nil
		}
	}
	g.ID = newID(g.ID)
	repo.grade.rows[g.ID] = &g
	return g, nil
}

func (repo *courseworkRepository) QueryGrades(_ context.Context, filter coursework.GradeFilter) ([]coursework.Grade, error) {
	repo.grade.RLock()
	defer repo.grade.RUnlock()

	grades := repo.grade.filter(filter.Match)
	orderedByCreation(grades, func(g coursework.Grade) int64 { return g.CreatedAt.UnixNano() })
	return grades, nil
}
