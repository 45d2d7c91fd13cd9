package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core/coursework"
)

const (
	assignmentColumns = `id, title, subject, class_id, COALESCE(teacher_id::text, '') AS teacher_id, due_at, status,
		max_score, doc_key, doc_file_name, doc_content_type, doc_size, created_at, updated_at`

	gradeColumns = `id, student_id, assignment_id, score, comment, created_at, updated_at`
)

type assignmentRow struct {
	ID        string            `db:"id"`
	Title     string            `db:"title"`
	Subject   string            `db:"subject"`
	ClassID   string            `db:"class_id"`
	TeacherID string            `db:"teacher_id"`
	DueAt     time.Time         `db:"due_at"`
	Status    coursework.Status `db:"status"`
	MaxScore  int               `db:"max_score"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`
	coursework.Document
}

func toAssignmentRow(a coursework.Assignment) assignmentRow {
	row := assignmentRow{
		ID:        a.ID,
		Title:     a.Title,
		Subject:   a.Subject,
		ClassID:   a.ClassID,
		TeacherID: a.TeacherID,
		DueAt:     a.DueAt.UTC(),
		Status:    a.Status,
		MaxScore:  a.MaxScore,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
	if a.Document != nil {
		row.Document = *a.Document
	}
	return row
}

func (r assignmentRow) assignment() coursework.Assignment {
	a := coursework.Assignment{
		ID:        r.ID,
		Title:     r.Title,
		Subject:   r.Subject,
		ClassID:   r.ClassID,
		TeacherID: r.TeacherID,
		DueAt:     r.DueAt.UTC(),
		Status:    r.Status,
		MaxScore:  r.MaxScore,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.Document.Key != "" {
		doc := r.Document
		a.Document = &doc
	}
	return a
}

type courseworkRepository struct {
	db *sqlx.DB
}

var _ coursework.Repository = (*courseworkRepository)(nil) // interface compliance check

func NewCourseworkRepository(db *sqlx.DB) coursework.Repository {
	return &courseworkRepository{db: db}
}

func (repo *courseworkRepository) CreateAssignment(ctx context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	a.ID = newID(a.ID)
	row := toAssignmentRow(a)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO assignment (id, title, subject, class_id, teacher_id, due_at, status, max_score,
			doc_key, doc_file_name, doc_content_type, doc_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.ID, row.Title, row.Subject, row.ClassID, nullString(row.TeacherID), row.DueAt, row.Status, row.MaxScore,
		row.Key, row.FileName, row.ContentType, row.Size, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return coursework.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo *courseworkRepository) GetAssignment(ctx context.Context, id string) (coursework.Assignment, error) {
	var row assignmentRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+assignmentColumns+` FROM assignment WHERE id::text = $1`, id)
	if err == sql.ErrNoRows {
		return coursework.Assignment{}, coursework.ErrAssignmentNotFound
	}
	if err != nil {
		return coursework.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.assignment(), nil
}

func (repo *courseworkRepository) QueryAssignments(ctx context.Context, filter coursework.AssignmentFilter) ([]coursework.Assignment, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ClassIDs != nil {
		where = append(where, "class_id::text = ANY("+arg(pq.Array(filter.ClassIDs))+")")
	}
	if filter.TeacherID != "" {
		where = append(where, "teacher_id::text = "+arg(filter.TeacherID))
	}
	if filter.Status != nil {
		where = append(where, "status = "+arg(*filter.Status))
	}

	q := `SELECT ` + assignmentColumns + ` FROM assignment`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	var rows []assignmentRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]coursework.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.assignment())
	}
	return assignments, nil
}

func (repo *courseworkRepository) UpdateAssignment(ctx context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	row := toAssignmentRow(a)
	res, err := repo.db.ExecContext(ctx,
		`UPDATE assignment SET title = $2, subject = $3, class_id = $4, teacher_id = $5, due_at = $6, status = $7,
			max_score = $8, doc_key = $9, doc_file_name = $10, doc_content_type = $11, doc_size = $12, updated_at = $13
		WHERE id = $1`,
		row.ID, row.Title, row.Subject, row.ClassID, nullString(row.TeacherID), row.DueAt, row.Status, row.MaxScore,
		row.Key, row.FileName, row.ContentType, row.Size, row.UpdatedAt,
	)
	if err != nil {
		return coursework.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coursework.Assignment{}, coursework.ErrAssignmentNotFound
	}
	return a, nil
}

// DeleteAssignment relies on ON DELETE CASCADE to drop its grades.
func (repo *courseworkRepository) DeleteAssignment(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "assignment", id, coursework.ErrAssignmentNotFound)
}

func (repo *courseworkRepository) SaveGrade(ctx context.Context, g coursework.Grade) (coursework.Grade, error) {
	g.ID = newID(g.ID)
	q := `INSERT INTO grade (` + gradeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, assignment_id)
		DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
		RETURNING ` + gradeColumns

	var saved coursework.Grade
	err := repo.db.GetContext(ctx, &saved, q,
		g.ID, g.StudentID, g.AssignmentID, g.Score, g.Comment, g.CreatedAt.UTC(), g.UpdatedAt.UTC(),
	)
	if err != nil {
		return coursework.Grade{}, errors.Wrap(err, "saving grade")
	}
	saved.CreatedAt = saved.CreatedAt.UTC()
	saved.UpdatedAt = saved.UpdatedAt.UTC()
	return saved, nil
}

func (repo *courseworkRepository) QueryGrades(ctx context.Context, filter coursework.GradeFilter) ([]coursework.Grade, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.StudentIDs != nil {
		where = append(where, "student_id::text = ANY("+arg(pq.Array(filter.StudentIDs))+")")
	}
	if filter.AssignmentID != "" {
		where = append(where, "assignment_id::text = "+arg(filter.AssignmentID))
	}

	q := `SELECT ` + gradeColumns + ` FROM grade`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	grades := make([]coursework.Grade, 0)
	if err := repo.db.SelectContext(ctx, &grades, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	return grades, nil
}
