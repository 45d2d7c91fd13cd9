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

	"github.com/trezcool/pueriangeli/core/classroom"
)

const (
	// classSelect aggregates the enrolled students of every class in the same query, newest first.
	classSelect = `SELECT class.id, class.name, class.level, COALESCE(class.teacher_id::text, '') AS teacher_id,
		class.capacity, class.academic_year, class.created_at, class.updated_at,
		COALESCE(array_agg(student.id::text ORDER BY student.created_at DESC) FILTER (WHERE student.id IS NOT NULL), '{}')
			AS student_ids
		FROM class LEFT JOIN student ON student.class_id = class.id`

	studentColumns = `id, first_name, last_name, matricule, COALESCE(birth_date, 'epoch'::date) AS birth_date,
		COALESCE(class_id::text, '') AS class_id, COALESCE(parent_id::text, '') AS parent_id, created_at, updated_at`

	courseColumns = `id, name, code, description, COALESCE(class_id::text, '') AS class_id,
		COALESCE(teacher_id::text, '') AS teacher_id, created_at, updated_at`
)

var epoch = time.Unix(0, 0).UTC()

type (
	classRow struct {
		classroom.Class
		StudentIDs pq.StringArray `db:"student_ids"`
	}

	classroomRepository struct {
		db *sqlx.DB
	}
)

func (r classRow) class() classroom.Class {
	cls := r.Class
	cls.StudentIDs = append([]string{}, r.StudentIDs...)
	return cls
}

var _ classroom.Repository = (*classroomRepository)(nil) // interface compliance check

func NewClassroomRepository(db *sqlx.DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func (repo *classroomRepository) CreateClass(ctx context.Context, cls classroom.Class) (classroom.Class, error) {
	cls.ID = newID(cls.ID)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO class (id, name, level, teacher_id, capacity, academic_year, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cls.ID, cls.Name, cls.Level, nullString(cls.TeacherID), cls.Capacity, cls.AcademicYear,
		cls.CreatedAt.UTC(), cls.UpdatedAt.UTC(),
	)
	if err != nil {
		return classroom.Class{}, errors.Wrap(err, "inserting class")
	}
	cls.StudentIDs = []string{}
	return cls, nil
}

func (repo *classroomRepository) GetClass(ctx context.Context, id string) (classroom.Class, error) {
	var row classRow
	err := repo.db.GetContext(ctx, &row, classSelect+` WHERE class.id::text = $1 GROUP BY class.id`, id)
	if err == sql.ErrNoRows {
		return classroom.Class{}, classroom.ErrClassNotFound
	}
	if err != nil {
		return classroom.Class{}, errors.Wrap(err, "getting class")
	}
	return row.class(), nil
}

func (repo *classroomRepository) QueryClasses(ctx context.Context, search string) ([]classroom.Class, error) {
	q := classSelect
	var args []interface{}
	if search != "" {
		q += ` WHERE class.name ILIKE $1 OR class.level ILIKE $1 OR class.academic_year ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	q += ` GROUP BY class.id ORDER BY class.created_at DESC`

	rows := make([]classRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]classroom.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo *classroomRepository) UpdateClass(ctx context.Context, cls classroom.Class) (classroom.Class, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE class SET name = $2, level = $3, teacher_id = $4, capacity = $5, academic_year = $6, updated_at = $7
		WHERE id = $1`,
		cls.ID, cls.Name, cls.Level, nullString(cls.TeacherID), cls.Capacity, cls.AcademicYear, cls.UpdatedAt.UTC(),
	)
	if err != nil {
		return classroom.Class{}, errors.Wrap(err, "updating class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classroom.Class{}, classroom.ErrClassNotFound
	}
	return cls, nil
}

// DeleteClass relies on ON DELETE SET NULL to unassign students and courses.
func (repo *classroomRepository) DeleteClass(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "class", id, classroom.ErrClassNotFound)
}

func (repo *classroomRepository) CheckMatriculeUniqueness(ctx context.Context, matricule string) error {
	var count int
	if err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM student WHERE matricule = $1`, matricule); err != nil {
		return errors.Wrap(err, "checking matricule uniqueness")
	}
	if count > 0 {
		return classroom.ErrMatriculeExists
	}
	return nil
}

func (repo *classroomRepository) CreateStudent(ctx context.Context, s classroom.Student) (classroom.Student, error) {
	s.ID = newID(s.ID)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO student (id, first_name, last_name, matricule, birth_date, class_id, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.FirstName, s.LastName, s.Matricule, nullTime(s.BirthDate), nullString(s.ClassID), nullString(s.ParentID),
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return classroom.Student{}, classroom.ErrMatriculeExists
		}
		return classroom.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func scanStudent(s classroom.Student) classroom.Student {
	if s.BirthDate.Equal(epoch) {
		s.BirthDate = time.Time{}
	}
	return s
}

func (repo *classroomRepository) GetStudent(ctx context.Context, id string) (classroom.Student, error) {
	var s classroom.Student
	err := repo.db.GetContext(ctx, &s, `SELECT `+studentColumns+` FROM student WHERE id::text = $1`, id)
	if err == sql.ErrNoRows {
		return classroom.Student{}, classroom.ErrStudentNotFound
	}
	return scanStudent(s), errors.Wrap(err, "getting student")
}

func (repo *classroomRepository) QueryStudents(ctx context.Context, filter classroom.StudentFilter) ([]classroom.Student, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, "(first_name ILIKE "+p+" OR last_name ILIKE "+p+" OR matricule ILIKE "+p+")")
	}
	if filter.ClassID != "" {
		where = append(where, "class_id::text = "+arg(filter.ClassID))
	}
	if filter.ParentID != "" {
		where = append(where, "parent_id::text = "+arg(filter.ParentID))
	}

	q := `SELECT ` + studentColumns + ` FROM student`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	students := make([]classroom.Student, 0)
	if err := repo.db.SelectContext(ctx, &students, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	for i := range students {
		students[i] = scanStudent(students[i])
	}
	return students, nil
}

func (repo *classroomRepository) UpdateStudent(ctx context.Context, s classroom.Student) (classroom.Student, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE student SET first_name = $2, last_name = $3, matricule = $4, birth_date = $5, class_id = $6,
		parent_id = $7, updated_at = $8 WHERE id = $1`,
		s.ID, s.FirstName, s.LastName, s.Matricule, nullTime(s.BirthDate), nullString(s.ClassID), nullString(s.ParentID),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return classroom.Student{}, classroom.ErrMatriculeExists
		}
		return classroom.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classroom.Student{}, classroom.ErrStudentNotFound
	}
	return s, nil
}

// EnrolStudent locks the class row for the rest of the transaction, so enrolments into one class are serialized
// and the count cannot go stale before the update.
func (repo *classroomRepository) EnrolStudent(ctx context.Context, studentID, classID string, at time.Time) (classroom.Student, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return classroom.Student{}, errors.Wrap(err, "starting enrolment")
	}
	defer func() { _ = tx.Rollback() }()

	var capacity int
	err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM class WHERE id::text = $1 FOR UPDATE`, classID)
	if err == sql.ErrNoRows {
		return classroom.Student{}, classroom.ErrClassNotFound
	}
	if err != nil {
		return classroom.Student{}, errors.Wrap(err, "locking class")
	}

	var s classroom.Student
	err = tx.GetContext(ctx, &s, `SELECT `+studentColumns+` FROM student WHERE id::text = $1 FOR UPDATE`, studentID)
	if err == sql.ErrNoRows {
		return classroom.Student{}, classroom.ErrStudentNotFound
	}
	if err != nil {
		return classroom.Student{}, errors.Wrap(err, "locking student")
	}
	s = scanStudent(s)
	if s.ClassID == classID {
		return s, nil
	}

	if capacity > 0 {
		var count int
		if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM student WHERE class_id::text = $1`, classID); err != nil {
			return classroom.Student{}, errors.Wrap(err, "counting enrolled students")
		}
		if count >= capacity {
			return classroom.Student{}, classroom.ErrClassFull
		}
	}

	s.ClassID = classID
	s.UpdatedAt = at.UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE student SET class_id = $2, updated_at = $3 WHERE id = $1`,
		s.ID, s.ClassID, s.UpdatedAt); err != nil {
		return classroom.Student{}, errors.Wrap(err, "enrolling student")
	}
	if err = tx.Commit(); err != nil {
		return classroom.Student{}, errors.Wrap(err, "committing enrolment")
	}
	return s, nil
}

func (repo *classroomRepository) DeleteStudent(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "student", id, classroom.ErrStudentNotFound)
}

func (repo *classroomRepository) CheckCourseCodeUniqueness(ctx context.Context, code string) error {
	var count int
	if err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM course WHERE code = $1`, code); err != nil {
		return errors.Wrap(err, "checking course code uniqueness")
	}
	if count > 0 {
		return classroom.ErrCodeExists
	}
	return nil
}

func (repo *classroomRepository) CreateCourse(ctx context.Context, c classroom.Course) (classroom.Course, error) {
	c.ID = newID(c.ID)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course (id, name, code, description, class_id, teacher_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Code, c.Description, nullString(c.ClassID), nullString(c.TeacherID),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return classroom.Course{}, classroom.ErrCodeExists
		}
		return classroom.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *classroomRepository) GetCourse(ctx context.Context, id string) (classroom.Course, error) {
	var c classroom.Course
	err := repo.db.GetContext(ctx, &c, `SELECT `+courseColumns+` FROM course WHERE id::text = $1`, id)
	if err == sql.ErrNoRows {
		return classroom.Course{}, classroom.ErrCourseNotFound
	}
	return c, errors.Wrap(err, "getting course")
}

func (repo *classroomRepository) QueryCourses(ctx context.Context, filter classroom.CourseFilter) ([]classroom.Course, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR code ILIKE "+p+")")
	}
	if filter.ClassID != "" {
		where = append(where, "class_id::text = "+arg(filter.ClassID))
	}
	if filter.TeacherID != "" {
		where = append(where, "teacher_id::text = "+arg(filter.TeacherID))
	}

	q := `SELECT ` + courseColumns + ` FROM course`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	courses := make([]classroom.Course, 0)
	if err := repo.db.SelectContext(ctx, &courses, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

func (repo *classroomRepository) DeleteCourse(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "course", id, classroom.ErrCourseNotFound)
}

// deleteByID deletes the row id of table, returning notFound when there is none. table is never user input.
func deleteByID(ctx context.Context, db *sqlx.DB, table, id string, notFound error) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+pq.QuoteIdentifier(table)+` WHERE id::text = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting "+table)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}
