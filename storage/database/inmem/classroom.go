package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/pueriangeli/core/classroom"
)

type classroomRepository struct {
	class   *table[classroom.Class]
	student *table[classroom.Student]
	course  *table[classroom.Course]
}

var _ classroom.Repository = (*classroomRepository)(nil) // interface compliance check

func NewClassroomRepository(db *DB) classroom.Repository {
	return &classroomRepository{class: db.class, student: db.student, course: db.course}
}

func (repo *classroomRepository) CreateClass(_ context.Context, cls classroom.Class) (classroom.Class, error) {
	repo.class.Lock()
	defer repo.class.Unlock()

	cls.ID = newID(cls.ID)
	cls.StudentIDs = nil
	repo.class.rows[cls.ID] = &cls
	cls.StudentIDs = []string{}
	return cls, nil
}

func (repo *classroomRepository) GetClass(_ context.Context, id string) (classroom.Class, error) {
	repo.class.RLock()
	defer repo.class.RUnlock()

	cls, ok := repo.class.rows[id]
	if !ok {
		return classroom.Class{}, classroom.ErrClassNotFound
	}
	repo.student.RLock()
	defer repo.student.RUnlock()
	return repo.enrolled(map[string]*classroom.Class{cls.ID: cls})[0], nil
}

func (repo *classroomRepository) QueryClasses(_ context.Context, search string) ([]classroom.Class, error) {
	repo.class.RLock()
	defer repo.class.RUnlock()

	matched := make(map[string]*classroom.Class)
	for id, c := range repo.class.rows {
		if classroom.MatchClass(*c, search) {
			matched[id] = c
		}
	}
	repo.student.RLock()
	defer repo.student.RUnlock()
	classes := repo.enrolled(matched)
	orderedByCreation(classes, func(c classroom.Class) int64 { return c.CreatedAt.UnixNano() })
	return classes, nil
}

// enrolled copies classes with their StudentIDs filled in one pass over the students, newest first.
// The caller holds the class and student read locks.
func (repo *classroomRepository) enrolled(classes map[string]*classroom.Class) []classroom.Class {
	students := make([]classroom.Student, 0)
	for _, s := range repo.student.rows {
		if _, ok := classes[s.ClassID]; ok {
			students = append(students, *s)
		}
	}
	orderedByCreation(students, func(s classroom.Student) int64 { return s.CreatedAt.UnixNano() })

	ids := make(map[string][]string, len(classes))
	for _, s := range students {
		ids[s.ClassID] = append(ids[s.ClassID], s.ID)
	}
	out := make([]classroom.Class, 0, len(classes))
	for id, c := range classes {
		cls := *c
		cls.StudentIDs = append([]string{}, ids[id]...)
		out = append(out, cls)
	}
	return out
}

func (repo *classroomRepository) UpdateClass(_ context.Context, cls classroom.Class) (classroom.Class, error) {
	repo.class.Lock()
	defer repo.class.Unlock()

	if _, ok := repo.class.rows[cls.ID]; !ok {
		return classroom.Class{}, classroom.ErrClassNotFound
	}
	cls.StudentIDs = nil
	repo.class.rows[cls.ID] = &cls
	return cls, nil
}

func (repo *classroomRepository) DeleteClass(_ context.Context, id string) error {
	repo.class.Lock()
	defer repo.class.Unlock()

	if _, ok := repo.class.rows[id]; !ok {
		return classroom.ErrClassNotFound
	}
	delete(repo.class.rows, id)

	repo.student.Lock()
	for _, s := range repo.student.rows {
		if s.ClassID == id {
			s.ClassID = ""
		}
	}
	repo.student.Unlock()

	repo.course.Lock()
	for _, c := range repo.course.rows {
		if c.ClassID == id {
			c.ClassID = ""
		}
	}
	repo.course.Unlock()
	return nil
}

func (repo *classroomRepository) CheckMatriculeUniqueness(_ context.Context, matricule string) error {
	repo.student.RLock()
	defer repo.student.RUnlock()

	for _, s := range repo.student.rows {
		if s.Matricule == matricule {
			return classroom.ErrMatriculeExists
		}
	}
	return nil
}

func (repo *classroomRepository) CreateStudent(_ context.Context, s classroom.Student) (classroom.Student, error) {
	repo.student.Lock()
	defer repo.student.Unlock()

	for _, other := range repo.student.rows {
		if other.Matricule == s.Matricule {
			return classroom.Student{}, classroom.ErrMatriculeExists
		}
	}
	s.ID = newID(s.ID)
	repo.student.rows[s.ID] = &s
	return s, nil
}

func (repo *classroomRepository) GetStudent(_ context.Context, id string) (classroom.Student, error) {
	repo.student.RLock()
	defer repo.student.RUnlock()

	if s, ok := repo.student.rows[id]; ok {
		return *s, nil
	}
	return classroom.Student{}, classroom.ErrStudentNotFound
}

func (repo *classroomRepository) QueryStudents(_ context.Context, filter classroom.StudentFilter) ([]classroom.Student, error) {
	repo.student.RLock()
	defer repo.student.RUnlock()

	students := repo.student.filter(filter.Match)
	orderedByCreation(students, func(s classroom.Student) int64 { return s.CreatedAt.UnixNano() })
	return students, nil
}

func (repo *classroomRepository) UpdateStudent(_ context.Context, s classroom.Student) (classroom.Student, error) {
	repo.student.Lock()
	defer repo.student.Unlock()

	if _, ok := repo.student.rows[s.ID]; !ok {
		return classroom.Student{}, classroom.ErrStudentNotFound
	}
	repo.student.rows[s.ID] = &s
	return s, nil
}

// EnrolStudent counts and moves under both table locks so concurrent enrolments cannot overfill a class.
func (repo *classroomRepository) EnrolStudent(_ context.Context, studentID, classID string, at time.Time) (classroom.Student, error) {
	repo.class.RLock()
	defer repo.class.RUnlock()
	repo.student.Lock()
	defer repo.student.Unlock()

	cls, ok := repo.class.rows[classID]
	if !ok {
		return classroom.Student{}, classroom.ErrClassNotFound
	}
	s, ok := repo.student.rows[studentID]
	if !ok {
		return classroom.Student{}, classroom.ErrStudentNotFound
	}
	if s.ClassID == classID {
		return *s, nil
	}
	if cls.Capacity > 0 {
		count := 0
		for _, other := range repo.student.rows {
			if other.ClassID == classID {
				count++
			}
		}
		if count >= cls.Capacity {
			return classroom.Student{}, classroom.ErrClassFull
		}
	}
	moved := *s
	moved.ClassID = classID
	moved.UpdatedAt = at
	repo.student.rows[studentID] = &moved
	return moved, nil
}

func (repo *classroomRepository) DeleteStudent(_ context.Context, id string) error {
	repo.student.Lock()
	defer repo.student.Unlock()

	if _, ok := repo.student.rows[id]; !ok {
		return classroom.ErrStudentNotFound
	}
	delete(repo.student.rows, id)
	return nil
}

func (repo *classroomRepository) CheckCourseCodeUniqueness(_ context.Context, code string) error {
	repo.course.RLock()
	defer repo.course.RUnlock()

	for _, c := range repo.course.rows {
		if c.Code == code {
			return classroom.ErrCodeExists
		}
	}
	return nil
}

func (repo *classroomRepository) CreateCourse(_ context.Context, c classroom.Course) (classroom.Course, error) {
	repo.course.Lock()
	defer repo.course.Unlock()

	for _, other := range repo.course.rows {
		if other.Code == c.Code {
			return classroom.Course{}, classroom.ErrCodeExists
		}
	}
	c.ID = newID(c.ID)
	repo.course.rows[c.ID] = &c
	return c, nil
}

func (repo *classroomRepository) GetCourse(_ context.Context, id string) (classroom.Course, error) {
	repo.course.RLock()
	defer repo.course.RUnlock()

	if c, ok := repo.course.rows[id]; ok {
		return *c, nil
	}
	return classroom.Course{}, classroom.ErrCourseNotFound
}

func (repo *classroomRepository) QueryCourses(_ context.Context, filter classroom.CourseFilter) ([]classroom.Course, error) {
	repo.course.RLock()
	defer repo.course.RUnlock()

	courses := repo.course.filter(filter.Match)
	orderedByCreation(courses, func(c classroom.Course) int64 { return c.CreatedAt.UnixNano() })
	return courses, nil
}

func (repo *classroomRepository) DeleteCourse(_ context.Context, id string) error {
	repo.course.Lock()
	defer repo.course.Unlock()

	if _, ok := repo.course.rows[id]; !ok {
		return classroom.ErrCourseNotFound
	}
	delete(repo.course.rows, id)
	return nil
}
