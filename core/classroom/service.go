package classroom

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/user"
)

var (
	// errors
	ErrClassNotFound   = errors.New("class not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrCourseNotFound  = errors.New("course not found")
	ErrClassFull       = errors.New("class is full")
	ErrCodeExists      = errors.New("a course with this code already exists")
	ErrMatriculeExists = errors.New("a student with this matricule already exists")

	errNotTeacher = "user is not a teacher"
	errNotParent  = "user is not a parent"
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// GetClass and QueryClasses fill StudentIDs.
		GetClass(ctx context.Context, id string) (Class, error)
		QueryClasses(ctx context.Context, search string) ([]Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		// DeleteClass removes the class and unassigns its students.
		DeleteClass(ctx context.Context, id string) error

		CheckMatriculeUniqueness(ctx context.Context, matricule string) error
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		// EnrolStudent moves a student into a class, counting the enrolled students and writing the move
		// atomically. It returns ErrClassFull when the class has no seat left.
		EnrolStudent(ctx context.Context, studentID, classID string, at time.Time) (Student, error)
		DeleteStudent(ctx context.Context, id string) error

		CheckCourseCodeUniqueness(ctx context.Context, code string) error
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error)
		DeleteCourse(ctx context.Context, id string) error
	}

	// UserGetter finds the users classes and students refer to.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		CreateClass(ctx context.Context, nc NewClass) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		QueryClasses(ctx context.Context, search string) ([]Class, error)
		UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error)
		DeleteClass(ctx context.Context, id string) error

		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
		AssignStudent(ctx context.Context, studentID, classID string) (Student, error)
		RemoveStudent(ctx context.Context, studentID string) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
		StudentsOfParent(ctx context.Context, parentID string) ([]Student, error)

		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error)
		DeleteCourse(ctx context.Context, id string) error
	}

	service struct {
		repo  Repository
		users UserGetter
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserGetter) Service {
	return &service{repo: repo, users: users}
}

// checkUser verifies that id refers to a user accepted by ok; field names the offending input.
func (svc *service) checkUser(ctx context.Context, id, field, msg string, ok func(user.Role) bool) error {
	if id == "" {
		return nil
	}
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		if pkgerrors.Cause(err) == user.ErrNotFound {
			return core.InvalidField(field, msg)
		}
		return pkgerrors.Wrap(err, "finding user by ID")
	}
	if !ok(usr.Role) {
		return core.InvalidField(field, msg)
	}
	return nil
}

func isTeacher(r user.Role) bool { return r.Satisfies(user.RoleTeacher) }
func isParent(r user.Role) bool  { return r.In(user.RoleParent) }

func (svc *service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	if err := svc.checkUser(ctx, nc.TeacherID, "teacher_id", errNotTeacher, isTeacher); err != nil {
		return Class{}, err
	}
	now := time.Now().UTC()
	cls, err := svc.repo.CreateClass(ctx, Class{
		Name:         nc.Name,
		Level:        nc.Level,
		TeacherID:    nc.TeacherID,
		Capacity:     nc.Capacity,
		AcademicYear: nc.AcademicYear,
		StudentIDs:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Class{}, pkgerrors.Wrap(err, "creating class")
	}
	return cls, nil
}

func (svc *service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) QueryClasses(ctx context.Context, search string) ([]Class, error) {
	classes, err := svc.repo.QueryClasses(ctx, core.CleanString(search))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (svc *service) UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if uc.TeacherID != nil {
		if err := svc.checkUser(ctx, *uc.TeacherID, "teacher_id", errNotTeacher, isTeacher); err != nil {
			return Class{}, err
		}
	}
	if uc.Capacity != nil && *uc.Capacity > 0 && *uc.Capacity < len(cls.StudentIDs) {
		return Class{}, core.InvalidField("capacity", "capacity is lower than the number of enrolled students")
	}
	students := cls.StudentIDs
	cls = uc.apply(cls)
	cls.UpdatedAt = time.Now().UTC()
	if cls, err = svc.repo.UpdateClass(ctx, cls); err != nil {
		return Class{}, pkgerrors.Wrap(err, "updating class")
	}
	cls.StudentIDs = students
	return cls, nil
}

func (svc *service) DeleteClass(ctx context.Context, id string) error {
	return svc.repo.DeleteClass(ctx, id)
}

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.repo.CheckMatriculeUniqueness(ctx, ns.Matricule); err != nil {
		if err == ErrMatriculeExists {
			return Student{}, core.NewFieldError("matricule", err)
		}
		return Student{}, pkgerrors.Wrap(err, "checking matricule uniqueness")
	}
	if err := svc.checkUser(ctx, ns.ParentID, "parent_id", errNotParent, isParent); err != nil {
		return Student{}, err
	}
	if ns.ClassID != "" {
		if err := svc.checkCapacity(ctx, ns.ClassID); err != nil {
			return Student{}, err
		}
	}

	now := time.Now().UTC()
	s, err := svc.repo.CreateStudent(ctx, Student{
		FirstName: ns.FirstName,
		LastName:  ns.LastName,
		Matricule: ns.Matricule,
		BirthDate: ns.BirthDate.UTC(),
		ParentID:  ns.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Student{}, pkgerrors.Wrap(err, "creating student")
	}
	if ns.ClassID == "" {
		return s, nil
	}

	// the seat is only taken by the enrolment; a student that could not get one is not kept
	enrolled, err := svc.repo.EnrolStudent(ctx, s.ID, ns.ClassID, now)
	if err != nil {
		if delErr := svc.repo.DeleteStudent(ctx, s.ID); delErr != nil {
			return Student{}, pkgerrors.Wrap(delErr, "discarding unenrolled student")
		}
		return Student{}, enrolmentError(err)
	}
	return enrolled, nil
}

// checkCapacity rejects early a class that is missing or already full. EnrolStudent re-checks atomically.
func (svc *service) checkCapacity(ctx context.Context, classID string) error {
	cls, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return enrolmentError(err)
	}
	if cls.IsFull() {
		return enrolmentError(ErrClassFull)
	}
	return nil
}

func enrolmentError(err error) error {
	switch cause := pkgerrors.Cause(err); cause {
	case ErrClassNotFound, ErrClassFull:
		return core.NewFieldError("class_id", cause)
	}
	return err
}

func (svc *service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *service) QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryStudents(ctx, filter)
}

// AssignStudent moves a student into a class, leaving any previous one.
func (svc *service) AssignStudent(ctx context.Context, studentID, classID string) (Student, error) {
	s, err := svc.repo.EnrolStudent(ctx, studentID, classID, time.Now().UTC())
	if err != nil {
		return Student{}, enrolmentError(err)
	}
	return s, nil
}

func (svc *service) RemoveStudent(ctx context.Context, studentID string) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return Student{}, err
	}
	if s.ClassID == "" {
		return s, nil
	}
	s.ClassID = ""
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}

func (svc *service) DeleteStudent(ctx context.Context, id string) error {
	return svc.repo.DeleteStudent(ctx, id)
}

func (svc *service) StudentsOfParent(ctx context.Context, parentID string) ([]Student, error) {
	if parentID == "" {
		return []Student{}, nil
	}
	return svc.repo.QueryStudents(ctx, StudentFilter{ParentID: parentID})
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.repo.CheckCourseCodeUniqueness(ctx, nc.Code); err != nil {
		if err == ErrCodeExists {
			return Course{}, core.NewFieldError("code", err)
		}
		return Course{}, pkgerrors.Wrap(err, "checking course code uniqueness")
	}
	if err := svc.checkUser(ctx, nc.TeacherID, "teacher_id", errNotTeacher, isTeacher); err != nil {
		return Course{}, err
	}
	if nc.ClassID != "" {
		if _, err := svc.repo.GetClass(ctx, nc.ClassID); err != nil {
			if err == ErrClassNotFound {
				return Course{}, core.NewFieldError("class_id", err)
			}
			return Course{}, pkgerrors.Wrap(err, "finding class")
		}
	}

	now := time.Now().UTC()
	c, err := svc.repo.CreateCourse(ctx, Course{
		Name:        nc.Name,
		Code:        nc.Code,
		Description: nc.Description,
		ClassID:     nc.ClassID,
		TeacherID:   nc.TeacherID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Course{}, pkgerrors.Wrap(err, "creating course")
	}
	return c, nil
}

func (svc *service) QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryCourses(ctx, filter)
}

func (svc *service) DeleteCourse(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}
