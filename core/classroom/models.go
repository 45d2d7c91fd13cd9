package classroom

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pueriangeli/core"
)

type Class struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Level        string    `json:"level" db:"level"`
	TeacherID    string    `json:"teacher_id" db:"teacher_id"`
	Capacity     int       `json:"capacity" db:"capacity"`
	AcademicYear string    `json:"academic_year" db:"academic_year"`
	StudentIDs   []string  `json:"student_ids" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// IsFull reports whether the class can take no more students. A zero capacity is unlimited.
func (c Class) IsFull() bool {
	return c.Capacity > 0 && len(c.StudentIDs) >= c.Capacity
}

type Student struct {
	ID        string    `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Matricule string    `json:"matricule" db:"matricule"`
	BirthDate time.Time `json:"birth_date" db:"birth_date"`
	ClassID   string    `json:"class_id" db:"class_id"`
	ParentID  string    `json:"parent_id" db:"parent_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (s Student) Name() string { return core.CleanString(s.FirstName + " " + s.LastName) }

type Course struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Code        string    `json:"code" db:"code"`
	Description string    `json:"description" db:"description"`
	ClassID     string    `json:"class_id" db:"class_id"`
	TeacherID   string    `json:"teacher_id" db:"teacher_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name         string `json:"name" validate:"notblank"`
	Level        string `json:"level" validate:"notblank"`
	TeacherID    string `json:"teacher_id" validate:"omitempty,uuid"`
	Capacity     int    `json:"capacity" validate:"capacity"`
	AcademicYear string `json:"academic_year" validate:"required,schoolyear"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Level = core.CleanString(nc.Level)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing Class; empty fields are kept.
type UpdateClass struct {
	Name         string  `json:"name"`
	Level        string  `json:"level"`
	TeacherID    *string `json:"teacher_id" validate:"omitempty,uuid"`
	Capacity     *int    `json:"capacity" validate:"omitempty,capacity"`
	AcademicYear string  `json:"academic_year" validate:"omitempty,schoolyear"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Level = core.CleanString(uc.Level)
	uc.AcademicYear = core.CleanString(uc.AcademicYear)
	if uc.TeacherID != nil && *uc.TeacherID == "" {
		uc.TeacherID = nil
	}
	return validate.Struct(uc)
}

func (uc UpdateClass) apply(cls Class) Class {
	if uc.Name != "" {
		cls.Name = uc.Name
	}
	if uc.Level != "" {
		cls.Level = uc.Level
	}
	if uc.TeacherID != nil {
		cls.TeacherID = *uc.TeacherID
	}
	if uc.Capacity != nil {
		cls.Capacity = *uc.Capacity
	}
	if uc.AcademicYear != "" {
		cls.AcademicYear = uc.AcademicYear
	}
	return cls
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	FirstName string    `json:"first_name" validate:"notblank"`
	LastName  string    `json:"last_name" validate:"notblank"`
	Matricule string    `json:"matricule" validate:"required,code"`
	BirthDate time.Time `json:"birth_date"`
	ClassID   string    `json:"class_id" validate:"omitempty,uuid"`
	ParentID  string    `json:"parent_id" validate:"omitempty,uuid"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Matricule = core.CleanString(ns.Matricule)
	return validate.Struct(ns)
}

type StudentFilter struct {
	Search   string `query:"search"`
	ClassID  string `query:"class_id"`
	ParentID string `query:"parent_id"`
}

// Match reports whether s passes the filter. Search is a case-insensitive match on names or matricule.
func (f StudentFilter) Match(s Student) bool {
	if f.ClassID != "" && s.ClassID != f.ClassID {
		return false
	}
	if f.ParentID != "" && s.ParentID != f.ParentID {
		return false
	}
	if f.Search != "" &&
		!(core.ContainsFold(s.FirstName, f.Search) ||
			core.ContainsFold(s.LastName, f.Search) ||
			core.ContainsFold(s.Matricule, f.Search)) {
		return false
	}
	return true
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name        string `json:"name" validate:"notblank"`
	Code        string `json:"code" validate:"required,code"`
	Description string `json:"description"`
	ClassID     string `json:"class_id" validate:"omitempty,uuid"`
	TeacherID   string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type CourseFilter struct {
	Search    string `query:"search"`
	ClassID   string `query:"class_id"`
	TeacherID string `query:"teacher_id"`
}

// Match reports whether c passes the filter. Search is a case-insensitive match on name or code.
func (f CourseFilter) Match(c Course) bool {
	if f.ClassID != "" && c.ClassID != f.ClassID {
		return false
	}
	if f.TeacherID != "" && c.TeacherID != f.TeacherID {
		return false
	}
	if f.Search != "" && !(core.ContainsFold(c.Name, f.Search) || core.ContainsFold(c.Code, f.Search)) {
		return false
	}
	return true
}

// MatchClass is the class search: a case-insensitive match on name, level or academic year.
func MatchClass(c Class, search string) bool {
	if search == "" {
		return true
	}
	return core.ContainsFold(c.Name, search) ||
		core.ContainsFold(c.Level, search) ||
		core.ContainsFold(c.AcademicYear, search)
}
