package coursework

import (
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pueriangeli/core"
)

type Status uint8

const (
	StatusDraft Status = iota
	StatusPublished
	StatusGraded
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	case StatusGraded:
		return "graded"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draft":
		return StatusDraft, true
	case "published":
		return StatusPublished, true
	case "graded":
		return StatusGraded, true
	default:
		return StatusDraft, false
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	st, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("invalid assignment status %q", text)
	}
	*s = st
	return nil
}

func (s Status) Value() (driver.Value, error) { return s.String(), nil }

func (s *Status) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into coursework.Status", src)
	}
}

// Document is an uploaded file attached to an assignment; Key locates it in the blob store.
type Document struct {
	Key         string `json:"-" db:"doc_key"`
	FileName    string `json:"file_name" db:"doc_file_name"`
	ContentType string `json:"content_type" db:"doc_content_type"`
	Size        int64  `json:"size" db:"doc_size"`
}

func (d *Document) IsZero() bool { return d == nil || d.Key == "" }

type Assignment struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	DueAt     time.Time `json:"due_at"`
	Document  *Document `json:"document,omitempty"`
	Status    Status    `json:"status"`
	MaxScore  int       `json:"max_score"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Grade struct {
	ID           string    `json:"id" db:"id"`
	StudentID    string    `json:"student_id" db:"student_id"`
	AssignmentID string    `json:"assignment_id" db:"assignment_id"`
	Score        float64   `json:"score" db:"score"`
	Comment      string    `json:"comment" db:"comment"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
}

const defaultMaxScore = 20

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	Title    string    `json:"title" form:"title" validate:"notblank"`
	Subject  string    `json:"subject" form:"subject" validate:"notblank"`
	ClassID  string    `json:"class_id" form:"class_id" validate:"required,uuid"`
	DueAt    time.Time `json:"due_at" form:"due_at" validate:"required"`
	MaxScore int       `json:"max_score" form:"max_score" validate:"gte=0"`
	Publish  bool      `json:"publish" form:"publish"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Subject = core.CleanString(na.Subject)
	if na.MaxScore == 0 {
		na.MaxScore = defaultMaxScore
	}
	return validate.Struct(na)
}

// Upload is the document sent along a new assignment.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type AssignmentFilter struct {
	ClassIDs  []string
	TeacherID string
	Status    *Status
}

func (f AssignmentFilter) Match(a Assignment) bool {
	if f.ClassIDs != nil && !contains(f.ClassIDs, a.ClassID) {
		return false
	}
	if f.TeacherID != "" && a.TeacherID != f.TeacherID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	return true
}

// NewGrade contains the score a teacher gives a student for an assignment.
type NewGrade struct {
	StudentID    string  `json:"student_id" validate:"required,uuid"`
	AssignmentID string  `json:"assignment_id" validate:"required,uuid"`
	Score        float64 `json:"score" validate:"gte=0"`
	Comment      string  `json:"comment"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.Comment = core.CleanString(ng.Comment)
	return validate.Struct(ng)
}

type GradeFilter struct {
	StudentIDs   []string
	AssignmentID string
}

func (f GradeFilter) Match(g Grade) bool {
	if f.StudentIDs != nil && !contains(f.StudentIDs, g.StudentID) {
		return false
	}
	if f.AssignmentID != "" && g.AssignmentID != f.AssignmentID {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
