package coursework

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/user"
)

var (
	// errors
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrNoDocument         = errors.New("assignment has no document")
	ErrNotPublished       = errors.New("assignment is not published")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error

		// SaveGrade inserts g, or updates the grade of the same student and assignment.
		SaveGrade(ctx context.Context, g Grade) (Grade, error)
		QueryGrades(ctx context.Context, filter GradeFilter) ([]Grade, error)
	}

	// Classes is the part of the classroom service coursework relies on.
	Classes interface {
		GetClass(ctx context.Context, id string) (classroom.Class, error)
		GetStudent(ctx context.Context, id string) (classroom.Student, error)
		StudentsOfParent(ctx context.Context, parentID string) ([]classroom.Student, error)
	}

	Service interface {
		CreateAssignment(ctx context.Context, teacherID string, na NewAssignment, doc *Upload) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
		Publish(ctx context.Context, id string) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error
		OpenDocument(ctx context.Context, id string) (Document, io.ReadCloser, error)

		RecordGrade(ctx context.Context, ng NewGrade) (Grade, error)
		QueryGrades(ctx context.Context, filter GradeFilter) ([]Grade, error)

		ForParent(ctx context.Context, parentID string) ([]Assignment, error)
		GradesForParent(ctx context.Context, parentID string) ([]Grade, error)
	}

	service struct {
		repo    Repository
		classes Classes
		blobs   core.BlobStore
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, classes Classes, blobs core.BlobStore) Service {
	return &service{repo: repo, classes: classes, blobs: blobs}
}

// CanManage reports whether a user may change an assignment: its author or an admin.
func CanManage(a Assignment, userID string, role user.Role) bool {
	return role.Satisfies(user.RoleAdmin) || (role.Satisfies(user.RoleTeacher) && a.TeacherID == userID)
}

func documentKey(assignmentID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "document"
	}
	return path.Join("assignments", assignmentID, name)
}

func (svc *service) CreateAssignment(ctx context.Context, teacherID string, na NewAssignment, doc *Upload) (Assignment, error) {
	if _, err := svc.classes.GetClass(ctx, na.ClassID); err != nil {
		if err == classroom.ErrClassNotFound {
			return Assignment{}, core.NewFieldError("class_id", err)
		}
		return Assignment{}, pkgerrors.Wrap(err, "finding class")
	}

	now := time.Now().UTC()
	a := Assignment{
		ID:        uuid.NewString(),
		Title:     na.Title,
		Subject:   na.Subject,
		ClassID:   na.ClassID,
		TeacherID: teacherID,
		DueAt:     na.DueAt.UTC(),
		Status:    StatusDraft,
		MaxScore:  na.MaxScore,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if na.Publish {
		a.Status = StatusPublished
	}

	if doc != nil && doc.Content != nil {
		d := Document{
			Key:         documentKey(a.ID, doc.FileName),
			FileName:    path.Base(doc.FileName),
			ContentType: doc.ContentType,
			Size:        doc.Size,
		}
		if d.ContentType == "" {
			d.ContentType = "application/octet-stream"
		}
		if err := svc.blobs.Put(ctx, d.Key, doc.Content, doc.Size, d.ContentType); err != nil {
			return Assignment{}, pkgerrors.Wrap(err, "storing document")
		}
		a.Document = &d
	}

	created, err := svc.repo.CreateAssignment(ctx, a)
	if err != nil {
		if a.Document != nil {
			_ = svc.blobs.Delete(ctx, a.Document.Key)
		}
		return Assignment{}, pkgerrors.Wrap(err, "creating assignment")
	}
	return created, nil
}

func (svc *service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *service) QueryAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, filter)
}

func (svc *service) Publish(ctx context.Context, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if a.Status != StatusDraft {
		return a, nil
	}
	a.Status = StatusPublished
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

// DeleteAssignment removes the assignment, its grades and its document.
func (svc *service) DeleteAssignment(ctx context.Context, id string) error {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteAssignment(ctx, id); err != nil {
		return pkgerrors.Wrap(err, "deleting assignment")
	}
	if !a.Document.IsZero() {
		if err := svc.blobs.Delete(ctx, a.Document.Key); err != nil && pkgerrors.Cause(err) != core.ErrBlobNotFound {
			return pkgerrors.Wrap(err, "deleting document")
		}
	}
	return nil
}

// OpenDocument returns the document of an assignment; the caller closes the reader.
func (svc *service) OpenDocument(ctx context.Context, id string) (Document, io.ReadCloser, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Document{}, nil, err
	}
	if a.Document.IsZero() {
		return Document{}, nil, ErrNoDocument
	}
	rc, err := svc.blobs.Get(ctx, a.Document.Key)
	if err != nil {
		if pkgerrors.Cause(err) == core.ErrBlobNotFound {
			return Document{}, nil, ErrNoDocument
		}
		return Document{}, nil, pkgerrors.Wrap(err, "reading document")
	}
	return *a.Document, rc, nil
}

// RecordGrade saves the grade of a student of the assignment's class and marks the assignment graded.
func (svc *service) RecordGrade(ctx context.Context, ng NewGrade) (Grade, error) {
	a, err := svc.repo.GetAssignment(ctx, ng.AssignmentID)
	if err != nil {
		if err == ErrAssignmentNotFound {
			return Grade{}, core.NewFieldError("assignment_id", err)
		}
		return Grade{}, pkgerrors.Wrap(err, "finding assignment")
	}
	if a.Status == StatusDraft {
		return Grade{}, core.NewFieldError("assignment_id", ErrNotPublished)
	}
	s, err := svc.classes.GetStudent(ctx, ng.StudentID)
	if err != nil {
		if err == classroom.ErrStudentNotFound {
			return Grade{}, core.NewFieldError("student_id", err)
		}
		return Grade{}, pkgerrors.Wrap(err, "finding student")
	}
	if s.ClassID != a.ClassID {
		return Grade{}, core.InvalidField("student_id", "student is not in the assignment's class")
	}
	if ng.Score > float64(a.MaxScore) {
		return Grade{}, core.InvalidField("score", "score cannot exceed the assignment's max score")
	}

	now := time.Now().UTC()
	g, err := svc.repo.SaveGrade(ctx, Grade{
		StudentID:    ng.StudentID,
		AssignmentID: ng.AssignmentID,
		Score:        ng.Score,
		Comment:      ng.Comment,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Grade{}, pkgerrors.Wrap(err, "saving grade")
	}

	if a.Status != StatusGraded {
		a.Status = StatusGraded
		a.UpdatedAt = now
		if _, err := svc.repo.UpdateAssignment(ctx, a); err != nil {
			return Grade{}, pkgerrors.Wrap(err, "marking assignment graded")
		}
	}
	return g, nil
}

func (svc *service) QueryGrades(ctx context.Context, filter GradeFilter) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, filter)
}

// ForParent lists the non-draft assignments of the classes of a parent's children.
func (svc *service) ForParent(ctx context.Context, parentID string) ([]Assignment, error) {
	students, err := svc.classes.StudentsOfParent(ctx, parentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "finding children")
	}
	classIDs := make([]string, 0, len(students))
	for _, s := range students {
		if s.ClassID != "" && !contains(classIDs, s.ClassID) {
			classIDs = append(classIDs, s.ClassID)
		}
	}
	if len(classIDs) == 0 {
		return []Assignment{}, nil
	}

	all, err := svc.repo.QueryAssignments(ctx, AssignmentFilter{ClassIDs: classIDs})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying assignments")
	}
	visible := make([]Assignment, 0, len(all))
	for _, a := range all {
		if a.Status != StatusDraft {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// GradesForParent lists the grades of a parent's children.
func (svc *service) GradesForParent(ctx context.Context, parentID string) ([]Grade, error) {
	students, err := svc.classes.StudentsOfParent(ctx, parentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "finding children")
	}
	if len(students) == 0 {
		return []Grade{}, nil
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return svc.repo.QueryGrades(ctx, GradeFilter{StudentIDs: ids})
}
