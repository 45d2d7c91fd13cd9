// Package dashboard computes the figures shown on the dashboards.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/coursework"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	// DeadlineWindow is how far ahead upcoming deadlines are looked for.
	DeadlineWindow = 7 * 24 * time.Hour
	// MaxDeadlines caps the deadlines listed on the admin dashboard.
	MaxDeadlines = 10
)

type (
	// AdminStats are the school-wide figures of the admin dashboard.
	AdminStats struct {
		Teachers int `json:"teachers"`
		Parents  int `json:"parents"`
		Students int `json:"students"`
		Classes  int `json:"classes"`
		// FullClasses have no seat left.
		FullClasses int `json:"full_classes"`
		// NewUsers joined since the first day of the current month.
		NewUsers          int        `json:"new_users"`
		UpcomingDeadlines []Deadline `json:"upcoming_deadlines"`
	}

	// Deadline is a published assignment falling due soon.
	Deadline struct {
		AssignmentID string    `json:"assignment_id"`
		Title        string    `json:"title"`
		ClassID      string    `json:"class_id"`
		ClassName    string    `json:"class_name"`
		DueAt        time.Time `json:"due_at"`
	}

	Users interface {
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
	}

	Classes interface {
		QueryClasses(ctx context.Context, search string) ([]classroom.Class, error)
		QueryStudents(ctx context.Context, filter classroom.StudentFilter) ([]classroom.Student, error)
	}

	Assignments interface {
		QueryAssignments(ctx context.Context, filter coursework.AssignmentFilter) ([]coursework.Assignment, error)
	}

	Service interface {
		AdminStats(ctx context.Context, now time.Time) (AdminStats, error)
	}

	service struct {
		users       Users
		classes     Classes
		assignments Assignments
	}
)

var _ Service = (*service)(nil)

func NewService(users Users, classes Classes, assignments Assignments) Service {
	return &service{users: users, classes: classes, assignments: assignments}
}

// AdminStats counts active accounts, students and classes, and lists the deadlines of the next DeadlineWindow.
func (svc *service) AdminStats(ctx context.Context, now time.Time) (AdminStats, error) {
	now = now.UTC()
	active := true
	users, err := svc.users.Query(ctx, &user.QueryFilter{IsActive: &active}, nil)
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "querying users")
	}

	var stats AdminStats
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, usr := range users {
		switch usr.Role {
		case user.RoleTeacher:
			stats.Teachers++
		case user.RoleParent:
			stats.Parents++
		}
		if !usr.CreatedAt.Before(monthStart) {
			stats.NewUsers++
		}
	}

	classes, err := svc.classes.QueryClasses(ctx, "")
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "querying classes")
	}
	classNames := make(map[string]string, len(classes))
	for _, cls := range classes {
		classNames[cls.ID] = cls.Name
		if cls.IsFull() {
			stats.FullClasses++
		}
	}
	stats.Classes = len(classes)

	students, err := svc.classes.QueryStudents(ctx, classroom.StudentFilter{})
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "querying students")
	}
	stats.Students = len(students)

	published := coursework.StatusPublished
	assignments, err := svc.assignments.QueryAssignments(ctx, coursework.AssignmentFilter{Status: &published})
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "querying assignments")
	}
	stats.UpcomingDeadlines = upcoming(assignments, classNames, now)
	return stats, nil
}

// upcoming keeps the assignments due within DeadlineWindow of now, soonest first.
func upcoming(assignments []coursework.Assignment, classNames map[string]string, now time.Time) []Deadline {
	end := now.Add(DeadlineWindow)
	deadlines := make([]Deadline, 0)
	for _, a := range assignments {
		if a.DueAt.Before(now) || a.DueAt.After(end) {
			continue
		}
		deadlines = append(deadlines, Deadline{
			AssignmentID: a.ID,
			Title:        a.Title,
			ClassID:      a.ClassID,
			ClassName:    classNames[a.ClassID],
			DueAt:        a.DueAt.UTC(),
		})
	}
	sort.SliceStable(deadlines, func(i, j int) bool { return deadlines[i].DueAt.Before(deadlines[j].DueAt) })
	if len(deadlines) > MaxDeadlines {
		deadlines = deadlines[:MaxDeadlines]
	}
	return deadlines
}
