package announcement

import (
	"context"
	"errors"
	"net/mail"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/user"
)

var (
	// errors
	ErrNotFound     = errors.New("announcement not found")
	ErrAlreadySent  = errors.New("announcement already sent")
	ErrNoRecipients = errors.New("no recipients")
)

type (
	Repository interface {
		CreateAnnouncement(ctx context.Context, a Announcement) (Announcement, error)
		GetAnnouncement(ctx context.Context, id string) (Announcement, error)
		// QueryAnnouncements returns every announcement when status is nil, newest first.
		QueryAnnouncements(ctx context.Context, status *Status) ([]Announcement, error)
		UpdateAnnouncement(ctx context.Context, a Announcement) (Announcement, error)
		DeleteAnnouncement(ctx context.Context, id string) error
	}

	// Users finds recipients.
	Users interface {
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Classes finds the families of a class.
	Classes interface {
		GetClass(ctx context.Context, id string) (classroom.Class, error)
		QueryStudents(ctx context.Context, filter classroom.StudentFilter) ([]classroom.Student, error)
	}

	Service interface {
		Create(ctx context.Context, authorID string, na NewAnnouncement) (Announcement, error)
		Get(ctx context.Context, id string) (Announcement, error)
		Query(ctx context.Context, status *Status) ([]Announcement, error)
		Send(ctx context.Context, id string) (Announcement, error)
		Delete(ctx context.Context, id string) error
		// DispatchDue sends the scheduled announcements due at now and returns how many went out.
		DispatchDue(ctx context.Context, now time.Time) (int, error)
	}

	service struct {
		repo    Repository
		users   Users
		classes Classes
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users Users, classes Classes, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{repo: repo, users: users, classes: classes, mailSvc: mailSvc, conf: conf}
}

func (svc *service) Create(ctx context.Context, authorID string, na NewAnnouncement) (Announcement, error) {
	if na.Audience == AudienceClass {
		if _, err := svc.classes.GetClass(ctx, na.ClassID); err != nil {
			if err == classroom.ErrClassNotFound {
				return Announcement{}, core.NewFieldError("class_id", err)
			}
			return Announcement{}, pkgerrors.Wrap(err, "finding class")
		}
	}

	now := time.Now().UTC()
	a := Announcement{
		Title:     na.Title,
		Content:   na.Content,
		Audience:  na.Audience,
		ClassID:   na.ClassID,
		Status:    StatusDraft,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !na.ScheduledAt.IsZero() {
		a.Status = StatusScheduled
		a.ScheduledAt = na.ScheduledAt.UTC()
	}

	a, err := svc.repo.CreateAnnouncement(ctx, a)
	if err != nil {
		return Announcement{}, pkgerrors.Wrap(err, "creating announcement")
	}
	if na.Send && a.Status == StatusDraft {
		return svc.deliver(ctx, a)
	}
	return a, nil
}

func (svc *service) Get(ctx context.Context, id string) (Announcement, error) {
	return svc.repo.GetAnnouncement(ctx, id)
}

func (svc *service) Query(ctx context.Context, status *Status) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, status)
}

func (svc *service) Send(ctx context.Context, id string) (Announcement, error) {
	a, err := svc.repo.GetAnnouncement(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	if a.Status == StatusSent {
		return Announcement{}, core.NewValidationError(ErrAlreadySent)
	}
	return svc.deliver(ctx, a)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAnnouncement(ctx, id)
}

func (svc *service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	status := StatusScheduled
	scheduled, err := svc.repo.QueryAnnouncements(ctx, &status)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "querying scheduled announcements")
	}
	var sent int
	for _, a := range scheduled {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if !a.IsDue(now) {
			continue
		}
		a, err = svc.deliver(ctx, a)
		if err != nil {
			return sent, err
		}
		if a.Status == StatusSent {
			sent++
		}
	}
	return sent, nil
}

// deliver emails a to its audience and records the outcome on the announcement.
// Delivery failures land in the announcement's status; only storage errors are returned.
func (svc *service) deliver(ctx context.Context, a Announcement) (Announcement, error) {
	now := time.Now().UTC()
	a.UpdatedAt = now

	recipients, err := svc.recipients(ctx, a)
	switch {
	case err != nil:
		a.Status = StatusError
		a.Error = err.Error()
	case len(recipients) == 0:
		a.Status = StatusError
		a.Error = ErrNoRecipients.Error()
	default:
		// recipients stay hidden from each other; the school address is the visible one
		msg := &core.EmailMessage{
			To:           []mail.Address{svc.conf.DefaultFromEmail},
			Bcc:          without(recipients, svc.conf.DefaultFromEmail.Address),
			Subject:      a.Title,
			TemplateName: "announcement",
			TemplateData: map[string]string{"Title": a.Title, "Content": a.Content},
		}
		if err := svc.mailSvc.Send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// interrupted, not failed: left as it was for the next run
				return Announcement{}, ctx.Err()
			}
			a.Status = StatusError
			a.Error = err.Error()
			break
		}
		a.Status = StatusSent
		a.SentAt = now
		a.Error = ""
	}

	updated, err := svc.repo.UpdateAnnouncement(ctx, a)
	if err != nil {
		return Announcement{}, pkgerrors.Wrap(err, "updating announcement")
	}
	return updated, nil
}

func (svc *service) recipients(ctx context.Context, a Announcement) ([]mail.Address, error) {
	active := true
	var users []user.User
	var err error

	switch a.Audience {
	case AudienceAll:
		users, err = svc.users.Query(ctx, &user.QueryFilter{IsActive: &active}, nil)
	case AudienceTeachers:
		users, err = svc.users.Query(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleTeacher}, IsActive: &active}, nil)
	case AudienceParents:
		users, err = svc.users.Query(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleParent}, IsActive: &active}, nil)
	case AudienceClass:
		users, err = svc.classFamilies(ctx, a.ClassID)
	default:
		return nil, pkgerrors.Errorf("unknown audience %s", a.Audience)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(users))
	addrs := make([]mail.Address, 0, len(users))
	for _, usr := range users {
		if !usr.IsActive || usr.Email == "" || seen[usr.Email] {
			continue
		}
		seen[usr.Email] = true
		addrs = append(addrs, mail.Address{Name: usr.Name(), Address: usr.Email})
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Address < addrs[j].Address })
	return addrs, nil
}

func without(addrs []mail.Address, address string) []mail.Address {
	out := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if !strings.EqualFold(a.Address, address) {
			out = append(out, a)
		}
	}
	return out
}

// classFamilies returns the class teacher and the parents of its students.
func (svc *service) classFamilies(ctx context.Context, classID string) ([]user.User, error) {
	cls, err := svc.classes.GetClass(ctx, classID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "finding class")
	}
	students, err := svc.classes.QueryStudents(ctx, classroom.StudentFilter{ClassID: classID})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying class students")
	}

	ids := make([]string, 0, len(students)+1)
	if cls.TeacherID != "" {
		ids = append(ids, cls.TeacherID)
	}
	for _, s := range students {
		if s.ParentID != "" {
			ids = append(ids, s.ParentID)
		}
	}

	users := make([]user.User, 0, len(ids))
	for _, id := range ids {
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			if pkgerrors.Cause(err) == user.ErrNotFound {
				continue
			}
			return nil, pkgerrors.Wrap(err, "finding user by ID")
		}
		users = append(users, usr)
	}
	return users, nil
}
