// Package message lets teachers write to the families of their classes: one parent, the parent of one student,
// or every parent of a class. Parents read what they received in their inbox.
package message

import (
	"context"
	"errors"
	"net/mail"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/user"
)

var (
	// errors
	ErrNotFound     = errors.New("message not found")
	ErrAlreadySent  = errors.New("message already sent")
	ErrNoRecipients = errors.New("no recipients")

	errUnknownRecipient = "unknown recipient"
	errNotYourClass     = "recipient is outside your classes"
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, m Message) (Message, error)
		GetMessage(ctx context.Context, id string) (Message, error)
		// QueryMessages returns the messages matching filter, newest first.
		QueryMessages(ctx context.Context, filter Filter) ([]Message, error)
		UpdateMessage(ctx context.Context, m Message) (Message, error)
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Classes resolves the families behind a recipient.
	Classes interface {
		GetClass(ctx context.Context, id string) (classroom.Class, error)
		QueryClasses(ctx context.Context, search string) ([]classroom.Class, error)
		GetStudent(ctx context.Context, id string) (classroom.Student, error)
		QueryStudents(ctx context.Context, filter classroom.StudentFilter) ([]classroom.Student, error)
	}

	Service interface {
		// Create writes a message from sender, and sends it unless it is a draft.
		Create(ctx context.Context, sender user.User, nm NewMessage) (Message, error)
		// Send sends a draft, or retries a failed message, of sender.
		Send(ctx context.Context, sender user.User, id string) (Message, error)
		// Get returns a message its reader wrote or received; ErrNotFound otherwise.
		Get(ctx context.Context, reader user.User, id string) (Message, error)
		Sent(ctx context.Context, senderID string) ([]Message, error)
		Inbox(ctx context.Context, recipientID string) ([]Message, error)
		// Recipients lists whom sender may write to.
		Recipients(ctx context.Context, sender user.User) ([]Recipient, error)
	}

	service struct {
		repo    Repository
		users   Users
		classes Classes
		mailSvc core.EmailService
		conf    *core.Config
	}

	// audience is a resolved recipient: its display name and the parents reading for it.
	audience struct {
		name    string
		parents []user.User
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users Users, classes Classes, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{repo: repo, users: users, classes: classes, mailSvc: mailSvc, conf: conf}
}

// unrestricted senders may write to any family.
func unrestricted(sender user.User) bool { return sender.Role.Satisfies(user.RoleAdmin) }

func recipientError(msg string) error {
	return core.InvalidField("to_id", msg)
}

func (svc *service) Create(ctx context.Context, sender user.User, nm NewMessage) (Message, error) {
	aud, err := svc.resolve(ctx, sender, nm.Kind, nm.ToID)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	m, err := svc.repo.CreateMessage(ctx, Message{
		SenderID:     sender.ID,
		Kind:         nm.Kind,
		ToID:         nm.ToID,
		To:           aud.name,
		Subject:      nm.Subject,
		Content:      nm.Content,
		Status:       StatusDraft,
		RecipientIDs: aud.ids(),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Message{}, pkgerrors.Wrap(err, "creating message")
	}
	if nm.Draft {
		return m, nil
	}
	return svc.deliver(ctx, sender, m, aud)
}

func (svc *service) Send(ctx context.Context, sender user.User, id string) (Message, error) {
	m, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if m.SenderID != sender.ID {
		return Message{}, ErrNotFound
	}
	if m.Status == StatusSent {
		return Message{}, core.NewValidationError(ErrAlreadySent)
	}
	// families change between writing and sending
	aud, err := svc.resolve(ctx, sender, m.Kind, m.ToID)
	if err != nil {
		return Message{}, err
	}
	return svc.deliver(ctx, sender, m, aud)
}

func (svc *service) Get(ctx context.Context, reader user.User, id string) (Message, error) {
	m, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if !m.ReadableBy(reader.ID) && !unrestricted(reader) {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (svc *service) Sent(ctx context.Context, senderID string) ([]Message, error) {
	if senderID == "" {
		return []Message{}, nil
	}
	return svc.repo.QueryMessages(ctx, Filter{SenderID: senderID})
}

func (svc *service) Inbox(ctx context.Context, recipientID string) ([]Message, error) {
	if recipientID == "" {
		return []Message{}, nil
	}
	sent := StatusSent
	return svc.repo.QueryMessages(ctx, Filter{RecipientID: recipientID, Status: &sent})
}

func (svc *service) Recipients(ctx context.Context, sender user.User) ([]Recipient, error) {
	classes, err := svc.classes.QueryClasses(ctx, "")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying classes")
	}

	var classRcpts, parentRcpts, studentRcpts []Recipient
	seenParents := make(map[string]bool)
	for _, cls := range classes {
		if !unrestricted(sender) && cls.TeacherID != sender.ID {
			continue
		}
		classRcpts = append(classRcpts, Recipient{ID: cls.ID, Name: classAudienceName(cls), Kind: KindClass})

		students, err := svc.classes.QueryStudents(ctx, classroom.StudentFilter{ClassID: cls.ID})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "querying class students")
		}
		for _, s := range students {
			studentRcpts = append(studentRcpts, Recipient{ID: s.ID, Name: s.Name(), Kind: KindStudent})
			if s.ParentID == "" || seenParents[s.ParentID] {
				continue
			}
			seenParents[s.ParentID] = true
			parent, err := svc.users.GetByID(ctx, s.ParentID)
			if err != nil {
				if pkgerrors.Cause(err) == user.ErrNotFound {
					continue
				}
				return nil, pkgerrors.Wrap(err, "finding parent")
			}
			if parent.IsActive {
				parentRcpts = append(parentRcpts, Recipient{ID: parent.ID, Name: parent.Name(), Kind: KindParent})
			}
		}
	}

	byName := func(rs []Recipient) []Recipient {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
		return rs
	}
	out := make([]Recipient, 0, len(classRcpts)+len(parentRcpts)+len(studentRcpts))
	out = append(out, byName(classRcpts)...)
	out = append(out, byName(parentRcpts)...)
	return append(out, byName(studentRcpts)...), nil
}

func classAudienceName(cls classroom.Class) string { return "Parents of " + cls.Name }

// resolve finds who reads a message to toID, checking sender teaches them.
func (svc *service) resolve(ctx context.Context, sender user.User, kind Kind, toID string) (audience, error) {
	switch kind {
	case KindClass:
		cls, err := svc.classes.GetClass(ctx, toID)
		if err != nil {
			if pkgerrors.Cause(err) == classroom.ErrClassNotFound {
				return audience{}, recipientError(errUnknownRecipient)
			}
			return audience{}, pkgerrors.Wrap(err, "finding class")
		}
		if !unrestricted(sender) && cls.TeacherID != sender.ID {
			return audience{}, recipientError(errNotYourClass)
		}
		students, err := svc.classes.QueryStudents(ctx, classroom.StudentFilter{ClassID: cls.ID})
		if err != nil {
			return audience{}, pkgerrors.Wrap(err, "querying class students")
		}
		parents, err := svc.parentsOf(ctx, students)
		return audience{name: classAudienceName(cls), parents: parents}, err

	case KindStudent:
		s, err := svc.classes.GetStudent(ctx, toID)
		if err != nil {
			if pkgerrors.Cause(err) == classroom.ErrStudentNotFound {
				return audience{}, recipientError(errUnknownRecipient)
			}
			return audience{}, pkgerrors.Wrap(err, "finding student")
		}
		ok, err := svc.teaches(ctx, sender, s)
		if err != nil {
			return audience{}, err
		}
		if !ok {
			return audience{}, recipientError(errNotYourClass)
		}
		parents, err := svc.parentsOf(ctx, []classroom.Student{s})
		return audience{name: s.Name(), parents: parents}, err

	case KindParent:
		parent, err := svc.users.GetByID(ctx, toID)
		if err != nil {
			if pkgerrors.Cause(err) == user.ErrNotFound {
				return audience{}, recipientError(errUnknownRecipient)
			}
			return audience{}, pkgerrors.Wrap(err, "finding parent")
		}
		if !parent.Role.In(user.RoleParent) {
			return audience{}, recipientError(errUnknownRecipient)
		}
		children, err := svc.classes.QueryStudents(ctx, classroom.StudentFilter{ParentID: parent.ID})
		if err != nil {
			return audience{}, pkgerrors.Wrap(err, "querying children")
		}
		allowed := unrestricted(sender)
		for _, child := range children {
			if allowed {
				break
			}
			if allowed, err = svc.teaches(ctx, sender, child); err != nil {
				return audience{}, err
			}
		}
		if !allowed {
			return audience{}, recipientError(errNotYourClass)
		}
		aud := audience{name: parent.Name()}
		if parent.IsActive {
			aud.parents = []user.User{parent}
		}
		return aud, nil

	default:
		return audience{}, core.InvalidField("type", "unknown message type")
	}
}

// teaches reports whether sender teaches the class of s.
func (svc *service) teaches(ctx context.Context, sender user.User, s classroom.Student) (bool, error) {
	if unrestricted(sender) {
		return true, nil
	}
	if s.ClassID == "" {
		return false, nil
	}
	cls, err := svc.classes.GetClass(ctx, s.ClassID)
	if err != nil {
		if pkgerrors.Cause(err) == classroom.ErrClassNotFound {
			return false, nil
		}
		return false, pkgerrors.Wrap(err, "finding class")
	}
	return cls.TeacherID == sender.ID, nil
}

// parentsOf returns the active parents of students, once each.
func (svc *service) parentsOf(ctx context.Context, students []classroom.Student) ([]user.User, error) {
	seen := make(map[string]bool, len(students))
	parents := make([]user.User, 0, len(students))
	for _, s := range students {
		if s.ParentID == "" || seen[s.ParentID] {
			continue
		}
		seen[s.ParentID] = true
		usr, err := svc.users.GetByID(ctx, s.ParentID)
		if err != nil {
			if pkgerrors.Cause(err) == user.ErrNotFound {
				continue
			}
			return nil, pkgerrors.Wrap(err, "finding parent")
		}
		if usr.IsActive {
			parents = append(parents, usr)
		}
	}
	return parents, nil
}

func (a audience) ids() []string {
	ids := make([]string, 0, len(a.parents))
	for _, p := range a.parents {
		ids = append(ids, p.ID)
	}
	return ids
}

func (a audience) addresses() []mail.Address {
	addrs := make([]mail.Address, 0, len(a.parents))
	for i := range a.parents {
		if a.parents[i].Email != "" {
			addrs = append(addrs, mail.Address{Name: a.parents[i].Name(), Address: a.parents[i].Email})
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Address < addrs[j].Address })
	return addrs
}

// deliver emails m to aud and records the outcome on the message.
// Delivery failures land in the message's status; only storage errors are returned.
func (svc *service) deliver(ctx context.Context, sender user.User, m Message, aud audience) (Message, error) {
	now := time.Now().UTC()
	m.To = aud.name
	m.RecipientIDs = aud.ids()
	m.UpdatedAt = now

	addrs := aud.addresses()
	if len(addrs) == 0 {
		m.Status = StatusError
		m.Error = ErrNoRecipients.Error()
	} else {
		msg := &core.EmailMessage{
			Subject:      m.Subject,
			TemplateName: "message",
			TemplateData: map[string]string{"Sender": sender.Name(), "To": m.To, "Content": m.Content},
		}
		if len(addrs) == 1 {
			msg.To = addrs
		} else {
			// parents of a class do not see each other
			msg.To = []mail.Address{svc.conf.DefaultFromEmail}
			msg.Bcc = addrs
		}

		if err := svc.mailSvc.Send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			m.Status = StatusError
			m.Error = err.Error()
		} else {
			m.Status = StatusSent
			m.SentAt = now
			m.Error = ""
		}
	}

	updated, err := svc.repo.UpdateMessage(ctx, m)
	if err != nil {
		return Message{}, pkgerrors.Wrap(err, "updating message")
	}
	return updated, nil
}
