package announcement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/user"
	emailsvc "github.com/trezcool/pueriangeli/services/email"
	logsvc "github.com/trezcool/pueriangeli/services/logger"
	inmemdb "github.com/trezcool/pueriangeli/storage/database/inmem"
	"github.com/trezcool/pueriangeli/tests"
)

type fixture struct {
	svc       announcement.Service
	repo      announcement.Repository
	usrRepo   user.Repository
	classRepo classroom.Repository
	mailSvc   *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) fixture {
	t.Helper()

	conf := core.NewTestConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	f := fixture{
		repo:      inmemdb.NewAnnouncementRepository(db),
		usrRepo:   inmemdb.NewUserRepository(db),
		classRepo: inmemdb.NewClassroomRepository(db),
		mailSvc:   emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger()),
	}
	usrSvc := user.NewServiceMock(f.usrRepo, f.mailSvc, conf)
	f.svc = announcement.NewService(f.repo, usrSvc, classroom.NewService(f.classRepo, usrSvc), f.mailSvc, conf)
	return f
}

func bcc(msg core.EmailMessage) []string {
	addrs := make([]string, 0, len(msg.Bcc))
	for _, addr := range msg.Bcc {
		addrs = append(addrs, addr.Address)
	}
	return addrs
}

func Test_service_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, f.usrRepo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)
	testutil.CreateUser(t, f.usrRepo, "Other", "Teacher", "other@test.cd", "", user.RoleTeacher, false)
	parent := testutil.CreateUser(t, f.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "Kabila", "admin@test.cd", "", user.RoleAdmin, true)

	t.Run("draft", func(t *testing.T) {
		f.mailSvc.Reset()

		a, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{Title: "Trip", Content: "Museum visit."})
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusDraft, a.Status)
		assert.NotEmpty(t, a.ID)
		assert.Empty(t, f.mailSvc.SentMessages())
	})

	t.Run("sent to teachers", func(t *testing.T) {
		f.mailSvc.Reset()

		a, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{
			Title: "Meeting", Content: "Staff meeting at noon.", Audience: announcement.AudienceTeachers, Send: true,
		})
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusSent, a.Status)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, []string{teacher.Email}, bcc(sent[0]))
		assert.Contains(t, sent[0].Subject, "Meeting")
	})

	t.Run("sent to everybody", func(t *testing.T) {
		f.mailSvc.Reset()

		_, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{Title: "Holidays", Content: "See you soon.", Send: true})
		require.NoError(t, err)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, []string{admin.Email, parent.Email, teacher.Email}, bcc(sent[0]))
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{
			Title: "Trip", Content: "Museum visit.", Audience: announcement.AudienceClass, ClassID: "c0ffee00-0000-4000-8000-000000000000",
		})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("scheduled is not sent", func(t *testing.T) {
		f.mailSvc.Reset()

		a, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{
			Title: "Exams", Content: "Start on Monday.", ScheduledAt: time.Now().Add(time.Hour), Send: true,
		})
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusScheduled, a.Status)
		assert.Empty(t, f.mailSvc.SentMessages())
	})
}

func Test_service_Send(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, f.usrRepo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)
	parent := testutil.CreateUser(t, f.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "Kabila", "admin@test.cd", "", user.RoleAdmin, true)

	cls := testutil.CreateClass(t, f.classRepo, "6eme A", "6", teacher.ID, 0)
	empty := testutil.CreateClass(t, f.classRepo, "6eme B", "6", "", 0)
	testutil.CreateStudent(t, f.classRepo, "Kid", "Mbuyi", "M001", cls.ID, parent.ID)
	testutil.CreateStudent(t, f.classRepo, "Twin", "Mbuyi", "M002", cls.ID, parent.ID)

	t.Run("class families", func(t *testing.T) {
		f.mailSvc.Reset()

		a, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{
			Title: "Trip", Content: "Museum visit.", Audience: announcement.AudienceClass, ClassID: cls.ID,
		})
		require.NoError(t, err)

		a, err = f.svc.Send(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusSent, a.Status)
		assert.Empty(t, a.Error)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, []string{parent.Email, teacher.Email}, bcc(sent[0])) // one mail per family
		require.Len(t, sent[0].To, 1)
		assert.Equal(t, core.NewTestConfig().DefaultFromEmail, sent[0].To[0])

		_, err = f.svc.Send(ctx, a.ID)
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, announcement.ErrAlreadySent, verr.Err)
	})

	t.Run("no recipients", func(t *testing.T) {
		f.mailSvc.Reset()

		a, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{
			Title: "Trip", Content: "Museum visit.", Audience: announcement.AudienceClass, ClassID: empty.ID,
		})
		require.NoError(t, err)

		a, err = f.svc.Send(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusError, a.Status)
		assert.Equal(t, announcement.ErrNoRecipients.Error(), a.Error)
		assert.Empty(t, f.mailSvc.SentMessages())

		// errored announcements can be sent again
		empty.TeacherID = teacher.ID
		_, err = f.classRepo.UpdateClass(ctx, empty)
		require.NoError(t, err)
		a, err = f.svc.Send(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusSent, a.Status)
	})

	t.Run("mail provider failure", func(t *testing.T) {
		f.mailSvc.Reset()
		f.mailSvc.FailWith(errors.New("sending email - status: 400"))
		defer f.mailSvc.Reset()

		a, err := f.svc.Create(ctx, admin.ID, announcement.NewAnnouncement{
			Title: "Fees", Content: "Due Friday.", Audience: announcement.AudienceParents,
		})
		require.NoError(t, err)

		a, err = f.svc.Send(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusError, a.Status)
		assert.Contains(t, a.Error, "400")
		assert.True(t, a.SentAt.IsZero())

		stored, err := f.svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, announcement.StatusError, stored.Status)
	})

	t.Run("unknown announcement", func(t *testing.T) {
		_, err := f.svc.Send(ctx, "lol")
		assert.ErrorIs(t, err, announcement.ErrNotFound)
	})
}

func Test_service_DispatchDue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, f.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "Kabila", "admin@test.cd", "", user.RoleAdmin, true)

	now := time.Now().UTC()
	schedule := func(title string, at time.Time) announcement.Announcement {
		t.Helper()
		a, err := f.repo.CreateAnnouncement(ctx, announcement.Announcement{
			Title: title, Content: title, Status: announcement.StatusScheduled, ScheduledAt: at, AuthorID: admin.ID,
			CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		return a
	}
	due := schedule("Due", now.Add(-time.Minute))
	onTime := schedule("On time", now)
	later := schedule("Later", now.Add(time.Hour))

	sent, err := f.svc.DispatchDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, f.mailSvc.SentMessages(), 2)

	for id, want := range map[string]announcement.Status{
		due.ID:    announcement.StatusSent,
		onTime.ID: announcement.StatusSent,
		later.ID:  announcement.StatusScheduled,
	} {
		a, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, a.Status, a.Title)
	}

	// nothing left to send
	sent, err = f.svc.DispatchDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
