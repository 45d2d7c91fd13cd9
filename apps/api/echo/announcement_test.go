package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/user"
	"github.com/trezcool/pueriangeli/tests"
)

func Test_announcementApi(t *testing.T) {
	env := setup(t)

	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	testutil.CreateUser(t, env.usrRepo, "N", "Dog", "ndog@test.cd", "", user.RoleParent, false)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "Kabila", "admin@test.cd", "", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	cls := testutil.CreateClass(t, env.classRepo, "6eme A", "6", teacher.ID, 0)
	testutil.CreateStudent(t, env.classRepo, "Kid", "Mbuyi", "M001", cls.ID, parent.ID)

	create := func(t *testing.T, body string) announcement.Announcement {
		t.Helper()

		req, rec := newAuthRequest(http.MethodPost, "/v1/announcements", adminToken, []byte(body))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var a announcement.Announcement
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
		return a
	}

	runHTTPTests(t, env, []httpTest{
		{name: "Admin required", path: "/v1/announcements", token: env.getToken(t, teacher), wantCode: http.StatusForbidden},
		{
			name: "Blank title", method: http.MethodPost, path: "/v1/announcements", token: adminToken,
			body: []byte(`{"title":" ","content":"Hello"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field cannot be blank"}),
		},
		{
			name: "Class audience needs a class", method: http.MethodPost, path: "/v1/announcements", token: adminToken,
			body: []byte(`{"title":"Trip","content":"Hello","audience":"class"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"class_id": "a class is required for this audience"}),
		},
		{
			name: "Scheduled in the past", method: http.MethodPost, path: "/v1/announcements", token: adminToken,
			body: []byte(`{"title":"Trip","content":"Hello","scheduled_at":"2001-01-01T00:00:00Z"}`), wantCode: http.StatusBadRequest,
		},
		{name: "Unknown status", path: "/v1/announcements?status=lol", token: adminToken, wantCode: http.StatusBadRequest},
	})

	t.Run("sent to the parents", func(t *testing.T) {
		env.mailSvc.Reset()

		a := create(t, `{"title":"Holidays","content":"School closes on Friday.","audience":"parents","send":true}`)
		assert.Equal(t, announcement.StatusSent, a.Status)
		assert.Equal(t, admin.ID, a.AuthorID)
		assert.False(t, a.SentAt.IsZero())

		sent := env.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		require.Len(t, sent[0].Bcc, 1) // inactive parents are skipped
		assert.Equal(t, parent.Email, sent[0].Bcc[0].Address)
	})

	t.Run("draft then sent to a class", func(t *testing.T) {
		env.mailSvc.Reset()

		a := create(t, `{"title":"Trip","content":"Museum visit.","audience":"class","class_id":"`+cls.ID+`"}`)
		assert.Equal(t, announcement.StatusDraft, a.Status)
		assert.Empty(t, env.mailSvc.SentMessages())

		req, rec := newAuthRequest(http.MethodPost, "/v1/announcements/"+a.ID+"/send", adminToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		sent := env.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		var addrs []string
		for _, addr := range sent[0].Bcc {
			addrs = append(addrs, addr.Address)
		}
		assert.Equal(t, []string{parent.Email, teacher.Email}, addrs)

		req, rec = newAuthRequest(http.MethodPost, "/v1/announcements/"+a.ID+"/send", adminToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"announcement already sent"}`, rec.Body.String())
	})

	t.Run("scheduled", func(t *testing.T) {
		at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		a := create(t, `{"title":"Exams","content":"Start on Monday.","audience":"all","scheduled_at":"`+at.Format(time.RFC3339)+`"}`)
		assert.Equal(t, announcement.StatusScheduled, a.Status)
		assert.True(t, at.Equal(a.ScheduledAt))

		req, rec := newAuthRequest(http.MethodGet, "/v1/announcements?status=scheduled", adminToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, string(marchallList(t, a)), rec.Body.String())

		req, rec = newAuthRequest(http.MethodDelete, "/v1/announcements/"+a.ID, adminToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/announcements/"+a.ID, adminToken)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
