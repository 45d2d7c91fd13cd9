package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/pueriangeli/apps/api/echo"
	"github.com/trezcool/pueriangeli/core/user"
	"github.com/trezcool/pueriangeli/tests"
)

func decodeLogin(t *testing.T, body []byte) LoginResponse {
	t.Helper()

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func Test_authApi_login(t *testing.T) {
	env := setup(t)

	pwd := "password123"
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "Lumumba", "teacher@test.cd", pwd, user.RoleTeacher, true)
	testutil.CreateUser(t, env.usrRepo, "N", "Dog", "ndog@test.cd", pwd, user.RoleParent, false)

	login := func(email, pwd, next string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: pwd, Next: next})
	}

	runHTTPTests(t, env, []httpTest{
		{
			name: "Missing fields", method: http.MethodPost, path: "/v1/auth/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "Unknown email", method: http.MethodPost, path: "/v1/auth/login", body: login("lol@test.cd", pwd, ""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Wrong password", method: http.MethodPost, path: "/v1/auth/login", body: login(teacher.Email, "lolilol", ""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Deactivated", method: http.MethodPost, path: "/v1/auth/login", body: login("ndog@test.cd", pwd, ""),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	tests := []struct {
		name         string
		next         string
		wantRedirect string
	}{
		{name: "home", wantRedirect: "/teacher"},
		{name: "next kept", next: "/teacher/assignments?class=1", wantRedirect: "/teacher/assignments?class=1"},
		{name: "next not permitted", next: "/admin/teachers", wantRedirect: "/teacher"},
		{name: "next off-site", next: "//evil.example/admin", wantRedirect: "/teacher"},
		{name: "next unknown to the route map", next: "/somewhere", wantRedirect: "/somewhere"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/login", login(" TEACHER@test.cd ", pwd, tt.next))
			env.serve(req, rec)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decodeLogin(t, rec.Body.Bytes())
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, tt.wantRedirect, resp.Redirect)
			if assert.NotNil(t, resp.User) {
				assert.Equal(t, teacher.ID, resp.User.UserID)
				assert.Equal(t, user.RoleTeacher, resp.User.Role)
			}

			var cookie *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == SessionCookie {
					cookie = c
				}
			}
			if assert.NotNil(t, cookie) {
				assert.Equal(t, resp.Token, cookie.Value)
				assert.True(t, cookie.HttpOnly)
			}
		})
	}

	usr, err := env.usrRepo.GetUser(t.Context(), user.GetFilter{ID: teacher.ID})
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}

func Test_authApi_logout(t *testing.T) {
	env := setup(t)

	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	token := env.getToken(t, parent)

	runHTTPTests(t, env, []httpTest{
		{name: "Authed", path: "/v1/auth/profile", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, parent)},
		{name: "Logout", method: http.MethodPost, path: "/v1/auth/logout", token: token, wantCode: http.StatusNoContent},
		{
			name: "Token no longer opens a session", path: "/v1/auth/profile", token: token, wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, redirectErr{Error: errMissingToken.Error, Redirect: "/login?next=%2Fv1%2Fauth%2Fprofile"}),
		},
		{name: "Logout twice", method: http.MethodPost, path: "/v1/auth/logout", token: token, wantCode: http.StatusUnauthorized},
	})
}

func Test_authApi_tokens(t *testing.T) {
	env := setup(t)

	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	token := env.getToken(t, parent)

	t.Run("garbage token is anonymous", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/profile", "lol.lol.lol")
		env.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another key is anonymous", func(t *testing.T) {
		sess, err := env.sessions.Login(t.Context(), parent)
		require.NoError(t, err)
		forged, err := GenerateToken("not-the-secret", NewClaims(env.conf, sess))
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/profile", forged)
		env.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/auth/profile")
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("refresh", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeLogin(t, rec.Body.Bytes())
		require.NotEmpty(t, resp.Token)

		req, rec = newAuthRequest(http.MethodGet, "/v1/auth/profile", resp.Token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("refresh of a deactivated user", func(t *testing.T) {
		usr := parent
		usr.IsActive = false
		_, err := env.usrRepo.UpdateUser(t.Context(), usr)
		require.NoError(t, err)

		// deactivation revoked the session
		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_authApi_revokedAccounts(t *testing.T) {
	env := setup(t)

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "Kabila", "admin@test.cd", "", user.RoleAdmin, true)
	adminToken := env.getToken(t, admin)

	t.Run("deleted user", func(t *testing.T) {
		parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
		token := env.getToken(t, parent)

		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/profile", token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/users/"+parent.ID, adminToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/auth/profile", token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deactivated user", func(t *testing.T) {
		teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)
		token := env.getToken(t, teacher)

		usr := teacher
		usr.IsActive = false
		_, err := env.usrRepo.UpdateUser(t.Context(), usr)
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodGet, "/v1/classes", token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// reactivating does not bring the revoked session back
		usr.IsActive = true
		_, err = env.usrRepo.UpdateUser(t.Context(), usr)
		require.NoError(t, err)
		req, rec = newAuthRequest(http.MethodGet, "/v1/classes", token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("demoted user", func(t *testing.T) {
		other := testutil.CreateUser(t, env.usrRepo, "Other", "Admin", "other@test.cd", "", user.RoleAdmin, true)
		token := env.getToken(t, other)

		usr := other
		usr.Role = user.RoleParent
		_, err := env.usrRepo.UpdateUser(t.Context(), usr)
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodGet, "/v1/users", token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_authApi_profile(t *testing.T) {
	env := setup(t)

	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "password123", user.RoleParent, true)
	testutil.CreateUser(t, env.usrRepo, "Other", "Parent", "other@test.cd", "", user.RoleParent, true)
	token := env.getToken(t, parent)

	runHTTPTests(t, env, []httpTest{
		{name: "Auth required", method: http.MethodPut, path: "/v1/auth/profile", body: []byte(`{"first_name":"Awa"}`), wantCode: http.StatusUnauthorized},
		{
			name: "Email taken", method: http.MethodPut, path: "/v1/auth/profile", token: token,
			body: []byte(`{"email":"other@test.cd"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "Invalid email", method: http.MethodPut, path: "/v1/auth/profile", token: token,
			body: []byte(`{"email":"lol"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Update", method: http.MethodPut, path: "/v1/auth/profile", token: token,
			body: []byte(`{"first_name":"  Awa ","email":"AWA@test.cd"}`), wantCode: http.StatusOK,
		},
	})

	usr, err := env.usrRepo.GetUser(t.Context(), user.GetFilter{ID: parent.ID})
	require.NoError(t, err)
	assert.Equal(t, "Awa", usr.FirstName)
	assert.Equal(t, "Mbuyi", usr.LastName)
	assert.Equal(t, "awa@test.cd", usr.Email)

	// the dashboards see the new name without signing in again
	req, rec := newAuthRequest(http.MethodGet, "/app/profile", token)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)

	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	if assert.NotNil(t, page.User) {
		assert.Equal(t, "Awa", page.User.FirstName)
		assert.Equal(t, "awa@test.cd", page.User.Email)
	}
}

func Test_authApi_parentProfile(t *testing.T) {
	env := setup(t)

	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)
	token := env.getToken(t, parent)

	want := user.ParentProfile{
		Code: "PA_0042", Sex: "F", Phone: "+243 812 345 678", BirthDate: "1988-04-12", BirthPlace: "Kinshasa",
		Nationality: "Congolaise", CivilStatus: "Mariee", Province: "Kinshasa", Commune: "Gombe",
		EmergencyName: "Jean Mbuyi", EmergencyPhone: "+243 998 000 111", EmergencyAddress: "12 av. du Fleuve",
		DiplomaType: "Licence", DiplomaSchool: "UNIKIN", DiplomaYear: "2010",
	}

	runHTTPTests(t, env, []httpTest{
		{name: "Empty until filled in", path: "/v1/auth/parent-profile", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, user.ParentProfile{})},
		{name: "Parents only", path: "/v1/auth/parent-profile", token: env.getToken(t, teacher), wantCode: http.StatusForbidden},
		{name: "Auth required", method: http.MethodPut, path: "/v1/auth/parent-profile", body: []byte(`{}`), wantCode: http.StatusUnauthorized},
		{
			name: "Invalid fields", method: http.MethodPut, path: "/v1/auth/parent-profile", token: token,
			body:     []byte(`{"sex":"X","birth_date":"12/04/1988","emergency_phone":"call me","diploma_year":"10"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"sex":             "must be one of: M, F",
				"birth_date":      "use the YYYY-MM-DD format",
				"emergency_phone": "invalid phone number",
				"diploma_year":    "must be exactly 4 characters",
			}),
		},
		{
			name: "Update", method: http.MethodPut, path: "/v1/auth/parent-profile", token: token,
			body: []byte(`{"code":"PA_0042","sex":"Feminin","phone":"+243 812 345 678","birth_date":"1988-04-12",` +
				`"birth_place":" Kinshasa ","nationality":"Congolaise","civil_status":"Mariee","province":"Kinshasa",` +
				`"commune":"Gombe","emergency_name":"Jean Mbuyi","emergency_phone":"+243 998 000 111",` +
				`"emergency_address":"12 av. du Fleuve","diploma_type":"Licence","diploma_school":"UNIKIN","diploma_year":"2010"}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, want),
		},
		{name: "Read back", path: "/v1/auth/parent-profile", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, want)},
	})

	usr, err := env.usrRepo.GetUser(t.Context(), user.GetFilter{ID: parent.ID})
	require.NoError(t, err)
	if assert.NotNil(t, usr.ParentProfile) {
		assert.Equal(t, want, *usr.ParentProfile)
	}
}

func Test_authApi_changePassword(t *testing.T) {
	env := setup(t)

	pwd := "password123"
	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", pwd, user.RoleParent, true)
	token := env.getToken(t, parent)

	change := func(current, pwd, confirm string) []byte {
		return marchallObj(t, user.ChangePassword{CurrentPassword: current, Password: pwd, PasswordConfirm: confirm})
	}

	runHTTPTests(t, env, []httpTest{
		{
			name: "Wrong current password", method: http.MethodPost, path: "/v1/auth/change-password", token: token,
			body: change("lolilol", "newpassword", "newpassword"), wantCode: http.StatusBadRequest,
		},
		{
			name: "Mismatch", method: http.MethodPost, path: "/v1/auth/change-password", token: token,
			body: change(pwd, "newpassword", "newpasswort"), wantCode: http.StatusBadRequest,
		},
		{
			name: "Changed", method: http.MethodPost, path: "/v1/auth/change-password", token: token,
			body: change(pwd, "newpassword", "newpassword"), wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been changed."}),
		},
	})

	usr, err := env.usrRepo.GetUser(t.Context(), user.GetFilter{ID: parent.ID})
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("newpassword"))
}

func Test_authApi_passwordReset(t *testing.T) {
	env := setup(t)

	parent := testutil.CreateUser(t, env.usrRepo, "Awe", "Mbuyi", "awe@test.cd", "password123", user.RoleParent, true)
	testutil.CreateUser(t, env.usrRepo, "N", "Dog", "ndog@test.cd", "", user.RoleParent, false)

	t.Run("request", func(t *testing.T) {
		for _, email := range []string{"lol@test.cd", "ndog@test.cd", "AWE@test.cd"} {
			req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset", marchallObj(t, PasswordResetRequest{Email: email}))
			env.serve(req, rec)
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		// only the active account got a mail
		sent := env.mailSvc.SentMessages()
		if assert.Len(t, sent, 1) {
			assert.Equal(t, parent.Email, sent[0].To[0].Address)
		}
	})

	t.Run("confirm", func(t *testing.T) {
		reset := func(token, uid string) []byte {
			return marchallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "newpassword", PasswordConfirm: "newpassword"})
		}
		token := user.MakeResetToken(env.conf, parent)
		uid := user.EncodeUID(parent)
		invalid := marchallObj(t, httpErr{Error: user.ErrInvalidResetRequest.Error()})

		runHTTPTests(t, env, []httpTest{
			{name: "Bad token", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: reset("lol-lol", uid), wantCode: http.StatusBadRequest, wantData: invalid},
			{name: "Bad uid", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: reset(token, "lol"), wantCode: http.StatusBadRequest, wantData: invalid},
			{
				name: "Reset", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: reset(token, uid), wantCode: http.StatusOK,
				wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
			},
			// the token is bound to the old password hash
			{name: "Token used", method: http.MethodPost, path: "/v1/auth/password-reset-confirm", body: reset(token, uid), wantCode: http.StatusBadRequest, wantData: invalid},
		})

		usr, err := env.usrRepo.GetUser(t.Context(), user.GetFilter{ID: parent.ID})
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("newpassword"))
	})
}
