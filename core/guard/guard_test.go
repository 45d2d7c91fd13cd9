package guard

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

func authed(role user.Role) *session.Session {
	return &session.Session{
		ID:            "sess",
		User:          &session.Principal{UserID: "usr", Role: role},
		Authenticated: true,
	}
}

func TestCheck(t *testing.T) {
	redirect := Options{LoginPath: "/login", FallbackPath: "/"}
	inline := Options{LoginPath: "/login", Inline: true}

	tests := []struct {
		name string
		sess *session.Session
		dest string
		req  Requirement
		opts Options
		want Decision
	}{
		{
			name: "nil session", sess: nil, dest: "/admin/teachers", req: Roles(user.RoleAdmin), opts: redirect,
			want: Decision{Outcome: RedirectLogin, Location: "/login?next=%2Fadmin%2Fteachers"},
		},
		{
			name: "anonymous session", sess: session.Anonymous(), dest: "/profile", req: Auth(), opts: inline,
			want: Decision{Outcome: RedirectLogin, Location: "/login?next=%2Fprofile"},
		},
		{
			name: "authenticated flag without user", sess: &session.Session{Authenticated: true}, dest: "/parent", opts: redirect,
			want: Decision{Outcome: RedirectLogin, Location: "/login?next=%2Fparent"},
		},
		{
			name: "teacher denied admin (redirect)", sess: authed(user.RoleTeacher), dest: "/admin/parents",
			req: Roles(user.RoleAdmin), opts: redirect,
			want: Decision{Outcome: RedirectFallback, Location: "/", Err: ErrForbidden},
		},
		{
			name: "teacher denied admin (inline)", sess: authed(user.RoleTeacher), dest: "/admin/parents",
			req: Roles(user.RoleAdmin), opts: inline,
			want: Decision{Outcome: Forbid, Err: ErrForbidden},
		},
		{
			name: "admin allowed teacher", sess: authed(user.RoleAdmin), dest: "/teacher/assignments",
			req: Roles(user.RoleTeacher), opts: redirect,
			want: Decision{Outcome: Allow},
		},
		{
			name: "admin denied exact teacher", sess: authed(user.RoleAdmin), dest: "/teacher/assignments",
			req: ExactRoles(user.RoleTeacher), opts: inline,
			want: Decision{Outcome: Forbid, Err: ErrForbidden},
		},
		{
			name: "unknown role denied", sess: authed(user.RoleUnknown), dest: "/profile", req: Auth(), opts: inline,
			want: Decision{Outcome: Forbid, Err: ErrForbidden},
		},
		{
			name: "parent allowed auth-only", sess: authed(user.RoleParent), dest: "/profile", req: Auth(), opts: redirect,
			want: Decision{Outcome: Allow},
		},
		{
			name: "default options", sess: nil, dest: "/admin", opts: Options{},
			want: Decision{Outcome: RedirectLogin, Location: "/login?next=%2Fadmin"},
		},
		{
			name: "external destination dropped", sess: nil, dest: "https://evil.test/", opts: redirect,
			want: Decision{Outcome: RedirectLogin, Location: "/login"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.sess, tt.dest, tt.req, tt.opts))
		})
	}
}

func TestCheck_Hierarchy(t *testing.T) {
	for _, r1 := range user.AllRoles {
		for _, r2 := range user.AllRoles {
			d := Check(authed(r1), "/x", Roles(r2), Options{Inline: true})
			assert.Equal(t, r1.Level() >= r2.Level(), d.Allowed(), "%s -> %s", r1, r2)

			// no session always goes to login
			d = Check(nil, "/x", Roles(r2), Options{})
			assert.Equal(t, RedirectLogin, d.Outcome)
		}
	}
}

func TestCheck_CountsDecisions(t *testing.T) {
	before := testutil.ToFloat64(decisions.WithLabelValues(Forbid.String()))
	Check(authed(user.RoleParent), "/admin", Roles(user.RoleAdmin), Options{Inline: true})
	assert.Equal(t, before+1, testutil.ToFloat64(decisions.WithLabelValues(Forbid.String())))
}

func TestHomePath(t *testing.T) {
	assert.Equal(t, "/admin", HomePath(user.RoleDeveloper))
	assert.Equal(t, "/admin", HomePath(user.RoleAdmin))
	assert.Equal(t, "/teacher", HomePath(user.RoleTeacher))
	assert.Equal(t, "/parent", HomePath(user.RoleParent))
	assert.Equal(t, "/", HomePath(user.RoleUnknown))
}

func TestPostLoginRedirect(t *testing.T) {
	tests := []struct {
		name string
		next string
		role user.Role
		want string
	}{
		{name: "no next", role: user.RoleTeacher, want: "/teacher"},
		{name: "allowed next", next: "/teacher/assignments", role: user.RoleAdmin, want: "/teacher/assignments"},
		{name: "allowed next with query", next: "/profile?tab=security", role: user.RoleParent, want: "/profile?tab=security"},
		{name: "forbidden next", next: "/admin/teachers", role: user.RoleTeacher, want: "/teacher"},
		{name: "unmapped next", next: "/somewhere", role: user.RoleParent, want: "/somewhere"},
		{name: "absolute next", next: "https://evil.test/admin", role: user.RoleAdmin, want: "/admin"},
		{name: "protocol-relative next", next: "//evil.test", role: user.RoleParent, want: "/parent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostLoginRedirect(tt.next, tt.role, AppRoutes))
		})
	}
}

func TestRoutes(t *testing.T) {
	req, ok := AppRoutes.Lookup("/admin/users/new/")
	assert.True(t, ok)
	assert.Equal(t, Roles(user.RoleAdmin), req)

	_, ok = AppRoutes.Lookup("/nope")
	assert.False(t, ok)

	paths := func(rs Routes) []string {
		ps := make([]string, 0, len(rs))
		for _, r := range rs {
			ps = append(ps, r.Path)
		}
		return ps
	}
	assert.Equal(t, []string{"/admin", "/parent", "/parent/assignments", "/profile", "/teacher"}, paths(AppRoutes.Visible(user.RoleParent)))
	assert.Equal(t, []string{"/admin", "/parent", "/parent/assignments", "/profile", "/teacher", "/teacher/assignments"}, paths(AppRoutes.Visible(user.RoleTeacher)))
	assert.Len(t, AppRoutes.Visible(user.RoleAdmin), len(AppRoutes))
	assert.Empty(t, AppRoutes.Visible(user.RoleUnknown))
}
