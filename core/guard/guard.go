// Package guard decides whether a session may reach a destination.
package guard

import (
	"errors"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	DefaultLoginPath    = "/login"
	DefaultFallbackPath = "/"
	NextParam           = "next"
)

// ErrForbidden is the single failure kind: the session's role is insufficient.
var ErrForbidden = errors.New("permission denied")

type Outcome uint8

const (
	Allow Outcome = iota
	RedirectLogin
	RedirectFallback
	Forbid
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectFallback:
		return "redirect_fallback"
	case Forbid:
		return "forbid"
	default:
		return "unknown"
	}
}

type (
	// Requirement describes who may pass. Roles are checked against the hierarchy
	// unless Exact is set, in which case the session's role must be one of them.
	// No roles means any authenticated user.
	Requirement struct {
		Roles []user.Role
		Exact bool
	}

	// Options is the caller configuration of a guard.
	// Inline makes a failed role check render a forbidden message instead of redirecting to FallbackPath.
	Options struct {
		LoginPath    string
		FallbackPath string
		Inline       bool
	}

	Decision struct {
		Outcome  Outcome
		Location string // redirect target; empty for Allow and Forbid
		Err      error  // ErrForbidden for RedirectFallback and Forbid
	}
)

// Auth requires any authenticated user.
func Auth() Requirement { return Requirement{} }

// Roles requires a role at or above the highest of roles.
func Roles(roles ...user.Role) Requirement { return Requirement{Roles: roles} }

// ExactRoles requires one of roles exactly.
func ExactRoles(roles ...user.Role) Requirement { return Requirement{Roles: roles, Exact: true} }

func (req Requirement) Permits(role user.Role) bool {
	if req.Exact && len(req.Roles) > 0 {
		return role.In(req.Roles...)
	}
	return role.Satisfies(req.Roles...)
}

func (opts Options) withDefaults() Options {
	if opts.LoginPath == "" {
		opts.LoginPath = DefaultLoginPath
	}
	if opts.FallbackPath == "" {
		opts.FallbackPath = DefaultFallbackPath
	}
	return opts
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

// Check decides the fate of a navigation to dest. It never blocks.
func Check(sess *session.Session, dest string, req Requirement, opts Options) Decision {
	opts = opts.withDefaults()

	var d Decision
	switch {
	case !sess.IsAuthenticated():
		d = Decision{Outcome: RedirectLogin, Location: LoginURL(opts.LoginPath, dest)}
	case !req.Permits(sess.Role()):
		if opts.Inline {
			d = Decision{Outcome: Forbid, Err: ErrForbidden}
		} else {
			d = Decision{Outcome: RedirectFallback, Location: opts.FallbackPath, Err: ErrForbidden}
		}
	default:
		d = Decision{Outcome: Allow}
	}
	decisions.WithLabelValues(d.Outcome.String()).Inc()
	return d
}

// LoginURL builds the login location that preserves dest for the post-login redirect.
func LoginURL(loginPath, dest string) string {
	if dest == "" || !isLocalPath(dest) {
		return loginPath
	}
	q := url.Values{NextParam: {dest}}
	if strings.Contains(loginPath, "?") {
		return loginPath + "&" + q.Encode()
	}
	return loginPath + "?" + q.Encode()
}

// HomePath is the dashboard of a role.
func HomePath(role user.Role) string {
	switch role {
	case user.RoleAdmin, user.RoleDeveloper:
		return "/admin"
	case user.RoleTeacher:
		return "/teacher"
	case user.RoleParent:
		return "/parent"
	case user.RoleUnknown:
		return "/"
	default:
		return "/"
	}
}

// PostLoginRedirect returns next when it is a local path role may visit, the role's home otherwise.
func PostLoginRedirect(next string, role user.Role, routes Routes) string {
	if next == "" || !isLocalPath(next) {
		return HomePath(role)
	}
	u, err := url.Parse(next)
	if err != nil {
		return HomePath(role)
	}
	if req, ok := routes.Lookup(u.Path); ok && !req.Permits(role) {
		return HomePath(role)
	}
	return next
}

// isLocalPath rejects absolute and protocol-relative URLs so next cannot point off-site.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

var decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pueriangeli",
	Name:      "guard_decisions_total",
	Help:      "Route guard decisions by outcome.",
}, []string{"outcome"})

// Collector exposes the decision counter for registration.
func Collector() prometheus.Collector { return decisions }
