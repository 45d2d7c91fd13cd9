package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core/dashboard"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

const adminPath = "/admin"

type (
	// Page describes a dashboard destination to the client that renders it.
	Page struct {
		Path   string                `json:"path"`
		Title  string                `json:"title"`
		User   *session.Principal    `json:"user"`
		Home   string                `json:"home"`
		Routes []NavItem             `json:"routes"`
		Stats  *dashboard.AdminStats `json:"stats,omitempty"` // admin dashboard only
	}

	NavItem struct {
		Path  string `json:"path"`
		Title string `json:"title"`
	}
)

// registerAppRoutes mounts every route of the map under g, each behind a redirecting guard.
func registerAppRoutes(g *echo.Group, s *server, routes guard.Routes) {
	for _, r := range routes {
		g.GET(r.Path, s.page(r, routes), s.appGuard(r.Requirement))
	}
	// `/app` itself sends a signed-in user to their dashboard
	g.GET("", func(ctx echo.Context) error {
		return ctx.Redirect(http.StatusFound, appPrefix+guard.HomePath(getContextSession(ctx).Role()))
	}, s.appGuard(guard.Auth()))
}

func (s *server) page(r guard.Route, routes guard.Routes) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess := getContextSession(ctx)
		visible := routes.Visible(sess.Role())

		nav := make([]NavItem, 0, len(visible))
		for _, v := range visible {
			nav = append(nav, NavItem{Path: v.Path, Title: v.Title})
		}
		p := Page{
			Path:   r.Path,
			Title:  r.Title,
			User:   sess.User,
			Home:   guard.HomePath(sess.Role()),
			Routes: nav,
		}
		if r.Path == adminPath && sess.Role().Satisfies(user.RoleAdmin) {
			stats, err := s.opts.DashboardSvc.AdminStats(ctx.Request().Context(), time.Now())
			if err != nil {
				return errors.Wrap(err, "computing admin stats")
			}
			p.Stats = &stats
		}
		return ctx.JSON(http.StatusOK, p)
	}
}
