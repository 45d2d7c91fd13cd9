package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/pueriangeli/core/guard"
)

const appPrefix = "/app"

func (s *server) guardOptions(inline bool) guard.Options {
	return guard.Options{
		LoginPath:    s.opts.Conf.Server.LoginPath,
		FallbackPath: s.opts.Conf.Server.FallbackPath,
		Inline:       inline,
	}
}

// guardMiddleware runs guard.Check on every request.
// Inline mode answers 401 with the login location as a redirect hint, and 403 on a failed role check.
// Redirect mode answers 302 to the location the guard decided on.
func (s *server) guardMiddleware(req guard.Requirement, inline bool) echo.MiddlewareFunc {
	opts := s.guardOptions(inline)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			dest := destination(ctx)
			d := guard.Check(getContextSession(ctx), dest, req, opts)

			switch d.Outcome {
			case guard.Allow:
				return next(ctx)
			case guard.RedirectLogin:
				if inline {
					return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{
						"error":    errUnauthorized.Message,
						"redirect": d.Location,
					})
				}
				return ctx.Redirect(http.StatusFound, d.Location)
			case guard.RedirectFallback:
				return ctx.Redirect(http.StatusFound, d.Location)
			default:
				return errHttpForbidden
			}
		}
	}
}

// destination is the dashboard path a request is heading to: navigation routes drop their prefix.
func destination(ctx echo.Context) string {
	uri := ctx.Request().URL.RequestURI()
	if strings.HasPrefix(uri, appPrefix+"/") || uri == appPrefix {
		if uri = strings.TrimPrefix(uri, appPrefix); uri == "" {
			uri = "/"
		}
	}
	return uri
}
