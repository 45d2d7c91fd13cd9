package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/trezcool/pueriangeli/apps/api/echo/docs" // swagger spec
	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/coursework"
	"github.com/trezcool/pueriangeli/core/dashboard"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/message"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Registry       *prometheus.Registry // nil disables /metrics
		DisableReqLogs bool
		SignalShutdown func()

		Sessions        *session.Manager
		UserSvc         user.Service
		ClassroomSvc    classroom.Service
		CourseworkSvc   coursework.Service
		AnnouncementSvc announcement.Service
		MessageSvc      message.Service
		DashboardSvc    dashboard.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.opts.Registry != nil {
		s.app.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Namespace:  "pueriangeli",
			Registerer: s.opts.Registry,
			Skipper: func(ctx echo.Context) bool {
				return ctx.Path() == "/metrics"
			},
		}))
		s.app.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: s.opts.Registry,
		}))
	}
	s.app.Use(s.sessionMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/health", health)
	s.app.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := s.app.Group("/v1")
	registerAuthAPI(v1, s)
	registerUserAPI(v1, s)
	registerClassroomAPI(v1, s)
	registerCourseworkAPI(v1, s)
	registerAnnouncementAPI(v1, s)
	registerMessageAPI(v1, s)

	registerAppRoutes(s.app.Group("/app"), s, guard.AppRoutes)
}

// Start blocks until the server stops; a graceful Stop is not an error.
func (s *server) Start() error {
	s.app.Server.ReadTimeout = s.opts.Conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = s.opts.Conf.Server.WriteTimeout
	if err := s.app.Start(s.opts.Conf.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// apiGuard guards /v1 routes: failures are rendered inline as 401 or 403.
func (s *server) apiGuard(req guard.Requirement) echo.MiddlewareFunc {
	return s.guardMiddleware(req, true)
}

// appGuard guards navigation routes: failures redirect to the login page or the fallback page.
func (s *server) appGuard(req guard.Requirement) echo.MiddlewareFunc {
	return s.guardMiddleware(req, false)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Pueri Angeli API!")
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
