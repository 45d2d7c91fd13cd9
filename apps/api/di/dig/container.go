package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/pueriangeli/apps/api/echo"
	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/coursework"
	"github.com/trezcool/pueriangeli/core/dashboard"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/message"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
	blobsvc "github.com/trezcool/pueriangeli/services/blob"
	emailsvc "github.com/trezcool/pueriangeli/services/email"
	logsvc "github.com/trezcool/pueriangeli/services/logger"
	"github.com/trezcool/pueriangeli/storage/database"
	inmemdb "github.com/trezcool/pueriangeli/storage/database/inmem"
	sqlxrepos "github.com/trezcool/pueriangeli/storage/database/sqlx"
	redisstore "github.com/trezcool/pueriangeli/storage/redis"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Repositories are provided together: they share one database.
	Repositories struct {
		dig.Out
		Users         user.Repository
		Classes       classroom.Repository
		Coursework    coursework.Repository
		Announcements announcement.Repository
		Messages      message.Repository
	}

	serverParams struct {
		dig.In
		Conf            *core.Config
		Logger          core.Logger
		Validate        *validator.Validate
		Registry        *prometheus.Registry
		Sessions        *session.Manager
		UserSvc         user.Service
		ClassroomSvc    classroom.Service
		CourseworkSvc   coursework.Service
		AnnouncementSvc announcement.Service
		MessageSvc      message.Service
		DashboardSvc    dashboard.Service
		Shutdown        *Shutdown
	}
)

// Cleanup collects the release functions of the resources opened by the providers.
type Cleanup struct {
	mu    sync.Mutex
	funcs []func() error
}

func (c *Cleanup) add(f func() error) {
	c.mu.Lock()
	c.funcs = append(c.funcs, f)
	c.mu.Unlock()
}

// Run releases the resources, last opened first.
func (c *Cleanup) Run(logger core.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.funcs) - 1; i >= 0; i-- {
		if err := c.funcs[i](); err != nil {
			logger.Error("releasing resource", err)
		}
	}
	c.funcs = nil
}

// Shutdown is closed by the server when it hits an error it cannot recover from.
type Shutdown struct {
	once sync.Once
	C    chan struct{}
}

func (s *Shutdown) Signal() { s.once.Do(func() { close(s.C) }) }

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewZerolog(os.Stdout, conf).With().Str("component", "api").Logger(), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewZerolog(os.Stdout, conf).With().Str("component", "db").Logger(), conf)
}

func newRepositories(ctx context.Context, conf *core.Config, loggerParam DBLoggerParam, cleanup *Cleanup) (Repositories, error) {
	if conf.Database.InMemory {
		db, err := inmemdb.Open()
		if err != nil {
			return Repositories{}, errors.Wrap(err, "opening in-memory database")
		}
		loggerParam.Logger.Info("using the in-memory database")
		return Repositories{
			Users:         inmemdb.NewUserRepository(db),
			Classes:       inmemdb.NewClassroomRepository(db),
			Coursework:    inmemdb.NewCourseworkRepository(db),
			Announcements: inmemdb.NewAnnouncementRepository(db),
			Messages:      inmemdb.NewMessageRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return Repositories{}, errors.Wrap(err, "setting up database")
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return Repositories{}, err
	}
	cleanup.add(db.Close)
	if err = database.Migrate(db.DB); err != nil {
		return Repositories{}, err
	}
	loggerParam.Logger.Info("database ready", map[string]interface{}{"host": conf.Database.Address(), "name": conf.Database.Name})

	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Classes:       sqlxrepos.NewClassroomRepository(db),
		Coursework:    sqlxrepos.NewCourseworkRepository(db),
		Announcements: sqlxrepos.NewAnnouncementRepository(db),
		Messages:      sqlxrepos.NewMessageRepository(db),
	}, nil
}

func newSessionStore(ctx context.Context, conf *core.Config, cleanup *Cleanup) (session.Store, error) {
	switch conf.Session.Backend {
	case "redis":
		client, err := redisstore.Connect(ctx, conf.Redis)
		if err != nil {
			return nil, err
		}
		cleanup.add(client.Close)
		return redisstore.NewSessionStore(client, conf.Session.KeyPrefix), nil
	case "memory", "":
		db, err := inmemdb.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening in-memory session store")
		}
		return inmemdb.NewSessionStore(db), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", conf.Session.Backend)
	}
}

func newBlobStore(ctx context.Context, conf *core.Config) (core.BlobStore, error) {
	switch conf.Documents.Backend {
	case "s3":
		return blobsvc.NewS3Store(ctx, conf.Documents)
	case "local", "":
		return blobsvc.NewLocalStore(conf.Documents.LocalDir)
	default:
		return nil, fmt.Errorf("unknown documents backend %q", conf.Documents.Backend)
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() *validator.Validate {
	return validator.New()
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		guard.Collector(),
	)
	return reg
}

func newServer(p serverParams) echoapi.Server {
	translator := core.NewTranslator()
	core.InitValidators(p.Validate, translator)
	user.InitValidators(p.Validate, translator)

	return echoapi.NewServer(&echoapi.Options{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      translator,
		Registry:        p.Registry,
		SignalShutdown:  p.Shutdown.Signal,
		Sessions:        p.Sessions,
		UserSvc:         p.UserSvc,
		ClassroomSvc:    p.ClassroomSvc,
		CourseworkSvc:   p.CourseworkSvc,
		AnnouncementSvc: p.AnnouncementSvc,
		MessageSvc:      p.MessageSvc,
		DashboardSvc:    p.DashboardSvc,
	})
}

func newDispatcher(conf *core.Config, svc announcement.Service, logger core.Logger) *announcement.Dispatcher {
	return announcement.NewDispatcher(svc, logger, conf.DispatchInterval)
}

// New returns a new dependency injection dig.Container.
// ctx bounds the connections opened while building the graph.
func New(ctx context.Context) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(func() *Cleanup { return new(Cleanup) }))
	must(c.Provide(func() *Shutdown { return &Shutdown{C: make(chan struct{})} }))

	// storage
	must(c.Provide(func(conf *core.Config, p DBLoggerParam, cleanup *Cleanup) (Repositories, error) {
		return newRepositories(ctx, conf, p, cleanup)
	}))
	must(c.Provide(func(conf *core.Config, cleanup *Cleanup) (session.Store, error) {
		return newSessionStore(ctx, conf, cleanup)
	}))
	must(c.Provide(func(conf *core.Config) (core.BlobStore, error) {
		return newBlobStore(ctx, conf)
	}))

	// services
	must(c.Provide(newEmailService))
	must(c.Provide(session.NewManager))
	must(c.Provide(user.NewService, dig.As(
		new(user.Service),
		new(classroom.UserGetter),
		new(announcement.Users),
		new(message.Users),
		new(dashboard.Users),
	)))
	must(c.Provide(classroom.NewService, dig.As(
		new(classroom.Service),
		new(coursework.Classes),
		new(announcement.Classes),
		new(message.Classes),
		new(dashboard.Classes),
	)))
	must(c.Provide(coursework.NewService, dig.As(
		new(coursework.Service),
		new(dashboard.Assignments),
	)))
	must(c.Provide(announcement.NewService))
	must(c.Provide(message.NewService))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(newDispatcher))

	// API
	must(c.Provide(newValidator))
	must(c.Provide(newRegistry))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
