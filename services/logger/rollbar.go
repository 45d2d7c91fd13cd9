// Package logsvc logs through zerolog and reports to Rollbar when a token is configured.
package logsvc

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/pueriangeli/core"
)

type RollbarLogger struct {
	zl      zerolog.Logger
	enabled bool
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewZerolog builds the console logger: human readable when debugging, JSON otherwise.
func NewZerolog(out io.Writer, conf *core.Config) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if conf.Debug {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(parseLevel(conf.LogLevel)).
		With().
		Timestamp().
		Str("app", conf.AppName).
		Str("build", conf.Build).
		Logger()
}

func NewRollbarLogger(zl zerolog.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	l := &RollbarLogger{zl: zl}
	l.Enable(conf.RollbarToken != "" && !conf.TestMode)
	return l
}

// NewNopLogger discards everything. Used in tests.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{zl: zerolog.Nop()}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.enabled = enabled
	rollbar.SetEnabled(enabled)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// expected fmt: msg | error, map[string]interface{}, core.Person
func (l *RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var personSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set logged in user
		if p, ok := arg.(core.Person); ok {
			if !personSet { // only set one Person
				rollbar.SetPerson(p.ID, p.Username, p.Email)
				personSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l *RollbarLogger) write(evt *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			evt = evt.Err(a)
		case map[string]interface{}:
			evt = evt.Fields(a)
		case core.Person:
			evt = evt.Str("user_id", a.ID).Str("user_email", a.Email)
		default:
			evt = evt.Interface("extra", a)
		}
	}
	evt.Msg(msg)
}

func (l *RollbarLogger) report(level string, msg string, args []interface{}) {
	if !l.enabled {
		return
	}
	prepared := l.prepare(msg, args)
	switch level {
	case rollbar.DEBUG:
		rollbar.Debug(prepared...)
	case rollbar.INFO:
		rollbar.Info(prepared...)
	case rollbar.WARN:
		rollbar.Warning(prepared...)
	case rollbar.ERR:
		rollbar.Error(prepared...)
	default:
		rollbar.Critical(prepared...)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.write(l.zl.Debug(), msg, args)
	l.report(rollbar.DEBUG, msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.write(l.zl.Info(), msg, args)
	l.report(rollbar.INFO, msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.write(l.zl.Warn(), msg, args)
	l.report(rollbar.WARN, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.write(l.zl.Error(), msg, args)
	l.report(rollbar.ERR, msg, args)
}

// Fatal reports, flushes Rollbar and exits.
func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.write(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
	l.report(rollbar.CRIT, msg, args)
	rollbar.Close()
	os.Exit(1)
}
