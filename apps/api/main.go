package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	dig_container "github.com/trezcool/pueriangeli/apps/api/di/dig"
	echoapi "github.com/trezcool/pueriangeli/apps/api/echo"
	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
)

// @title Pueri Angeli API
// @version 1.0
// @BasePath /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := dig_container.New(ctx)

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		cleanup *dig_container.Cleanup,
		shutdown *dig_container.Shutdown,
		server echoapi.Server,
		dispatcher *announcement.Dispatcher,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer apiLogger.Info("Application stopped")
		defer cleanup.Run(apiLogger)

		// =========================================================================
		// Start Debug Service
		//
		// /debug/vars - Added to the default mux by importing the expvar package.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start scheduled announcements dispatcher

		// stopDispatch returns once Run did, so no tick outlives the DB pool closed by cleanup
		stopDispatch := runInBackground(ctx, dispatcher.Run)
		defer stopDispatch()

		// =========================================================================
		// Start API Service

		serverErrors := make(chan error, 1)
		go func() {
			apiLogger.Info("API listening on " + conf.Server.Address())
			serverErrors <- server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-serverErrors:
			if err != nil {
				apiLogger.Error(fmt.Sprintf("server error: %v", err), err)
			}
			return

		case <-shutdown.C:
			apiLogger.Info("integrity issue: Start shutdown...")

		case <-ctx.Done():
			apiLogger.Info("signal received: Start shutdown...")
		}
		stopDispatch()

		// give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}))
}

// runInBackground starts run and returns a stop func that cancels it and waits for it to return.
// stop may be called more than once.
func runInBackground(ctx context.Context, run func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
