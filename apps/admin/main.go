package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/trezcool/pueriangeli/core"
	logsvc "github.com/trezcool/pueriangeli/services/logger"
	"github.com/trezcool/pueriangeli/storage/database"
	inmemdb "github.com/trezcool/pueriangeli/storage/database/inmem"
	sqlxrepos "github.com/trezcool/pueriangeli/storage/database/sqlx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conf := core.NewConfig()
	logger := logsvc.NewZerolog(os.Stderr, conf).With().Str("component", "admin").Logger()

	cli := commandLine{out: os.Stdout}
	if conf.Database.InMemory {
		db, err := inmemdb.Open()
		if err != nil {
			logger.Fatal().Err(err).Msg("opening in-memory database")
		}
		cli.usrRepo = inmemdb.NewUserRepository(db)
	} else {
		db, err := database.Open(ctx, conf)
		if err != nil {
			logger.Fatal().Err(err).Msg("opening database")
		}
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
	}

	root := cli.rootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error().Err(err).Msg("command failed")
		}
		stop()
		os.Exit(1)
	}
}
