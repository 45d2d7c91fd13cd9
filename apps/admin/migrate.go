package main

import (
	"database/sql"
	"errors"

	"github.com/trezcool/goose"

	appfs "github.com/trezcool/pueriangeli/fs"
)

var (
	gooseRunFunc = func(command string, db *sql.DB, args ...string) error { // mockable
		return goose.RunFS(command, db, appfs.FS, "migrations", args...)
	}

	errNoSQLDatabase = errors.New("migrations need a SQL database: the in-memory database is enabled")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDatabase
	}
	return gooseRunFunc(args[0], cli.db, args[1:]...)
}
