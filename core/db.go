package core

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderingFields returns the orderings whose field is in allowed; others are dropped.
func OrderingFields(ordering []DBOrdering, allowed ...string) []DBOrdering {
	if len(ordering) == 0 {
		return nil
	}
	allowed = append([]string(nil), allowed...)
	sort.Strings(allowed)
	kept := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if i := sort.SearchStrings(allowed, ord.Field); i < len(allowed) && allowed[i] == ord.Field {
			kept = append(kept, ord)
		}
	}
	return kept
}

// Less compares a and b for in-memory sorting. It returns (less, decided).
func (ord DBOrdering) Less(a, b interface{}) (bool, bool) {
	var cmp int
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		cmp = strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case int:
		y, _ := b.(int)
		cmp = x - y
	case bool:
		y, _ := b.(bool)
		if x != y {
			if y {
				cmp = -1
			} else {
				cmp = 1
			}
		}
	case time.Time:
		y, _ := b.(time.Time)
		switch {
		case x.Before(y):
			cmp = -1
		case x.After(y):
			cmp = 1
		}
	}
	if cmp == 0 {
		return false, false
	}
	if ord.Ascending {
		return cmp < 0, true
	}
	return cmp > 0, true
}
