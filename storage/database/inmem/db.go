// Package inmemdb keeps every repository in process memory. Used in DEV, in TEST and by the test suites.
package inmemdb

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/coursework"
	"github.com/trezcool/pueriangeli/core/message"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
)

type (
	DB struct {
		user         *table[user.User]
		class        *table[classroom.Class]
		student      *table[classroom.Student]
		course       *table[classroom.Course]
		assignment   *table[coursework.Assignment]
		grade        *table[coursework.Grade]
		announcement *table[announcement.Announcement]
		message      *table[message.Message]
		session      *table[session.Session]
	}

	table[T any] struct {
		sync.RWMutex
		rows map[string]*T
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

func Open() (*DB, error) {
	return &DB{
		user:         newTable[user.User](),
		class:        newTable[classroom.Class](),
		student:      newTable[classroom.Student](),
		course:       newTable[classroom.Course](),
		assignment:   newTable[coursework.Assignment](),
		grade:        newTable[coursework.Grade](),
		announcement: newTable[announcement.Announcement](),
		message:      newTable[message.Message](),
		session:      newTable[session.Session](),
	}, nil
}

// Reset empties every table.
func (db *DB) Reset() {
	resetTable(db.user)
	resetTable(db.class)
	resetTable(db.student)
	resetTable(db.course)
	resetTable(db.assignment)
	resetTable(db.grade)
	resetTable(db.announcement)
	resetTable(db.message)
	resetTable(db.session)
}

func resetTable[T any](t *table[T]) {
	t.Lock()
	t.rows = make(map[string]*T)
	t.Unlock()
}

func (t *table[T]) filter(keep func(T) bool) []T {
	rows := make([]T, 0)
	for _, r := range t.rows {
		if keep(*r) {
			rows = append(rows, *r)
		}
	}
	return rows
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// orderedByCreation sorts rows newest first, the default ordering of every query.
func orderedByCreation[T any](rows []T, createdAt func(T) int64) {
	sort.SliceStable(rows, func(i, j int) bool { return createdAt(rows[i]) > createdAt(rows[j]) })
}

// orderBy sorts rows by ordering, falling back to the next field on ties.
func orderBy[T any](rows []T, ordering []core.DBOrdering, value func(T, string) interface{}) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			if less, decided := ord.Less(value(rows[i], ord.Field), value(rows[j], ord.Field)); decided {
				return less
			}
		}
		return false
	})
}
