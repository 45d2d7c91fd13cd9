package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/pueriangeli/core/session"
)

type sessionStore struct {
	db *table[session.Session]
}

var _ session.Store = (*sessionStore)(nil) // interface compliance check

func NewSessionStore(db *DB) session.Store {
	return &sessionStore{db: db.session}
}

func copySession(s session.Session) *session.Session {
	if s.User != nil {
		p := *s.User
		s.User = &p
	}
	return &s
}

func (st *sessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	st.db.RLock()
	defer st.db.RUnlock()

	if s, ok := st.db.rows[id]; ok {
		return copySession(*s), nil
	}
	return nil, session.ErrNotFound
}

// Save keeps the session until its expiry; ttl is only applied when the session has none.
func (st *sessionStore) Save(_ context.Context, sess *session.Session, ttl time.Duration) error {
	st.db.Lock()
	defer st.db.Unlock()

	stored := copySession(*sess)
	if stored.ExpiresAt.IsZero() && ttl > 0 {
		stored.ExpiresAt = time.Now().UTC().Add(ttl)
	}
	st.db.rows[sess.ID] = stored
	return nil
}

func (st *sessionStore) Delete(_ context.Context, id string) error {
	st.db.Lock()
	defer st.db.Unlock()

	if _, ok := st.db.rows[id]; !ok {
		return session.ErrNotFound
	}
	delete(st.db.rows, id)
	return nil
}
