package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/user"
)

// Manager is the only mutator of sessions: login, logout, profile update and refresh.
type Manager struct {
	store   Store
	ttl     time.Duration
	nowFunc func() time.Time // mockable
}

func NewManager(store Store, conf *core.Config) *Manager {
	return &Manager{
		store:   store,
		ttl:     conf.Session.TTL,
		nowFunc: time.Now,
	}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Login opens a new authenticated session for usr.
func (m *Manager) Login(ctx context.Context, usr user.User) (*Session, error) {
	now := m.nowFunc().UTC()
	sess := &Session{
		ID:            uuid.NewString(),
		User:          NewPrincipal(usr),
		Authenticated: true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return nil, errors.Wrap(err, "saving session")
	}
	return sess, nil
}

// Logout forgets the persisted session and turns sess anonymous.
func (m *Manager) Logout(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sess.ID); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "deleting session")
	}
	*sess = Session{}
	return nil
}

// UpdateProfile merges patch into the session's principal.
func (m *Manager) UpdateProfile(ctx context.Context, sess *Session, patch ProfilePatch) error {
	if !sess.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	patch.apply(sess.User)
	return errors.Wrap(m.store.Save(ctx, sess, m.remaining(sess)), "saving session")
}

// Load returns the stored session with the given id; ErrNotFound when missing or expired.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.nowFunc()) {
		_ = m.store.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Sync aligns sess with the current state of its user. A deactivated user is logged out; a changed role
// replaces the one recorded at login.
func (m *Manager) Sync(ctx context.Context, sess *Session, usr user.User) error {
	if !sess.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !usr.IsActive || usr.ID != sess.User.UserID {
		return m.Logout(ctx, sess)
	}
	if sess.User.Role == usr.Role {
		return nil
	}
	sess.User.Role = usr.Role
	return errors.Wrap(m.store.Save(ctx, sess, m.remaining(sess)), "saving session")
}

// Refresh pushes the expiry of sess one TTL away.
func (m *Manager) Refresh(ctx context.Context, sess *Session) error {
	if !sess.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	sess.ExpiresAt = m.nowFunc().UTC().Add(m.ttl)
	return errors.Wrap(m.store.Save(ctx, sess, m.ttl), "saving session")
}

func (m *Manager) remaining(sess *Session) time.Duration {
	if sess.ExpiresAt.IsZero() {
		return m.ttl
	}
	if d := sess.ExpiresAt.Sub(m.nowFunc()); d > 0 {
		return d
	}
	return time.Second
}
