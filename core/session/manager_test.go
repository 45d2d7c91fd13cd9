package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
	inmemdb "github.com/trezcool/pueriangeli/storage/database/inmem"
)

var teacher = user.User{
	ID:        "9d5c4b8e-1a49-4b0e-9d5e-2f0b7f3c2a11",
	FirstName: "Jane",
	LastName:  "Doe",
	Email:     "jane@example.com",
	Role:      user.RoleTeacher,
	IsActive:  true,
}

func newManager(t *testing.T) (*session.Manager, session.Store) {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	store := inmemdb.NewSessionStore(db)
	return session.NewManager(store, core.NewTestConfig()), store
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	sess, err := mgr.Login(ctx, teacher)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, user.RoleTeacher, sess.Role())
	assert.Equal(t, teacher.ID, sess.UserID())
	assert.Equal(t, "Jane Doe", sess.User.Name())
	assert.Equal(t, sess.CreatedAt.Add(mgr.TTL()), sess.ExpiresAt)

	stored, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.User, stored.User)

	other, err := mgr.Login(ctx, teacher)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID, "every login opens a distinct session")
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	sess, err := mgr.Login(ctx, teacher)
	require.NoError(t, err)
	id := sess.ID

	require.NoError(t, mgr.Logout(ctx, sess))
	assert.False(t, sess.IsAuthenticated())
	assert.Nil(t, sess.User)
	assert.Equal(t, user.RoleUnknown, sess.Role())

	_, err = store.Get(ctx, id)
	assert.Equal(t, session.ErrNotFound, err)

	// logging out twice, or without a session, is a no-op
	assert.NoError(t, mgr.Logout(ctx, sess))
	assert.NoError(t, mgr.Logout(ctx, nil))
	assert.NoError(t, mgr.Logout(ctx, &session.Session{ID: "gone"}))
}

func TestManager_Sync(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	assert.Equal(t, session.ErrNotAuthenticated, mgr.Sync(ctx, session.Anonymous(), teacher))

	t.Run("role change is taken over", func(t *testing.T) {
		sess, err := mgr.Login(ctx, teacher)
		require.NoError(t, err)

		promoted := teacher
		promoted.Role = user.RoleAdmin
		require.NoError(t, mgr.Sync(ctx, sess, promoted))
		assert.Equal(t, user.RoleAdmin, sess.Role())

		stored, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, user.RoleAdmin, stored.Role())
	})

	t.Run("deactivated user is logged out", func(t *testing.T) {
		sess, err := mgr.Login(ctx, teacher)
		require.NoError(t, err)
		id := sess.ID

		inactive := teacher
		inactive.IsActive = false
		require.NoError(t, mgr.Sync(ctx, sess, inactive))
		assert.False(t, sess.IsAuthenticated())

		_, err = store.Get(ctx, id)
		assert.Equal(t, session.ErrNotFound, err)
	})
}

func TestManager_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	t.Run("anonymous", func(t *testing.T) {
		err := mgr.UpdateProfile(ctx, session.Anonymous(), session.ProfilePatch{FirstName: "X"})
		assert.Equal(t, session.ErrNotAuthenticated, err)
	})

	t.Run("merges non-empty fields", func(t *testing.T) {
		sess, err := mgr.Login(ctx, teacher)
		require.NoError(t, err)

		err = mgr.UpdateProfile(ctx, sess, session.ProfilePatch{LastName: "Smith", Email: "jane.smith@example.com"})
		require.NoError(t, err)

		want := session.Principal{
			UserID:    teacher.ID,
			FirstName: "Jane",
			LastName:  "Smith",
			Email:     "jane.smith@example.com",
			Role:      user.RoleTeacher,
		}
		assert.Equal(t, want, *sess.User)

		stored, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, want, *stored.User)
		assert.Equal(t, sess.ExpiresAt, stored.ExpiresAt, "profile updates keep the expiry")
	})
}

func TestManager_Load(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	sess, err := mgr.Login(ctx, teacher)
	require.NoError(t, err)

	t.Run("empty id", func(t *testing.T) {
		_, err := mgr.Load(ctx, "")
		assert.Equal(t, session.ErrNotFound, err)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := mgr.Load(ctx, "unknown")
		assert.Equal(t, session.ErrNotFound, err)
	})

	t.Run("live session", func(t *testing.T) {
		got, err := mgr.Load(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.Equal(t, user.RoleTeacher, got.Role())
	})

	t.Run("expired session is dropped", func(t *testing.T) {
		session.SetNowFunc(mgr, func() time.Time { return sess.ExpiresAt.Add(time.Second) })
		defer session.SetNowFunc(mgr, time.Now)

		_, err := mgr.Load(ctx, sess.ID)
		assert.Equal(t, session.ErrNotFound, err)

		_, err = store.Get(ctx, sess.ID)
		assert.Equal(t, session.ErrNotFound, err)
	})
}

func TestManager_Refresh(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager(t)

	assert.Equal(t, session.ErrNotAuthenticated, mgr.Refresh(ctx, nil))

	sess, err := mgr.Login(ctx, teacher)
	require.NoError(t, err)

	later := time.Now().Add(30 * time.Minute)
	session.SetNowFunc(mgr, func() time.Time { return later })

	require.NoError(t, mgr.Refresh(ctx, sess))
	assert.Equal(t, later.UTC().Add(mgr.TTL()), sess.ExpiresAt)

	stored, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ExpiresAt, stored.ExpiresAt)
}

func TestSession_NilSafe(t *testing.T) {
	var sess *session.Session
	assert.False(t, sess.IsAuthenticated())
	assert.Equal(t, user.RoleUnknown, sess.Role())
	assert.Empty(t, sess.UserID())

	flagOnly := &session.Session{Authenticated: true}
	assert.False(t, flagOnly.IsAuthenticated(), "authenticated without a principal is anonymous")
}
