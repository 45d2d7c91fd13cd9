package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/pueriangeli/core/session"
)

type sessionStore struct {
	client redis.UniversalClient
	prefix string
}

var _ session.Store = (*sessionStore)(nil) // interface compliance check

// NewSessionStore stores each session as JSON under <prefix><session id>, expiring with the session.
func NewSessionStore(client redis.UniversalClient, prefix string) session.Store {
	return &sessionStore{client: client, prefix: prefix}
}

func (st *sessionStore) key(id string) string { return st.prefix + id }

func (st *sessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := st.client.Get(ctx, st.key(id)).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	sess := new(session.Session)
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	return sess, nil
}

func (st *sessionStore) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return errors.Wrap(st.client.Set(ctx, st.key(sess.ID), data, ttl).Err(), "redis set")
}

func (st *sessionStore) Delete(ctx context.Context, id string) error {
	n, err := st.client.Del(ctx, st.key(id)).Result()
	if err != nil {
		return errors.Wrap(err, "redis del")
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}
