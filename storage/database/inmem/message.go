package inmemdb

import (
	"context"

	"github.com/trezcool/pueriangeli/core/message"
)

type messageRepository struct {
	db *table[message.Message]
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db.message}
}

func (repo *messageRepository) CreateMessage(_ context.Context, m message.Message) (message.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	m.ID = newID(m.ID)
	m.RecipientIDs = append([]string{}, m.RecipientIDs...)
	repo.db.rows[m.ID] = &m
	return m, nil
}

func (repo *messageRepository) GetMessage(_ context.Context, id string) (message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if m, ok := repo.db.rows[id]; ok {
		return *m, nil
	}
	return message.Message{}, message.ErrNotFound
}

func (repo *messageRepository) QueryMessages(_ context.Context, filter message.Filter) ([]message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	messages := repo.db.filter(filter.Match)
	orderedByCreation(messages, func(m message.Message) int64 { return m.CreatedAt.UnixNano() })
	return messages, nil
}

func (repo *messageRepository) UpdateMessage(_ context.Context, m message.Message) (message.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[m.ID]; !ok {
		return message.Message{}, message.ErrNotFound
	}
	m.RecipientIDs = append([]string{}, m.RecipientIDs...)
	repo.db.rows[m.ID] = &m
	return m, nil
}
