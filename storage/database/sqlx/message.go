package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core/message"
)

const messageColumns = `id, sender_id, kind, to_id, to_name, subject, content, status, error,
	recipient_ids::text[] AS recipient_ids, sent_at, created_at, updated_at`

type messageRow struct {
	ID           string         `db:"id"`
	SenderID     string         `db:"sender_id"`
	Kind         message.Kind   `db:"kind"`
	ToID         string         `db:"to_id"`
	To           string         `db:"to_name"`
	Subject      string         `db:"subject"`
	Content      string         `db:"content"`
	Status       message.Status `db:"status"`
	Error        string         `db:"error"`
	RecipientIDs pq.StringArray `db:"recipient_ids"`
	SentAt       sql.NullTime   `db:"sent_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r messageRow) message() message.Message {
	return message.Message{
		ID:           r.ID,
		SenderID:     r.SenderID,
		Kind:         r.Kind,
		ToID:         r.ToID,
		To:           r.To,
		Subject:      r.Subject,
		Content:      r.Content,
		Status:       r.Status,
		Error:        r.Error,
		RecipientIDs: append([]string{}, r.RecipientIDs...),
		SentAt:       fromNullTime(r.SentAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type messageRepository struct {
	db *sqlx.DB
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sqlx.DB) message.Repository {
	return &messageRepository{db: db}
}

func (repo *messageRepository) CreateMessage(ctx context.Context, m message.Message) (message.Message, error) {
	m.ID = newID(m.ID)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO message (id, sender_id, kind, to_id, to_name, subject, content, status, error, recipient_ids,
			sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::uuid[], $11, $12, $13)`,
		m.ID, m.SenderID, m.Kind, m.ToID, m.To, m.Subject, m.Content, m.Status, m.Error, pq.Array(m.RecipientIDs),
		nullTime(m.SentAt), m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	return m, nil
}

func (repo *messageRepository) GetMessage(ctx context.Context, id string) (message.Message, error) {
	var row messageRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM message WHERE id::text = $1`, id)
	if err == sql.ErrNoRows {
		return message.Message{}, message.ErrNotFound
	}
	if err != nil {
		return message.Message{}, errors.Wrap(err, "getting message")
	}
	return row.message(), nil
}

func (repo *messageRepository) QueryMessages(ctx context.Context, filter message.Filter) ([]message.Message, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.SenderID != "" {
		where = append(where, "sender_id::text = "+arg(filter.SenderID))
	}
	if filter.RecipientID != "" {
		where = append(where, arg(filter.RecipientID)+" = ANY(recipient_ids::text[])")
	}
	if filter.Status != nil {
		where = append(where, "status = "+arg(*filter.Status))
	}

	q := `SELECT ` + messageColumns + ` FROM message`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	messages := make([]message.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.message())
	}
	return messages, nil
}

func (repo *messageRepository) UpdateMessage(ctx context.Context, m message.Message) (message.Message, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE message SET to_name = $2, subject = $3, content = $4, status = $5, error = $6,
			recipient_ids = $7::uuid[], sent_at = $8, updated_at = $9
		WHERE id = $1`,
		m.ID, m.To, m.Subject, m.Content, m.Status, m.Error, pq.Array(m.RecipientIDs), nullTime(m.SentAt),
		m.UpdatedAt.UTC(),
	)
	if err != nil {
		return message.Message{}, errors.Wrap(err, "updating message")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return message.Message{}, message.ErrNotFound
	}
	return m, nil
}
