package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core/announcement"
)

const announcementColumns = `id, title, content, audience, COALESCE(class_id::text, '') AS class_id, status,
	scheduled_at, sent_at, COALESCE(author_id::text, '') AS author_id, error, created_at, updated_at`

type announcementRow struct {
	ID          string                `db:"id"`
	Title       string                `db:"title"`
	Content     string                `db:"content"`
	Audience    announcement.Audience `db:"audience"`
	ClassID     string                `db:"class_id"`
	Status      announcement.Status   `db:"status"`
	ScheduledAt sql.NullTime          `db:"scheduled_at"`
	SentAt      sql.NullTime          `db:"sent_at"`
	AuthorID    string                `db:"author_id"`
	Error       string                `db:"error"`
	CreatedAt   time.Time             `db:"created_at"`
	UpdatedAt   time.Time             `db:"updated_at"`
}

func (r announcementRow) announcement() announcement.Announcement {
	return announcement.Announcement{
		ID:          r.ID,
		Title:       r.Title,
		Content:     r.Content,
		Audience:    r.Audience,
		ClassID:     r.ClassID,
		Status:      r.Status,
		ScheduledAt: fromNullTime(r.ScheduledAt),
		SentAt:      fromNullTime(r.SentAt),
		AuthorID:    r.AuthorID,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type announcementRepository struct {
	db *sqlx.DB
}

var _ announcement.Repository = (*announcementRepository)(nil) // interface compliance check

func NewAnnouncementRepository(db *sqlx.DB) announcement.Repository {
	return &announcementRepository{db: db}
}

func (repo *announcementRepository) CreateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	a.ID = newID(a.ID)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO announcement (id, title, content, audience, class_id, status, scheduled_at, sent_at, author_id,
			error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Title, a.Content, a.Audience, nullString(a.ClassID), a.Status, nullTime(a.ScheduledAt),
		nullTime(a.SentAt), nullString(a.AuthorID), a.Error, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return announcement.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return a, nil
}

func (repo *announcementRepository) GetAnnouncement(ctx context.Context, id string) (announcement.Announcement, error) {
	var row announcementRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+announcementColumns+` FROM announcement WHERE id::text = $1`, id)
	if err == sql.ErrNoRows {
		return announcement.Announcement{}, announcement.ErrNotFound
	}
	if err != nil {
		return announcement.Announcement{}, errors.Wrap(err, "getting announcement")
	}
	return row.announcement(), nil
}

func (repo *announcementRepository) QueryAnnouncements(ctx context.Context, status *announcement.Status) ([]announcement.Announcement, error) {
	q := `SELECT ` + announcementColumns + ` FROM announcement`
	var args []interface{}
	if status != nil {
		q += ` WHERE status = $1`
		args = append(args, *status)
	}
	q += ` ORDER BY created_at DESC`

	var rows []announcementRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	announcements := make([]announcement.Announcement, 0, len(rows))
	for _, r := range rows {
		announcements = append(announcements, r.announcement())
	}
	return announcements, nil
}

func (repo *announcementRepository) UpdateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE announcement SET title = $2, content = $3, audience = $4, class_id = $5, status = $6,
			scheduled_at = $7, sent_at = $8, error = $9, updated_at = $10
		WHERE id = $1`,
		a.ID, a.Title, a.Content, a.Audience, nullString(a.ClassID), a.Status, nullTime(a.ScheduledAt),
		nullTime(a.SentAt), a.Error, a.UpdatedAt.UTC(),
	)
	if err != nil {
		return announcement.Announcement{}, errors.Wrap(err, "updating announcement")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return announcement.Announcement{}, announcement.ErrNotFound
	}
	return a, nil
}

func (repo *announcementRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "announcement", id, announcement.ErrNotFound)
}
