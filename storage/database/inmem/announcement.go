package inmemdb

import (
	"context"

	"github.com/trezcool/pueriangeli/core/announcement"
)

type announcementRepository struct {
	db *table[announcement.Announcement]
}

var _ announcement.Repository = (*announcementRepository)(nil) // interface compliance check

func NewAnnouncementRepository(db *DB) announcement.Repository {
	return &announcementRepository{db: db.announcement}
}

func (repo *announcementRepository) CreateAnnouncement(_ context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a.ID = newID(a.ID)
	repo.db.rows[a.ID] = &a
	return a, nil
}

func (repo *announcementRepository) GetAnnouncement(_ context.Context, id string) (announcement.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.rows[id]; ok {
		return *a, nil
	}
	return announcement.Announcement{}, announcement.ErrNotFound
}

func (repo *announcementRepository) QueryAnnouncements(_ context.Context, status *announcement.Status) ([]announcement.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	announcements := repo.db.filter(func(a announcement.Announcement) bool {
		return status == nil || a.Status == *status
	})
	orderedByCreation(announcements, func(a announcement.Announcement) int64 { return a.CreatedAt.UnixNano() })
	return announcements, nil
}

func (repo *announcementRepository) UpdateAnnouncement(_ context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[a.ID]; !ok {
		return announcement.Announcement{}, announcement.ErrNotFound
	}
	repo.db.rows[a.ID] = &a
	return a, nil
}

func (repo *announcementRepository) DeleteAnnouncement(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return announcement.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}
