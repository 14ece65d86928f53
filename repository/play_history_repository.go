package repository

import (
	"errors"
	"fmt"
	"time"

	"WaveFM/model"

	"gorm.io/gorm"
)

// PlayHistoryRepository manages counted-play rows. It is one of the newer
// modules and uses GORM rather than raw SQL.
type PlayHistoryRepository interface {
	// OpenEntry records the start of a counted play.
	OpenEntry(userID, trackID int64) error
	// CloseLatest sets the listened duration on the most recent open entry
	// for the (user, track) pair. A missing open entry is a no-op: completion
	// signals may arrive for plays the debouncer never counted.
	CloseLatest(userID, trackID int64, listenedSeconds int) error
	// RecentByUser returns the newest entries for a user.
	RecentByUser(userID int64, limit int) ([]*model.PlayHistory, error)
	// DeleteByTrack removes all history rows for a track (track deletion).
	DeleteByTrack(trackID int64) error
}

type gormPlayHistoryRepository struct {
	db *gorm.DB
}

// NewGormPlayHistoryRepository creates a PlayHistoryRepository on GORM.
func NewGormPlayHistoryRepository(db *gorm.DB) PlayHistoryRepository {
	return &gormPlayHistoryRepository{db: db}
}

func (r *gormPlayHistoryRepository) OpenEntry(userID, trackID int64) error {
	entry := &model.PlayHistory{
		UserID:    userID,
		TrackID:   trackID,
		StartedAt: time.Now(),
	}
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create play history entry: %w", err)
	}
	return nil
}

func (r *gormPlayHistoryRepository) CloseLatest(userID, trackID int64, listenedSeconds int) error {
	var entry model.PlayHistory
	err := r.db.
		Where("user_id = ? AND track_id = ? AND ended_at IS NULL", userID, trackID).
		Order("started_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to find open play history entry: %w", err)
	}

	now := time.Now()
	entry.EndedAt = &now
	if listenedSeconds > 0 {
		entry.ListenedSeconds = listenedSeconds
	}

	if err := r.db.Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to close play history entry: %w", err)
	}
	return nil
}

func (r *gormPlayHistoryRepository) RecentByUser(userID int64, limit int) ([]*model.PlayHistory, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []*model.PlayHistory
	err := r.db.
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query play history for user %d: %w", userID, err)
	}
	return entries, nil
}

func (r *gormPlayHistoryRepository) DeleteByTrack(trackID int64) error {
	if err := r.db.Where("track_id = ?", trackID).Delete(&model.PlayHistory{}).Error; err != nil {
		return fmt.Errorf("failed to delete play history for track %d: %w", trackID, err)
	}
	return nil
}
