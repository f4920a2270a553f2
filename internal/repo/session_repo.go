// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// CaptureSession model. Expiry is enforced on the read path: an expired row
// is invisible to GetSession and behaves exactly like no session, so no
// background reaper is required for correctness. PurgeExpiredSessions
// exists only to keep the table small.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// GetSession returns the submitter's unexpired capture session, or
// ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, submitterID string, now time.Time) (*domain.CaptureSession, error) {
	var s domain.CaptureSession
	err := db.WithContext(ctx).
		Where("submitter_id = ? AND expires_at > ?", submitterID, now).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession upserts the submitter's session. A fresh image always
// replaces whatever was in flight, so the write is a full overwrite keyed
// on submitter id.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.CaptureSession) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submitter_id"}},
			UpdateAll: true,
		}).
		Create(s).Error
}

// DeleteSession removes the submitter's session. Deleting a session that
// does not exist is not an error.
func DeleteSession(ctx context.Context, db *gorm.DB, submitterID string) error {
	return db.WithContext(ctx).
		Where("submitter_id = ?", submitterID).
		Delete(&domain.CaptureSession{}).Error
}

// PurgeExpiredSessions deletes sessions whose expiry has passed and returns
// how many rows were removed.
func PurgeExpiredSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.CaptureSession{})
	return res.RowsAffected, res.Error
}
