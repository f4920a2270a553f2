// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// NotificationsStats returns aggregate metadata for notifications in a
// status: the total number of rows and the maximum UpdatedAt timestamp
// among those rows. When there are no rows, the returned count is 0 and
// maxUpdatedAt is nil.
func NotificationsStats(ctx context.Context, db *gorm.DB, status domain.Status) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("status = ?", status)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// SalesStats returns aggregate metadata for sales, optionally scoped to a
// status: the total number of rows and the maximum UpdatedAt timestamp
// among those rows. When there are no rows, the returned count is 0 and
// maxUpdatedAt is nil.
func SalesStats(ctx context.Context, db *gorm.DB, status *domain.Status) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Sale{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
