// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Device
// model (registered receiving devices).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// GetDevice fetches a device by code, or ErrNotFound.
func GetDevice(ctx context.Context, db *gorm.DB, code string) (*domain.Device, error) {
	var d domain.Device
	if err := db.WithContext(ctx).Where("code = ?", code).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices returns registered devices ordered by code. With activeOnly
// set, disabled devices are excluded.
func ListDevices(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Device, error) {
	var out []domain.Device
	q := db.WithContext(ctx).Order("code ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Find(&out).Error
	return out, err
}

// CreateDevice registers a device, returning ErrDuplicate when the code is
// already taken.
func CreateDevice(ctx context.Context, db *gorm.DB, d *domain.Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SeedDevices registers any of the given devices that do not exist yet.
// Existing rows are left untouched so operator edits survive restarts.
func SeedDevices(ctx context.Context, db *gorm.DB, devices []domain.Device) error {
	for i := range devices {
		err := db.WithContext(ctx).
			Where("code = ?", devices[i].Code).
			FirstOrCreate(&devices[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// TouchDeviceSeen records that a device produced a notification at the
// given time. Used by health reporting to spot devices that went quiet.
func TouchDeviceSeen(ctx context.Context, db *gorm.DB, code string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("code = ?", code).
		Updates(map[string]any{"last_notification_at": at, "updated_at": at}).Error
}
