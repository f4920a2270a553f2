// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a notification is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - TransitionNotification returns ErrIllegalTransition when the row
//     exists but is no longer PENDING; the conditional UPDATE is what makes
//     concurrent settlement of the same alert safe.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrIllegalTransition is returned when a status change is requested on a
// row that already left the required source state.
var ErrIllegalTransition = errors.New("illegal status transition")

// isUniqueViolation recognizes unique-constraint failures across the error
// shapes the pure-Go SQLite driver produces.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateNotification inserts a new notification row. A missing ID is filled
// with a random UUID and a zero CreatedAt with the current UTC time.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

// GetNotification fetches a notification by ID, or ErrNotFound.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// FindPendingBySecurityCode returns PENDING notifications carrying the
// given security code and created after since, oldest first. The ascending
// order makes candidate selection deterministic under retries.
func FindPendingBySecurityCode(ctx context.Context, db *gorm.DB, code string, since time.Time) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("security_code = ? AND status = ? AND created_at > ?", code, domain.StatusPending, since).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// TransitionNotification moves a notification from PENDING to a terminal
// status with a conditional UPDATE. If no row changed it distinguishes a
// missing row (ErrNotFound) from one that was already settled
// (ErrIllegalTransition).
func TransitionNotification(ctx context.Context, db *gorm.DB, id string, to domain.Status) error {
	if !domain.StatusPending.CanTransitionTo(to) {
		return ErrIllegalTransition
	}
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).
			Model(&domain.Notification{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrIllegalTransition
	}
	return nil
}

// ListNotificationsPage returns a paginated slice of notifications in a
// given status, newest first. Use CountNotifications for pagination
// metadata.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, status domain.Status, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountNotifications returns the total number of notifications in a status.
func CountNotifications(ctx context.Context, db *gorm.DB, status domain.Status) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("status = ?", status).
		Count(&total).Error
	return total, err
}
