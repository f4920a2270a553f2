// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Sale
// model, including the conditional insert that enforces one sale per
// operation id.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// ErrDuplicate indicates a sale already exists for the operation id.
var ErrDuplicate = errors.New("duplicate")

// CreateSale inserts a sale row and returns ErrDuplicate on a unique
// violation of the operation id index. The violation path is the designed
// behavior under concurrent validation attempts, not an anomaly.
func CreateSale(ctx context.Context, db *gorm.DB, s *domain.Sale) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSale fetches a sale by ID, or ErrNotFound.
func GetSale(ctx context.Context, db *gorm.DB, id string) (*domain.Sale, error) {
	var s domain.Sale
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSaleByOperation fetches the sale recorded for an operation id, or
// ErrNotFound when the operation has never been settled.
func GetSaleByOperation(ctx context.Context, db *gorm.DB, operationID string) (*domain.Sale, error) {
	var s domain.Sale
	if err := db.WithContext(ctx).Where("operation_id = ?", operationID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSalesPage returns a paginated slice of sales, newest first. A nil
// status lists every sale; otherwise the listing is scoped to one status.
func ListSalesPage(ctx context.Context, db *gorm.DB, status *domain.Status, offset, limit int) ([]domain.Sale, error) {
	var out []domain.Sale
	q := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountSales returns the number of sales, optionally scoped to a status.
func CountSales(ctx context.Context, db *gorm.DB, status *domain.Status) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Sale{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	err := q.Count(&total).Error
	return total, err
}

// DecideSale settles a MANUAL_REVIEW sale with a human verdict using a
// conditional UPDATE scoped to the review state. If no row changed it
// distinguishes a missing sale (ErrNotFound) from one already settled
// (ErrIllegalTransition).
func DecideSale(ctx context.Context, db *gorm.DB, id string, to domain.Status, now time.Time) error {
	if !domain.StatusManualReview.CanTransitionTo(to) {
		return ErrIllegalTransition
	}
	res := db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("id = ? AND status = ?", id, domain.StatusManualReview).
		Updates(map[string]any{
			"status":           to,
			"match_successful": to == domain.StatusValidated,
			"decided_by":       domain.DecidedHuman,
			"decided_at":       now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).
			Model(&domain.Sale{}).
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
