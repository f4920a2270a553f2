// Package services – GormStore
//
// GormStore adapts the repo layer to the narrow store surface the matching
// engine depends on. The engine sees absence as nil rather than an error,
// and the repo's duplicate sentinel is mapped onto the engine's.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/match"
	"github.com/andeanpay/go-recon-backend/internal/repo"
)

// GormStore implements match.Store on top of the GORM repositories.
type GormStore struct {
	DB *gorm.DB
}

// GetSaleByOperation returns the sale for an operation id, or (nil, nil)
// when none exists.
func (s *GormStore) GetSaleByOperation(ctx context.Context, operationID string) (*domain.Sale, error) {
	sale, err := repo.GetSaleByOperation(ctx, s.DB, operationID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// FindCandidates returns PENDING notifications with the given security code
// created after since.
func (s *GormStore) FindCandidates(ctx context.Context, securityCode string, since time.Time) ([]domain.Notification, error) {
	return repo.FindPendingBySecurityCode(ctx, s.DB, securityCode, since)
}

// CreateSale inserts a sale, translating the repo duplicate sentinel into
// the engine's.
func (s *GormStore) CreateSale(ctx context.Context, sale *domain.Sale) error {
	if err := repo.CreateSale(ctx, s.DB, sale); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return match.ErrDuplicateOperation
		}
		return err
	}
	return nil
}

// TransitionNotification moves a PENDING notification to a terminal status.
func (s *GormStore) TransitionNotification(ctx context.Context, id string, to domain.Status) error {
	return repo.TransitionNotification(ctx, s.DB, id, to)
}
