// Package services – ReviewService
//
// This file implements ReviewService, which exposes the manual review
// queue and applies human verdicts to deferred sales. A verdict is final:
// the conditional update in the repo layer guarantees a sale is decided at
// most once even under concurrent reviewers.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/repo"
)

// ReviewService manages the manual adjudication of deferred sales.
type ReviewService struct {
	DB *gorm.DB

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

func (s *ReviewService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// ListQueuePage returns paginated MANUAL_REVIEW sales plus the total
// count, newest submissions first.
func (s *ReviewService) ListQueuePage(ctx context.Context, page, pageSize int) ([]domain.Sale, int64, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "ListQueuePage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	review := domain.StatusManualReview
	return s.listPage(ctx, &review, page, pageSize)
}

// ListSalesPage returns paginated sales, optionally scoped to a status.
func (s *ReviewService) ListSalesPage(ctx context.Context, status *domain.Status, page, pageSize int) ([]domain.Sale, int64, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "ListSalesPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	return s.listPage(ctx, status, page, pageSize)
}

func (s *ReviewService) listPage(ctx context.Context, status *domain.Status, page, pageSize int) ([]domain.Sale, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSales(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Sale{}, 0, nil
	}
	items, err := repo.ListSalesPage(ctx, s.DB, status, offset, pageSize)
	return items, total, err
}

// GetSale fetches one sale by id.
func (s *ReviewService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "GetSale",
		trace.WithAttributes(attribute.String("sale.id", id)),
	)
	defer span.End()

	sale, err := repo.GetSale(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSaleNotFound
	}
	return sale, err
}

// Decide applies a human verdict to a MANUAL_REVIEW sale.
func (s *ReviewService) Decide(ctx context.Context, saleID string, verdict domain.Status) (*domain.Sale, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "Decide",
		trace.WithAttributes(
			attribute.String("sale.id", saleID),
			attribute.String("verdict", string(verdict)),
		),
	)
	defer span.End()

	if verdict != domain.StatusValidated && verdict != domain.StatusRejected {
		return nil, ErrInvalidVerdict
	}

	err := repo.DecideSale(ctx, s.DB, saleID, verdict, s.now())
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrSaleNotFound
	case errors.Is(err, repo.ErrIllegalTransition):
		return nil, ErrAlreadyDecided
	case err != nil:
		return nil, err
	}
	return repo.GetSale(ctx, s.DB, saleID)
}
