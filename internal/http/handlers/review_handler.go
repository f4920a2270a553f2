// Sale listing and review handlers.
//
// This file exposes REST endpoints for sales and the manual review queue:
//   - GET  /sales               (list, optional status filter, ETag support)
//   - GET  /sales/review        (the MANUAL_REVIEW queue)
//   - GET  /sales/{id}          (fetch one sale)
//   - POST /sales/{id}/decision (apply a human verdict)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/repo"
	"github.com/andeanpay/go-recon-backend/internal/services"
)

// DecisionRequest is the JSON payload for a human verdict on a sale.
type DecisionRequest struct {
	// Verdict must be VALIDATED or REJECTED.
	Verdict string `json:"verdict" binding:"required" example:"VALIDATED"`
}

// ListSalesResponse wraps a page of sales and pagination information.
type ListSalesResponse struct {
	Sales      []domain.Sale `json:"sales"`
	Pagination Pagination    `json:"pagination"`
}

// ListSales returns a page of sales. An optional status query parameter
// narrows the listing; supports weak ETag via If-None-Match.
func (h *Handlers) ListSales(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	var status *domain.Status
	if raw := c.Query("status"); raw != "" {
		st := domain.Status(raw)
		switch st {
		case domain.StatusPending, domain.StatusValidated, domain.StatusRejected, domain.StatusManualReview:
			status = &st
		default:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
			return
		}
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isGorm := h.reviewSvc.(*services.ReviewService); isGorm {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.SalesStats(ctx, db, status)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			scope := "all"
			if status != nil {
				scope = string(*status)
			}
			etag := fmt.Sprintf(`W/"sales:%s:%d:%d"`, scope, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.reviewSvc.ListSalesPage(ctx, status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSalesResponse{Sales: items, Pagination: paginationMeta(page, pageSize, total)})
}

// ListReviewQueue returns the page of sales awaiting human adjudication.
func (h *Handlers) ListReviewQueue(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.reviewSvc.ListQueuePage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSalesResponse{Sales: items, Pagination: paginationMeta(page, pageSize, total)})
}

// GetSale returns one sale by id.
func (h *Handlers) GetSale(c *gin.Context) {
	saleID := c.Param("id")
	if _, err := uuid.Parse(saleID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sale id must be a UUID")
		return
	}

	sale, err := h.reviewSvc.GetSale(c.Request.Context(), saleID)
	if errors.Is(err, services.ErrSaleNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "sale not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sale)
}

// DecideSale applies a human verdict to a deferred sale.
func (h *Handlers) DecideSale(c *gin.Context) {
	saleID := c.Param("id")
	if _, err := uuid.Parse(saleID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sale id must be a UUID")
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "verdict required")
		return
	}

	sale, err := h.reviewSvc.Decide(c.Request.Context(), saleID, domain.Status(req.Verdict))
	switch {
	case errors.Is(err, services.ErrInvalidVerdict):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "verdict must be VALIDATED or REJECTED")
		return
	case errors.Is(err, services.ErrSaleNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "sale not found")
		return
	case errors.Is(err, services.ErrAlreadyDecided):
		fail(c, http.StatusConflict, ErrCodeConflict, "sale already decided")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeDecisionFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, sale)
}
