// Notification HTTP handlers.
//
// This file exposes REST endpoints for payment alert ingestion:
//   - POST /notifications          (ingest one alert from a device)
//   - GET  /notifications/pending  (list, paginated, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/repo"
	"github.com/andeanpay/go-recon-backend/internal/services"
	"github.com/andeanpay/go-recon-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// IngestService defines alert ingestion operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type IngestService interface {
	// Ingest validates the device and records one raw payment alert.
	Ingest(ctx context.Context, deviceCode, rawText string) (*domain.Notification, error)
	// ListPendingPage returns a page of PENDING notifications and the total.
	ListPendingPage(ctx context.Context, page, pageSize int) ([]domain.Notification, int64, error)
	// RegisterDevice adds a receiving device.
	RegisterDevice(ctx context.Context, code, label string, method domain.PaymentMethod) (*domain.Device, error)
	// ListDevices returns registered devices.
	ListDevices(ctx context.Context, activeOnly bool) ([]domain.Device, error)
}

// CaptureFlow defines the chat-driven voucher capture operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CaptureFlow interface {
	// HandleMessage advances a capture session by one inbound chat message.
	HandleMessage(ctx context.Context, in services.Inbound) (services.Reply, error)
}

// ReviewService defines review queue and verdict operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ReviewService interface {
	// ListQueuePage returns a page of MANUAL_REVIEW sales and the total.
	ListQueuePage(ctx context.Context, page, pageSize int) ([]domain.Sale, int64, error)
	// ListSalesPage returns a page of sales, optionally scoped to a status.
	ListSalesPage(ctx context.Context, status *domain.Status, page, pageSize int) ([]domain.Sale, int64, error)
	// GetSale fetches one sale.
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	// Decide applies a human verdict to a deferred sale.
	Decide(ctx context.Context, saleID string, verdict domain.Status) (*domain.Sale, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for ingestion, capture, and review.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	ingestSvc  IngestService
	captureSvc CaptureFlow
	reviewSvc  ReviewService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(ingestSvc IngestService, captureSvc CaptureFlow, reviewSvc ReviewService) *Handlers {
	return &Handlers{ingestSvc: ingestSvc, captureSvc: captureSvc, reviewSvc: reviewSvc}
}

//
// DTOs
//

// IngestRequest is the JSON payload pushed by a capture device for one
// payment alert.
type IngestRequest struct {
	// DeviceCode identifies the registered device that captured the alert.
	DeviceCode string `json:"device_code" binding:"required" example:"D1"`
	// Text is the alert text exactly as displayed by the provider app.
	Text string `json:"text" binding:"required" example:"¡Yapeaste! S/100 ..."`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListNotificationsResponse wraps a page of notifications and pagination
// information.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// IngestNotification records one payment alert pushed by a capture device.
// Unparsable alerts are accepted and routed to manual review rather than
// rejected; only device problems produce client errors.
func (h *Handlers) IngestNotification(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "device_code and text are required")
		return
	}

	n, err := h.ingestSvc.Ingest(c.Request.Context(), strings.TrimSpace(req.DeviceCode), req.Text)
	switch {
	case errors.Is(err, services.ErrUnknownDevice):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "device not registered")
		return
	case errors.Is(err, services.ErrDeviceDisabled):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "device disabled")
		return
	case errors.Is(err, services.ErrEmptyAlert):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alert text is empty")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, err.Error())
		return
	}
	// Unparsable alerts are stored for manual handling; 202 tells the
	// device the alert was taken but not reconciled.
	status := http.StatusCreated
	if !n.Parsed {
		status = http.StatusAccepted
	}
	ok(c, status, n)
}

// ListPendingNotifications returns a page of PENDING notifications.
// Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListPendingNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isGorm := h.ingestSvc.(*services.IngestService); isGorm {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.NotificationsStats(ctx, db, domain.StatusPending)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"notifications:pending:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.ingestSvc.ListPendingPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination:    paginationMeta(page, pageSize, total),
	})
}
