// Package services – IngestService
//
// This file implements IngestService, the application-level component that
// receives raw payment alerts from capture devices. It verifies the device,
// classifies and extracts the alert text, and persists the notification.
// Alerts that cannot be parsed are stored anyway: the raw text is payment
// evidence and a human can still reconcile it.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include device identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/extract"
	"github.com/andeanpay/go-recon-backend/internal/repo"
)

// IngestService records payment alerts pushed by receiving devices.
type IngestService struct {
	DB *gorm.DB

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Ingest validates the device, parses the alert text, and persists the
// resulting notification. Parsed alerts start PENDING and enter the
// matching candidate pool; unparsable ones start in MANUAL_REVIEW.
func (s *IngestService) Ingest(ctx context.Context, deviceCode, rawText string) (*domain.Notification, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(attribute.String("device.code", deviceCode)),
	)
	defer span.End()

	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, ErrEmptyAlert
	}

	device, err := repo.GetDevice(ctx, s.DB, deviceCode)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnknownDevice
	}
	if err != nil {
		return nil, err
	}
	if !device.Active {
		return nil, ErrDeviceDisabled
	}

	now := s.now()
	method, fields := extract.FromText(rawText, now)
	parsed := fields.Usable()
	status := domain.StatusPending
	if !parsed {
		status = domain.StatusManualReview
	}

	n := &domain.Notification{
		OperationID:  fields.OperationID,
		SecurityCode: fields.SecurityCode,
		Amount:       fields.Amount,
		PayerName:    fields.PayerName,
		PaidAt:       fields.PaidAt,
		DeviceCode:   deviceCode,
		Method:       method,
		RawText:      rawText,
		Parsed:       parsed,
		Status:       status,
		CreatedAt:    now,
	}
	if err := repo.CreateNotification(ctx, s.DB, n); err != nil {
		return nil, err
	}
	// Health bookkeeping; a failure here must not lose the notification.
	_ = repo.TouchDeviceSeen(ctx, s.DB, deviceCode, now)
	return n, nil
}

// ListPendingPage returns paginated PENDING notifications plus the total
// count.
func (s *IngestService) ListPendingPage(ctx context.Context, page, pageSize int) ([]domain.Notification, int64, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "ListPendingPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountNotifications(ctx, s.DB, domain.StatusPending)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, domain.StatusPending, offset, pageSize)
	return items, total, err
}

// RegisterDevice adds a receiving device.
func (s *IngestService) RegisterDevice(ctx context.Context, code, label string, method domain.PaymentMethod) (*domain.Device, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "RegisterDevice",
		trace.WithAttributes(attribute.String("device.code", code)),
	)
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrUnknownDevice
	}
	d := &domain.Device{Code: code, Label: label, Method: method, Active: true}
	if err := repo.CreateDevice(ctx, s.DB, d); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDeviceExists
		}
		return nil, err
	}
	return d, nil
}

// ListDevices returns registered devices.
func (s *IngestService) ListDevices(ctx context.Context, activeOnly bool) ([]domain.Device, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "ListDevices")
	defer span.End()

	return repo.ListDevices(ctx, s.DB, activeOnly)
}
