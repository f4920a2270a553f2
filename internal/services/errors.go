// Package services defines the business logic for notification ingestion,
// voucher capture, and sale review. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Ingestion-related errors.
var (
	// ErrUnknownDevice indicates the alert names a device code that is not
	// registered.
	ErrUnknownDevice = errors.New("device not registered")

	// ErrDeviceDisabled indicates the device exists but was deactivated by
	// an operator.
	ErrDeviceDisabled = errors.New("device disabled")

	// ErrEmptyAlert is returned when an ingestion request carries no alert
	// text.
	ErrEmptyAlert = errors.New("alert text is empty")

	// ErrDeviceExists is returned when registering a device code that is
	// already taken.
	ErrDeviceExists = errors.New("device already registered")
)

// Review-related errors.
var (
	// ErrSaleNotFound indicates that the requested sale does not exist.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrInvalidVerdict is returned when a review decision is not one of
	// VALIDATED or REJECTED.
	ErrInvalidVerdict = errors.New("verdict must be VALIDATED or REJECTED")

	// ErrAlreadyDecided is returned when a sale outside MANUAL_REVIEW
	// receives a verdict.
	ErrAlreadyDecided = errors.New("sale already decided")
)
