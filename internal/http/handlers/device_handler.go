// Device registry handlers.
//
// This file exposes REST endpoints for the receiving-device registry:
//   - GET  /devices  (list; ?active=true narrows to enabled devices)
//   - POST /devices  (register)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/services"
)

// RegisterDeviceRequest is the JSON payload for registering a device.
type RegisterDeviceRequest struct {
	// Code is the short identifier alerts arrive under (1–16 chars).
	Code string `json:"code" binding:"required,min=1,max=16" example:"D1"`
	// Label is a human-friendly name for operators.
	Label string `json:"label" example:"Counter phone"`
	// Method is the payment method the device receives.
	Method string `json:"method" binding:"required" example:"WALLET_A"`
}

// ListDevices returns the device registry.
func (h *Handlers) ListDevices(c *gin.Context) {
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	devices, err := h.ingestSvc.ListDevices(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, devices)
}

// RegisterDevice adds a receiving device to the registry.
func (h *Handlers) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code and method are required")
		return
	}

	method := domain.PaymentMethod(req.Method)
	switch method {
	case domain.MethodWalletA, domain.MethodWalletB, domain.MethodBank1, domain.MethodBank2:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown payment method")
		return
	}

	d, err := h.ingestSvc.RegisterDevice(c.Request.Context(), req.Code, req.Label, method)
	switch {
	case errors.Is(err, services.ErrDeviceExists):
		fail(c, http.StatusConflict, ErrCodeConflict, "device already registered")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, d)
}
