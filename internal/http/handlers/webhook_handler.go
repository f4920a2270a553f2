// Messaging webhook handler.
//
// This file exposes the inbound chat endpoint:
//   - POST /webhook/messages  (one chat message from the messaging gateway)
//
// The gateway normalizes provider payloads before calling this endpoint, so
// the request body is already flat: message id, sender, and either text or
// an image reference. The response carries the reply text the gateway
// should send back to the submitter; replays answer 200 with no reply.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andeanpay/go-recon-backend/internal/http/middleware"
	"github.com/andeanpay/go-recon-backend/internal/services"
)

// WebhookMessageRequest is one normalized inbound chat message.
type WebhookMessageRequest struct {
	// MessageID is the provider's message id, used for replay detection.
	MessageID string `json:"message_id" binding:"required" example:"wamid.HBgL..."`
	// From is the stable chat identity of the sender.
	From string `json:"from" binding:"required" example:"51999888777"`
	// Phone is the sender's phone number when the provider exposes it.
	Phone string `json:"phone" example:"+51999888777"`
	// Text is the message body; for images, OCR text forwarded upstream.
	Text string `json:"text" example:"Maria Q. Flores\nD1"`
	// ImageRef is the storage reference of an attached image.
	ImageRef string `json:"image_ref" example:"blob://vouchers/2025/11/22/abc.jpg"`
}

// WebhookMessageResponse is what the gateway should relay to the submitter.
type WebhookMessageResponse struct {
	// Reply is the text to send back; empty when nothing should be sent.
	Reply string `json:"reply"`
	// Replay marks a redelivered message that was already processed.
	Replay bool `json:"replay,omitempty"`
}

// HandleWebhookMessage advances the sender's capture session by one
// message and returns the reply to relay.
func (h *Handlers) HandleWebhookMessage(c *gin.Context) {
	var req WebhookMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_id and from are required")
		return
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.ImageRef) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message needs text or image_ref")
		return
	}

	reply, err := h.captureSvc.HandleMessage(c.Request.Context(), services.Inbound{
		MessageID:   req.MessageID,
		SubmitterID: req.From,
		Phone:       req.Phone,
		Text:        req.Text,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		// The real error goes to the logs; the submitter only needs to
		// know a retry will work.
		middleware.LoggerFrom(c).Error().Err(err).Msg("capture flow failed")
		fail(c, http.StatusInternalServerError, ErrCodeCaptureFailed,
			"we could not process your message, please try again")
		return
	}
	ok(c, http.StatusOK, WebhookMessageResponse{Reply: reply.Text, Replay: reply.Replay})
}
