// Package services – CaptureService
//
// This file implements CaptureService, the conversational flow that turns a
// chat exchange into a validation attempt. The protocol has two turns: the
// submitter sends a voucher image, then a text with the customer name and
// the device code that received the payment. Between the turns a capture
// session holds the image-derived fields; an expired session behaves
// exactly like no session.
//
// Chat providers redeliver webhooks, so every message is claimed by its
// provider id before it is processed and replays are acknowledged without
// side effects. A claim is released when the turn fails, so the
// redelivery of a message that hit an outage gets processed normally.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/extract"
	"github.com/andeanpay/go-recon-backend/internal/match"
	"github.com/andeanpay/go-recon-backend/internal/ocr"
	"github.com/andeanpay/go-recon-backend/internal/repo"
)

// Inbound is one chat message delivered by the messaging webhook.
type Inbound struct {
	MessageID   string // provider message id, used for replay detection
	SubmitterID string // stable chat identity of the sender
	Phone       string // sender phone when the provider exposes it
	Text        string // text body; for images, OCR text forwarded upstream
	ImageRef    string // storage reference of the image, empty for text
}

// Reply is what the capture flow wants sent back to the submitter.
type Reply struct {
	Text string
	// Replay marks a redelivered message: nothing should be sent.
	Replay bool
}

// CaptureService drives the two-turn voucher capture protocol.
type CaptureService struct {
	DB     *gorm.DB
	Engine *match.Engine

	// OCR recognizes text in voucher images when the gateway did not
	// forward any. Optional; without it an image with no text is
	// unreadable.
	OCR ocr.TextExtractor

	SessionTTL time.Duration
	ReplayTTL  time.Duration

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

var cancelWords = map[string]struct{}{
	"cancelar": {}, "cancel": {}, "salir": {}, "exit": {},
}

const (
	replyCanceled = "Operation canceled. Send a new voucher image to start over."

	replyNoSession = "Send the payment voucher image first. After that, reply with the customer name and the device code that received the payment."

	replyUnreadable = "We could not read the voucher. Please send a clearer photo where the amount and the operation number are visible."

	replyAwaitingText = "Voucher received. Now send, one per line:\n1. Customer name\n2. Device code that received the payment"

	replyFormatHelp = "Please send the customer name and the device code, one per line. Type \"cancel\" to start over."
)

func (s *CaptureService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// HandleMessage advances the submitter's capture session by one inbound
// message and returns the reply to send.
func (s *CaptureService) HandleMessage(ctx context.Context, in Inbound) (Reply, error) {
	tr := otel.Tracer("services/CaptureService")
	ctx, span := tr.Start(ctx, "HandleMessage",
		trace.WithAttributes(
			attribute.String("submitter.id", in.SubmitterID),
			attribute.Bool("image", in.ImageRef != ""),
		),
	)
	defer span.End()

	if in.MessageID != "" {
		err := repo.ClaimInboundMessage(ctx, s.DB, in.MessageID, in.SubmitterID, s.ReplayTTL)
		if errors.Is(err, repo.ErrDuplicate) {
			return Reply{Replay: true}, nil
		}
		if err != nil {
			return Reply{}, err
		}
	}

	reply, err := s.handleTurn(ctx, in)
	if err != nil && in.MessageID != "" {
		// The turn failed before a reply was produced. Release the claim
		// so the provider's redelivery runs the flow again instead of
		// being acknowledged as a replay.
		_ = repo.ReleaseInboundMessage(ctx, s.DB, in.MessageID)
	}
	return reply, err
}

func (s *CaptureService) handleTurn(ctx context.Context, in Inbound) (Reply, error) {
	if in.ImageRef != "" {
		return s.handleImage(ctx, in)
	}
	return s.handleText(ctx, in)
}

// handleImage runs recognition over the voucher and opens (or replaces) the
// submitter's session. An early duplicate check spares the submitter the
// second turn when the operation is already settled.
func (s *CaptureService) handleImage(ctx context.Context, in Inbound) (Reply, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && s.OCR != nil {
		got, _, err := s.OCR.ExtractText(ctx, in.ImageRef)
		if err != nil && !errors.Is(err, ocr.ErrUnreadable) {
			return Reply{}, err
		}
		text = got
	}

	if text == "" {
		return Reply{Text: replyUnreadable}, nil
	}

	now := s.now()
	_, fields := extract.FromText(text, now)
	if diag := voucherDiagnostic(fields); diag != "" {
		return Reply{Text: diag}, nil
	}

	if prior, err := repo.GetSaleByOperation(ctx, s.DB, fields.OperationID); err == nil {
		_ = repo.DeleteSession(ctx, s.DB, in.SubmitterID)
		return Reply{Text: duplicateNotice(prior)}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Reply{}, err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return Reply{}, err
	}
	sess := &domain.CaptureSession{
		SubmitterID:     in.SubmitterID,
		State:           domain.SessionAwaitingText,
		ImageFields:     payload,
		EvidenceBlobRef: in.ImageRef,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.SessionTTL),
	}
	if err := repo.SaveSession(ctx, s.DB, sess); err != nil {
		return Reply{}, err
	}
	return Reply{Text: replyAwaitingText}, nil
}

// handleText resolves the second turn: cancel keywords, the no-session
// help, or the corroboration text that completes a claim.
func (s *CaptureService) handleText(ctx context.Context, in Inbound) (Reply, error) {
	body := strings.TrimSpace(in.Text)
	if _, cancel := cancelWords[strings.ToLower(body)]; cancel {
		if err := repo.DeleteSession(ctx, s.DB, in.SubmitterID); err != nil {
			return Reply{}, err
		}
		return Reply{Text: replyCanceled}, nil
	}

	now := s.now()
	sess, err := repo.GetSession(ctx, s.DB, in.SubmitterID, now)
	if errors.Is(err, repo.ErrNotFound) {
		return Reply{Text: replyNoSession}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	name, device, phone, ok := parseClaimText(body)
	if !ok {
		// Keep the session so a correction completes the same attempt.
		return Reply{Text: replyFormatHelp}, nil
	}
	if phone == "" {
		phone = in.Phone
	}

	var fields extract.Fields
	if err := json.Unmarshal(sess.ImageFields, &fields); err != nil {
		_ = repo.DeleteSession(ctx, s.DB, in.SubmitterID)
		return Reply{Text: replyUnreadable}, nil
	}

	claim := match.Claim{
		Amount:          fields.Amount,
		SecurityCode:    fields.SecurityCode,
		OperationID:     fields.OperationID,
		PaidAt:          fields.PaidAt,
		CustomerName:    name,
		CustomerPhone:   phone,
		DeviceCode:      device,
		SubmitterID:     in.SubmitterID,
		EvidenceBlobRef: sess.EvidenceBlobRef,
	}
	res, err := s.Engine.Validate(ctx, claim)
	if err != nil {
		return Reply{}, err
	}

	// The session survives outcomes the submitter can fix with another
	// text (wrong device code, payment not landed yet). Settled attempts
	// end it.
	switch {
	case res.Valid, res.Outcome != "", res.Reason == match.ReasonDuplicateOperation:
		if err := repo.DeleteSession(ctx, s.DB, in.SubmitterID); err != nil {
			return Reply{}, err
		}
	}
	return Reply{Text: res.Message}, nil
}

// voucherDiagnostic reports the per-field extraction outcome when the
// voucher lacks a required field, so the submitter knows what to re-shoot.
// Returns "" when amount, security code, and operation id are all present.
func voucherDiagnostic(f extract.Fields) string {
	checks := []struct {
		label string
		found bool
	}{
		{"amount", f.HasAmount},
		{"security code", f.SecurityCode != ""},
		{"operation number", f.OperationID != ""},
	}
	complete := true
	parts := make([]string, 0, len(checks))
	for _, c := range checks {
		state := "found"
		if !c.found {
			state = "missing"
			complete = false
		}
		parts = append(parts, c.label+": "+state)
	}
	if complete {
		return ""
	}
	return "We could not read the voucher completely (" + strings.Join(parts, ", ") + "). Please send a clearer photo."
}

var (
	deviceLabelRE = regexp.MustCompile(`(?i)^(?:equipo|device|disp(?:ositivo)?)[:\s]+([A-Za-z0-9_-]+)$`)
	phoneLineRE   = regexp.MustCompile(`^\+?\d{9,15}$`)
	deviceCodeRE  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)
)

// parseClaimText reads the corroboration turn. The grammar is positional
// with optional labels: the first free line is the customer name, a
// labeled or trailing short token is the device code, and a digits-only
// line is the customer phone.
func parseClaimText(body string) (name, device, phone string, ok bool) {
	var rest []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := deviceLabelRE.FindStringSubmatch(line); m != nil {
			device = m[1]
			continue
		}
		if phoneLineRE.MatchString(line) {
			phone = line
			continue
		}
		rest = append(rest, line)
	}

	if len(rest) > 0 {
		name = rest[0]
	}
	if device == "" && len(rest) >= 2 {
		last := rest[len(rest)-1]
		if deviceCodeRE.MatchString(last) {
			device = last
		}
	}
	return name, device, phone, name != "" && device != ""
}

func duplicateNotice(prior *domain.Sale) string {
	return "This payment was already validated.\n\nOperation: " + prior.OperationID +
		"\nValidated by: " + prior.SubmitterID +
		"\nDate: " + prior.DecidedAt.Format("02/01/2006 15:04") +
		"\n\nThe same payment cannot be validated twice."
}
