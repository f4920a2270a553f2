// Package match implements the reconciliation decision engine. Given a
// fully assembled voucher claim it finds candidate notifications, runs the
// check set, computes a confidence score, classifies the outcome, and emits
// the persistence side effects (sale record, notification status flip).
//
// Outcomes are data, not errors: every business condition (duplicate,
// mismatch, no candidate) comes back inside Result with a user-facing
// message. Only store failures travel as Go errors.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/similarity"
)

// ErrDuplicateOperation is returned by Store.CreateSale when the operation
// id already has a sale row. The engine converts it into a
// DUPLICATE_OPERATION outcome; it never reaches callers of Validate.
var ErrDuplicateOperation = errors.New("operation already has a sale record")

// Reason classifies a failed or deferred validation.
type Reason string

// Validation outcome reasons.
const (
	ReasonIncompleteNotification Reason = "INCOMPLETE_NOTIFICATION"
	ReasonChannelMismatch        Reason = "CHANNEL_MISMATCH"
	ReasonNoCandidateFound       Reason = "NO_CANDIDATE_FOUND"
	ReasonFieldMismatch          Reason = "FIELD_MISMATCH"
	ReasonDuplicateOperation     Reason = "DUPLICATE_OPERATION"
)

// Claim is the assembled voucher evidence for one transaction: image-derived
// fields plus the submitter-supplied corroboration.
type Claim struct {
	Amount          decimal.Decimal
	SecurityCode    string
	OperationID     string
	PaidAt          time.Time
	CustomerName    string
	CustomerPhone   string
	DeviceCode      string // claimed payment channel
	SubmitterID     string
	EvidenceBlobRef string
}

// Result is the outcome of one validation attempt.
type Result struct {
	Valid         bool
	Confidence    int
	MatchedFields []string
	Reason        Reason
	Message       string
	// Outcome is the status recorded for this attempt: VALIDATED,
	// MANUAL_REVIEW, or REJECTED. Zero when nothing was recorded
	// (duplicates, no candidate).
	Outcome domain.Status
}

// Store is the narrow reconciliation-store surface the engine depends on.
// Implementations must make CreateSale conditional on the operation id so
// two concurrent attempts cannot both succeed.
type Store interface {
	// GetSaleByOperation returns the sale for an operation id, or (nil, nil)
	// when none exists.
	GetSaleByOperation(ctx context.Context, operationID string) (*domain.Sale, error)
	// FindCandidates returns PENDING notifications with the given security
	// code created after since.
	FindCandidates(ctx context.Context, securityCode string, since time.Time) ([]domain.Notification, error)
	// CreateSale inserts a sale, returning ErrDuplicateOperation when a row
	// for the operation id already exists.
	CreateSale(ctx context.Context, sale *domain.Sale) error
	// TransitionNotification moves a PENDING notification to a terminal
	// status; illegal transitions are rejected by the store.
	TransitionNotification(ctx context.Context, id string, to domain.Status) error
}

// Policy carries the tunable decision thresholds.
type Policy struct {
	AutoApproveThreshold int           // confidence >= this auto-approves
	ReviewThreshold      int           // confidence >= this defers to manual review
	NameSimilarity       int           // minimum similarity counted as a name match
	CandidateWindow      time.Duration // lookback for candidate notifications
}

// Engine runs validations against a Store under a Policy.
type Engine struct {
	Store  Store
	Policy Policy

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

var outcomeCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recon_match_outcomes_total",
		Help: "Validation attempts by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(outcomeCounter)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Validate decides whether the claim and a stored notification describe the
// same payment. The duplicate check runs first and unconditionally: a
// duplicate attempt is informative even when the rest of the data is bad.
func (e *Engine) Validate(ctx context.Context, claim Claim) (Result, error) {
	tr := otel.Tracer("match/Engine")
	ctx, span := tr.Start(ctx, "Validate",
		trace.WithAttributes(
			attribute.String("operation.id", claim.OperationID),
			attribute.String("submitter.id", claim.SubmitterID),
		),
	)
	defer span.End()

	prior, err := e.Store.GetSaleByOperation(ctx, claim.OperationID)
	if err != nil {
		return Result{}, err
	}
	if prior != nil {
		return e.finish(duplicateResult(prior)), nil
	}

	now := e.now()
	candidates, err := e.Store.FindCandidates(ctx, claim.SecurityCode, now.Add(-e.Policy.CandidateWindow))
	if err != nil {
		return Result{}, err
	}

	chosen, res, decided := selectCandidate(claim, candidates)
	if decided {
		return e.finish(res), nil
	}

	if !chosen.Amount.IsPositive() || chosen.SecurityCode == "" {
		return e.finish(Result{
			Valid:   false,
			Reason:  ReasonIncompleteNotification,
			Message: "The matching payment alert is missing fields required for automatic validation. Please contact the store to confirm manually.",
		}), nil
	}

	checks := e.runChecks(claim, chosen)
	confidence := 0
	matched := make([]string, 0, len(checks))
	var failed []fieldDiff
	for _, c := range checks {
		if c.pass {
			confidence++
			matched = append(matched, c.field)
		} else {
			failed = append(failed, fieldDiff{field: c.field, notification: c.observed, voucher: c.claimed})
		}
	}
	confidence = confidence * 100 / len(checks)

	switch {
	case confidence >= e.Policy.AutoApproveThreshold:
		return e.approve(ctx, claim, chosen, confidence, matched, now)
	case confidence >= e.Policy.ReviewThreshold:
		return e.deferToReview(ctx, claim, chosen, confidence, matched, failed, now)
	default:
		return e.finish(Result{
			Valid:      false,
			Confidence: confidence,
			Reason:     ReasonFieldMismatch,
			Message: fmt.Sprintf("The voucher does not match the payment we found (%d%% confidence).\n\n%s",
				confidence, formatDiffs(failed)),
			MatchedFields: matched,
			Outcome:       domain.StatusRejected,
		}), nil
	}
}

// check is one independent boolean predicate over (claim, notification).
// observed/claimed are only rendered when the predicate fails.
type check struct {
	field    string
	pass     bool
	observed string
	claimed  string
}

func (e *Engine) runChecks(claim Claim, n domain.Notification) []check {
	deviceOK := !n.Method.UsesDeviceRouting() || n.DeviceCode == claim.DeviceCode
	return []check{
		{"device", deviceOK, n.DeviceCode, claim.DeviceCode},
		{"security_code", n.SecurityCode == claim.SecurityCode, n.SecurityCode, claim.SecurityCode},
		{"amount", n.Amount.Equal(claim.Amount), "S/" + n.Amount.StringFixed(2), "S/" + claim.Amount.StringFixed(2)},
		{"customer_name",
			similarity.Similar(n.PayerName, claim.CustomerName, e.Policy.NameSimilarity),
			n.PayerName, claim.CustomerName},
		{"operation_id", n.OperationID != "" && n.OperationID == claim.OperationID, n.OperationID, claim.OperationID},
	}
}

// approve records the validated sale and flips the notification. A lost
// race on the conditional insert is reported as a duplicate, same as a
// sequential second attempt.
func (e *Engine) approve(ctx context.Context, claim Claim, n domain.Notification, confidence int, matched []string, now time.Time) (Result, error) {
	sale := e.buildSale(claim, n, confidence, matched, now, domain.StatusValidated, true)
	if err := e.Store.CreateSale(ctx, sale); err != nil {
		if errors.Is(err, ErrDuplicateOperation) {
			prior, gerr := e.Store.GetSaleByOperation(ctx, claim.OperationID)
			if gerr != nil {
				return Result{}, gerr
			}
			return e.finish(duplicateResult(prior)), nil
		}
		return Result{}, err
	}
	if err := e.Store.TransitionNotification(ctx, n.ID, domain.StatusValidated); err != nil {
		return Result{}, err
	}
	return e.finish(Result{
		Valid:         true,
		Confidence:    confidence,
		MatchedFields: matched,
		Outcome:       domain.StatusValidated,
		Message:       successMessage(claim, n),
	}), nil
}

// deferToReview persists the partial evidence as a MANUAL_REVIEW sale so a
// human reviewer has full context without re-deriving the match.
func (e *Engine) deferToReview(ctx context.Context, claim Claim, n domain.Notification, confidence int, matched []string, failed []fieldDiff, now time.Time) (Result, error) {
	sale := e.buildSale(claim, n, confidence, matched, now, domain.StatusManualReview, false)
	if err := e.Store.CreateSale(ctx, sale); err != nil {
		if errors.Is(err, ErrDuplicateOperation) {
			prior, gerr := e.Store.GetSaleByOperation(ctx, claim.OperationID)
			if gerr != nil {
				return Result{}, gerr
			}
			return e.finish(duplicateResult(prior)), nil
		}
		return Result{}, err
	}
	if err := e.Store.TransitionNotification(ctx, n.ID, domain.StatusManualReview); err != nil {
		return Result{}, err
	}
	return e.finish(Result{
		Valid:         false,
		Confidence:    confidence,
		MatchedFields: matched,
		Reason:        ReasonFieldMismatch,
		Outcome:       domain.StatusManualReview,
		Message: fmt.Sprintf("Some fields do not match (%d%% confidence); the sale was sent to manual review.\n\n%s",
			confidence, formatDiffs(failed)),
	}), nil
}

func (e *Engine) buildSale(claim Claim, n domain.Notification, confidence int, matched []string, now time.Time, status domain.Status, successful bool) *domain.Sale {
	fieldsJSON, _ := json.Marshal(matched)
	paidAt := n.PaidAt
	if paidAt.IsZero() {
		paidAt = claim.PaidAt
	}
	return &domain.Sale{
		ID:                 uuid.NewString(),
		OperationID:        claim.OperationID,
		CustomerName:       claim.CustomerName,
		CustomerPhone:      claim.CustomerPhone,
		Amount:             claim.Amount,
		SecurityCode:       claim.SecurityCode,
		PaidAt:             paidAt,
		ClaimedDeviceCode:  claim.DeviceCode,
		ObservedDeviceCode: n.DeviceCode,
		SubmitterID:        claim.SubmitterID,
		MatchSuccessful:    successful,
		Confidence:         confidence,
		MatchedFields:      fieldsJSON,
		Status:             status,
		DecidedBy:          domain.DecidedAutomatic,
		DecidedAt:          now,
		EvidenceBlobRef:    claim.EvidenceBlobRef,
		CreatedAt:          now,
	}
}

// finish records the outcome metric and returns the result unchanged.
func (e *Engine) finish(r Result) Result {
	label := "approved"
	if !r.Valid {
		label = strings.ToLower(string(r.Reason))
	}
	outcomeCounter.WithLabelValues(label).Inc()
	return r
}

// selectCandidate picks the notification to check the claim against. The
// primary key set is (security code, amount, device); the earliest matching
// notification wins so retries are deterministic. When nothing matches the
// full key set it classifies why, because the submitter needs to know which
// part of their claim disagrees with the system.
func selectCandidate(claim Claim, candidates []domain.Notification) (domain.Notification, Result, bool) {
	exact := make([]domain.Notification, 0, len(candidates))
	var amountHit, deviceMiss *domain.Notification
	for i := range candidates {
		n := candidates[i]
		amountOK := n.Amount.Equal(claim.Amount)
		deviceOK := !n.Method.UsesDeviceRouting() || n.DeviceCode == claim.DeviceCode
		switch {
		case amountOK && deviceOK:
			exact = append(exact, n)
		case amountOK && !deviceOK:
			deviceMiss = &candidates[i]
		case deviceOK:
			amountHit = &candidates[i]
		}
	}

	if len(exact) > 0 {
		sort.Slice(exact, func(i, j int) bool { return exact[i].CreatedAt.Before(exact[j].CreatedAt) })
		return exact[0], Result{}, false
	}

	if deviceMiss != nil {
		return domain.Notification{}, Result{
			Valid:  false,
			Reason: ReasonChannelMismatch,
			Message: fmt.Sprintf("This payment was received on device %s, not %s. Check the device code on the voucher and try again.",
				deviceMiss.DeviceCode, claim.DeviceCode),
		}, true
	}

	msg := &strings.Builder{}
	msg.WriteString("We could not find a payment that matches your voucher.\n\n")
	switch {
	case amountHit != nil:
		fmt.Fprintf(msg, "A payment with this security code exists, but its amount is S/%s while the voucher says S/%s.",
			amountHit.Amount.StringFixed(2), claim.Amount.StringFixed(2))
	case len(candidates) > 0:
		fmt.Fprintf(msg, "%d payment(s) share this security code, but none matches the amount and device on the voucher.", len(candidates))
	default:
		msg.WriteString("Check that:\n")
		msg.WriteString("• the security code on the voucher is correct\n")
		msg.WriteString("• the payment went to one of our registered devices\n")
		msg.WriteString("• at least 30 seconds passed since the payment")
	}
	return domain.Notification{}, Result{
		Valid:   false,
		Reason:  ReasonNoCandidateFound,
		Message: msg.String(),
	}, true
}

// fieldDiff is one disagreeing field rendered for the submitter.
type fieldDiff struct {
	field        string
	notification string
	voucher      string
}

func formatDiffs(diffs []fieldDiff) string {
	lines := make([]string, 0, len(diffs))
	for _, d := range diffs {
		lines = append(lines, fmt.Sprintf("• %s: payment alert %q ≠ voucher %q", d.field, d.notification, d.voucher))
	}
	return strings.Join(lines, "\n")
}

func successMessage(claim Claim, n domain.Notification) string {
	b := &strings.Builder{}
	b.WriteString("Sale validated.\n\n")
	fmt.Fprintf(b, "• Customer: %s\n", claim.CustomerName)
	if claim.CustomerPhone != "" {
		fmt.Fprintf(b, "• Phone: %s\n", claim.CustomerPhone)
	}
	fmt.Fprintf(b, "• Amount: S/%s\n", claim.Amount.StringFixed(2))
	fmt.Fprintf(b, "• Operation: %s\n", claim.OperationID)
	fmt.Fprintf(b, "• Device: %s\n", n.DeviceCode)
	fmt.Fprintf(b, "• Paid at: %s", n.PaidAt.Format("02/01/2006 15:04"))
	return b.String()
}

func duplicateResult(prior *domain.Sale) Result {
	return Result{
		Valid:  false,
		Reason: ReasonDuplicateOperation,
		Message: fmt.Sprintf("This payment was already validated.\n\nOperation: %s\nValidated by: %s\nDate: %s\n\nThe same payment cannot be validated twice.",
			prior.OperationID, prior.SubmitterID, prior.DecidedAt.Format("02/01/2006 15:04")),
	}
}
