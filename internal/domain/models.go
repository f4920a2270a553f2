// Package domain defines the persistence models for payment notifications,
// validated sales, capture sessions, and receiving devices. These types are
// mapped with GORM and form the core data layer of the reconciliation
// application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentMethod identifies the provider that produced a payment alert.
type PaymentMethod string

// Known payment methods. Wallet providers route payments per receiving
// device; bank transfers do not carry a security code.
const (
	MethodWalletA      PaymentMethod = "WALLET_A"
	MethodWalletB      PaymentMethod = "WALLET_B"
	MethodBank1        PaymentMethod = "BANK_1"
	MethodBank2        PaymentMethod = "BANK_2"
	MethodUnrecognized PaymentMethod = "UNRECOGNIZED"
)

// UsesDeviceRouting reports whether the method ties a payment to the
// specific device that captured the alert. For such methods a claimed
// device code must match the capturing device.
func (m PaymentMethod) UsesDeviceRouting() bool {
	return m == MethodWalletA || m == MethodWalletB
}

// Status is the reconciliation state of a notification or sale.
type Status string

// Reconciliation states. PENDING is the only non-terminal state for
// notifications.
const (
	StatusPending      Status = "PENDING"
	StatusValidated    Status = "VALIDATED"
	StatusRejected     Status = "REJECTED"
	StatusManualReview Status = "MANUAL_REVIEW"
)

// CanTransitionTo reports whether a status change is legal. Notifications
// move PENDING → {VALIDATED, REJECTED, MANUAL_REVIEW} and sales move
// MANUAL_REVIEW → {VALIDATED, REJECTED} (human adjudication); every other
// state is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusValidated || next == StatusRejected || next == StatusManualReview
	case StatusManualReview:
		return next == StatusValidated || next == StatusRejected
	default:
		return false
	}
}

// DecidedBy records which actor settled a sale.
type DecidedBy string

const (
	DecidedAutomatic DecidedBy = "AUTOMATIC"
	DecidedHuman     DecidedBy = "HUMAN"
)

// Notification represents one inbound payment alert captured on a receiving
// device and parsed into structured fields. Unparsed alerts are stored with
// Parsed=false and start in MANUAL_REVIEW so no payment evidence is lost.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OperationID: provider transaction id; empty when the alert could not
//     be parsed.
//   - SecurityCode: 3-digit confirmation code (wallet providers only).
//   - Amount: exact decimal amount; compared with equality, never tolerance.
//   - PayerName: free-text payer name, "Unknown" when not extracted.
//   - PaidAt: payment timestamp from the alert, or ingestion time when the
//     alert carried no parseable date.
//   - DeviceCode: code of the device that captured the alert.
//   - Method: provider classification of the alert text.
//   - RawText: alert text as received, kept for re-parsing and audit.
//   - Parsed: whether field extraction recovered the required fields.
//   - Status: reconciliation state; transitions are guarded by
//     Status.CanTransitionTo and a conditional UPDATE in the repo layer.
type Notification struct {
	ID           string          `json:"id"            gorm:"type:char(36);primaryKey"`
	OperationID  string          `json:"operation_id"  gorm:"type:varchar(32);index"`
	SecurityCode string          `json:"security_code" gorm:"type:varchar(8);index:idx_lookup,priority:1"`
	Amount       decimal.Decimal `json:"amount"        gorm:"type:decimal(12,2)"`
	PayerName    string          `json:"payer_name"    gorm:"type:varchar(255)"`
	PaidAt       time.Time       `json:"paid_at"`
	DeviceCode   string          `json:"device_code"   gorm:"type:varchar(16);not null;index:idx_lookup,priority:2"`
	Method       PaymentMethod   `json:"method"        gorm:"type:varchar(16);not null"`
	RawText      string          `json:"raw_text"      gorm:"type:text;not null"`
	Parsed       bool            `json:"parsed"`
	Status       Status          `json:"status"        gorm:"type:varchar(16);not null;index"`
	CreatedAt    time.Time       `json:"created_at"    gorm:"index"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Sale is the durable outcome of a voucher validation attempt. The unique
// index on OperationID is the anti-duplication key: the first row written
// for an operation wins, and any later claim for the same operation is a
// duplicate regardless of this row's status.
type Sale struct {
	ID                 string          `json:"id"                   gorm:"type:char(36);primaryKey"`
	OperationID        string          `json:"operation_id"         gorm:"type:varchar(32);not null;uniqueIndex:ux_sale_operation"`
	CustomerName       string          `json:"customer_name"        gorm:"type:varchar(255);not null"`
	CustomerPhone      string          `json:"customer_phone,omitempty" gorm:"type:varchar(32)"`
	Amount             decimal.Decimal `json:"amount"               gorm:"type:decimal(12,2)"`
	SecurityCode       string          `json:"security_code"        gorm:"type:varchar(8)"`
	PaidAt             time.Time       `json:"paid_at"`
	ClaimedDeviceCode  string          `json:"claimed_device_code"  gorm:"type:varchar(16)"`
	ObservedDeviceCode string          `json:"observed_device_code" gorm:"type:varchar(16)"`
	SubmitterID        string          `json:"submitter_id"         gorm:"type:varchar(64);not null;index"`
	MatchSuccessful    bool            `json:"match_successful"`
	Confidence         int             `json:"confidence"`
	MatchedFields      datatypes.JSON  `json:"matched_fields"       gorm:"type:text"`
	Status             Status          `json:"status"               gorm:"type:varchar(16);not null;index"`
	DecidedBy          DecidedBy       `json:"decided_by"           gorm:"type:varchar(16);not null"`
	DecidedAt          time.Time       `json:"decided_at"`
	EvidenceBlobRef    string          `json:"evidence_blob_ref"    gorm:"type:varchar(512)"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Sale.
func (Sale) TableName() string { return "sales" }

// SessionState is the conversational state of a capture session. The
// "awaiting image" state is implicit: it is the absence of a session row.
type SessionState string

// SessionAwaitingText means a voucher image has been captured and the
// submitter still owes the corroborating text (customer name, device code).
const SessionAwaitingText SessionState = "AWAITING_TEXT"

// CaptureSession is the ephemeral per-submitter state of the two-step
// voucher capture protocol. One row per submitter; expiry is enforced by
// the store read path, so an expired session behaves exactly like no
// session.
type CaptureSession struct {
	SubmitterID     string         `json:"submitter_id"      gorm:"type:varchar(64);primaryKey"`
	State           SessionState   `json:"state"             gorm:"type:varchar(16);not null"`
	ImageFields     datatypes.JSON `json:"image_fields"      gorm:"type:text"`
	EvidenceBlobRef string         `json:"evidence_blob_ref" gorm:"type:varchar(512)"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"        gorm:"index"`
}

// TableName returns the database table name for CaptureSession.
func (CaptureSession) TableName() string { return "capture_sessions" }

// Device is a registered receiving device. Notification ingestion rejects
// alerts from unknown or inactive device codes.
type Device struct {
	Code               string        `json:"code"   gorm:"type:varchar(16);primaryKey"`
	Label              string        `json:"label"  gorm:"type:varchar(128)"`
	Method             PaymentMethod `json:"method" gorm:"type:varchar(16);not null"`
	Active             bool          `json:"active" gorm:"not null;default:true"`
	LastNotificationAt *time.Time    `json:"last_notification_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Device.
func (Device) TableName() string { return "devices" }

// InboundReceipt marks a chat message as processed. Chat providers
// redeliver webhooks, so the capture layer records each provider message id
// once and acknowledges replays without re-running the session machine.
type InboundReceipt struct {
	MessageID   string    `gorm:"type:varchar(128);primaryKey"`
	SubmitterID string    `gorm:"type:varchar(64);not null"`
	ProcessedAt time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null;index"`
}

// TableName returns the database table name for InboundReceipt.
func (InboundReceipt) TableName() string { return "inbound_receipts" }
