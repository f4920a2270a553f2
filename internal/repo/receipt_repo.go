// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// InboundReceipt model used to deduplicate redelivered chat webhooks.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// ClaimInboundMessage records a provider message id as processed. It
// returns ErrDuplicate when the id was already claimed, which is the signal
// to acknowledge the replay without re-running the capture flow. Expired
// receipts do not block a claim; providers stop redelivering long before
// the TTL.
func ClaimInboundMessage(ctx context.Context, db *gorm.DB, messageID, submitterID string, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := &domain.InboundReceipt{
		MessageID:   messageID,
		SubmitterID: submitterID,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ReleaseInboundMessage drops the receipt for a message id so the
// provider's redelivery gets processed instead of acknowledged as a
// replay. Used when a claimed message could not be handled. Releasing an
// unclaimed id is a no-op.
func ReleaseInboundMessage(ctx context.Context, db *gorm.DB, messageID string) error {
	return db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&domain.InboundReceipt{}).Error
}

// PurgeExpiredReceipts deletes receipts past their TTL and returns how many
// rows were removed.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.InboundReceipt{})
	return res.RowsAffected, res.Error
}
