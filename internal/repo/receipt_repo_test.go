package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

func TestClaimInboundMessage(t *testing.T) {
	db := newTestDB(t, &domain.InboundReceipt{})
	ctx := context.Background()

	if err := ClaimInboundMessage(ctx, db, "wamid.1", "u1", 24*time.Hour); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// A redelivered webhook carries the same provider message id.
	if err := ClaimInboundMessage(ctx, db, "wamid.1", "u1", 24*time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("replay error = %v, want ErrDuplicate", err)
	}
	// A different message from the same submitter is fine.
	if err := ClaimInboundMessage(ctx, db, "wamid.2", "u1", 24*time.Hour); err != nil {
		t.Fatalf("second message: %v", err)
	}
}

func TestReleaseInboundMessage(t *testing.T) {
	db := newTestDB(t, &domain.InboundReceipt{})
	ctx := context.Background()

	if err := ClaimInboundMessage(ctx, db, "wamid.1", "u1", 24*time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ReleaseInboundMessage(ctx, db, "wamid.1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	// A released id can be claimed again, so the redelivery of a failed
	// turn is processed.
	if err := ClaimInboundMessage(ctx, db, "wamid.1", "u1", 24*time.Hour); err != nil {
		t.Fatalf("re-claim after release: %v", err)
	}
	// Releasing an unknown id is a no-op.
	if err := ReleaseInboundMessage(ctx, db, "wamid.unknown"); err != nil {
		t.Fatalf("release unknown: %v", err)
	}
}

func TestPurgeExpiredReceipts(t *testing.T) {
	db := newTestDB(t, &domain.InboundReceipt{})
	ctx := context.Background()

	if err := ClaimInboundMessage(ctx, db, "wamid.1", "u1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	removed, err := PurgeExpiredReceipts(ctx, db, time.Now().UTC().Add(time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("purge = %d (%v), want 1", removed, err)
	}
}
