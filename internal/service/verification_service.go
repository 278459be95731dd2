package service

import (
	"context"
	"time"

	"willvault/internal/domain"
)

// VerificationService owns the verification-request state machine. Open
// snapshots the contact registry, issues one credential per party, and
// notifies each party with the others' names but never their codes.
type VerificationService interface {
	Open(ctx context.Context, testator *domain.Testator, now time.Time) (*domain.VerificationRequest, error)
	// CancelActive flips the pending request (if any) to cancelled. Called
	// when the testator proves alive.
	CancelActive(ctx context.Context, testatorID domain.TestatorID, now time.Time) (bool, error)
	// ExpireIfDue lazily retires a pending request whose window has passed.
	// Returns the request's effective status after the check.
	ExpireIfDue(ctx context.Context, req *domain.VerificationRequest, now time.Time) (domain.RequestStatus, error)
}
