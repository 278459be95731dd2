package service

import (
	"context"

	"willvault/internal/domain"
)

// CheckInService records testator liveness and reads the current state. A
// fresh check-in supersedes the escalation chain and cancels any pending
// verification request for the testator.
type CheckInService interface {
	RecordCheckIn(ctx context.Context, testatorID domain.TestatorID, ip, ua string) (*domain.CheckIn, error)
	CurrentStatus(ctx context.Context, testatorID domain.TestatorID) (*domain.CheckIn, error)
}
