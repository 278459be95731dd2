package service

import (
	"context"

	"willvault/internal/dto"
)

// UnlockService drives the four-step unlock chain. Steps 1-4 are freely
// retryable and touch nothing but session state; Finalize is the single
// atomic commit point for the whole system.
type UnlockService interface {
	RequestUnlock(ctx context.Context, req dto.IdentifyRequest, ip, ua string) (*dto.UnlockSessionResponse, error)
	SubmitOtp(ctx context.Context, req dto.SubmitOtpRequest, ip, ua string) (*dto.UnlockSessionResponse, error)
	VerifyContacts(ctx context.Context, req dto.VerifyContactsRequest, ip, ua string) (*dto.UnlockSessionResponse, error)
	Finalize(ctx context.Context, req dto.FinalizeRequest, ip, ua string) (*dto.ReleaseResponse, error)
}
