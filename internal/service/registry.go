package service

import (
	"context"

	"willvault/internal/domain"
)

// ContactRegistry resolves a testator's executors, beneficiaries, and trusted
// contacts. Owned by an external collaborator; the core only ever reads a
// point-in-time snapshot from it.
type ContactRegistry interface {
	ListParties(ctx context.Context, testatorID domain.TestatorID) (domain.PartySnapshot, error)
}
