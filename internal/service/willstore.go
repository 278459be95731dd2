package service

import (
	"context"

	"willvault/internal/domain"
)

// WillStore hands over the sealed will bundle. Called exactly once per
// release, at package assembly time.
type WillStore interface {
	GetSealedContent(ctx context.Context, testatorID domain.TestatorID) ([]byte, error)
}
