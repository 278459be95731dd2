package service

import (
	"context"

	"willvault/internal/domain"
)

// AuditService appends immutable trail entries and reads them back for
// dispute resolution. Details is marshaled to JSON metadata.
type AuditService interface {
	Record(ctx context.Context, testatorID domain.TestatorID, action string, details map[string]any, ip, ua string) error
	Trail(ctx context.Context, testatorID domain.TestatorID, limit int) ([]domain.AuditEntry, error)
}
