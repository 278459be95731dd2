package impl

import (
	"context"

	"willvault/internal/domain"
	"willvault/internal/service"
	"willvault/internal/store"
)

var _ service.AuditService = (*AuditServiceImpl)(nil)

type AuditServiceImpl struct {
	store dataStore
	clock service.Clock
}

func NewAuditServiceImpl(st *store.Store, clock service.Clock) *AuditServiceImpl {
	return &AuditServiceImpl{store: newGormStoreAdapter(st), clock: clock}
}

func (a *AuditServiceImpl) Record(ctx context.Context, testatorID domain.TestatorID, action string, details map[string]any, ip, ua string) error {
	now := a.clock.Now()
	return a.store.WithTx(ctx, func(tx storeTx) error {
		return appendAudit(ctx, tx, testatorID, action, details, ip, ua, now)
	})
}

func (a *AuditServiceImpl) Trail(ctx context.Context, testatorID domain.TestatorID, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	var out []domain.AuditEntry
	err := a.store.WithTx(ctx, func(tx storeTx) error {
		var err error
		out, err = tx.Audit().ListByTestator(ctx, testatorID, limit)
		return err
	})
	return out, err
}
