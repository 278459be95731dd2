package store

import (
	"context"
	"time"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckInStore struct{ db *gorm.DB }

func (s *Store) CheckIns() *CheckInStore { return &CheckInStore{db: s.DB} }

func (c *CheckInStore) Create(ctx context.Context, ci *domain.CheckIn) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	return c.db.WithContext(ctx).Create(ci).Error
}

// GetCurrent returns the latest check-in for a testator. Check-ins are
// immutable events; "current" is derived, not a mutable pointer.
func (c *CheckInStore) GetCurrent(ctx context.Context, testatorID uuid.UUID) (*domain.CheckIn, error) {
	var out domain.CheckIn
	err := c.db.WithContext(ctx).
		Where("testator_id = ?", testatorID).
		Order("checked_in_at DESC").
		First(&out).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

// AdvanceStatus moves a check-in one or more steps along the escalation
// chain. The WHERE clause on the old status makes concurrent sweeps
// serialize: the loser updates zero rows.
func (c *CheckInStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to domain.CheckInStatus, at time.Time) (int64, error) {
	if !from.CanAdvanceTo(to) {
		return 0, nil
	}
	tx := c.db.WithContext(ctx).Model(&domain.CheckIn{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	return tx.RowsAffected, tx.Error
}
