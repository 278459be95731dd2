package store

import (
	"context"
	"time"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TestatorStore struct{ db *gorm.DB }

func (s *Store) Testators() *TestatorStore { return &TestatorStore{db: s.DB} }

func (t *TestatorStore) Create(ctx context.Context, tr *domain.Testator) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	return t.db.WithContext(ctx).Create(tr).Error
}

func (t *TestatorStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Testator, error) {
	var out domain.Testator
	if err := t.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

func (t *TestatorStore) GetByEmail(ctx context.Context, email string) (*domain.Testator, error) {
	var out domain.Testator
	if err := t.db.WithContext(ctx).First(&out, "email = ?", email).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

// ListCheckInEnabled returns every testator the escalation sweep must visit.
// Frozen testators are excluded: their will is already released.
func (t *TestatorStore) ListCheckInEnabled(ctx context.Context) ([]domain.Testator, error) {
	var out []domain.Testator
	err := t.db.WithContext(ctx).
		Where("checkin_enabled = ? AND frozen = ?", true, false).
		Find(&out).Error
	return out, err
}

func (t *TestatorStore) UpdateSettings(ctx context.Context, id uuid.UUID, enabled bool, interval, grace time.Duration, at time.Time) error {
	tx := t.db.WithContext(ctx).Model(&domain.Testator{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"checkin_enabled":  enabled,
			"checkin_interval": interval,
			"grace_period":     grace,
			"updated_at":       at,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Freeze flips the one-way frozen flag. Returns the number of rows changed so
// the caller can tell a lost race (already frozen) from success.
func (t *TestatorStore) Freeze(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tx := t.db.WithContext(ctx).Model(&domain.Testator{}).
		Where("id = ? AND frozen = ?", id, false).
		Updates(map[string]any{"frozen": true, "updated_at": at})
	return tx.RowsAffected, tx.Error
}
