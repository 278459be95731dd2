package store

import (
	"context"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditStore struct{ db *gorm.DB }

func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.DB} }

// Append is the only write this table ever sees.
func (a *AuditStore) Append(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return a.db.WithContext(ctx).Create(e).Error
}

func (a *AuditStore) ListByTestator(ctx context.Context, testatorID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := a.db.WithContext(ctx).
		Where("testator_id = ?", testatorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
