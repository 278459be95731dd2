package store

import (
	"context"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReleaseStore struct{ db *gorm.DB }

func (s *Store) Releases() *ReleaseStore { return &ReleaseStore{db: s.DB} }

func (rs *ReleaseStore) Create(ctx context.Context, r *domain.ReleasePackage) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return rs.db.WithContext(ctx).Create(r).Error
}

func (rs *ReleaseStore) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.ReleasePackage, error) {
	var out domain.ReleasePackage
	err := rs.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&out).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}
