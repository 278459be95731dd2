package store

import (
	"context"
	"time"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationStore struct{ db *gorm.DB }

func (s *Store) Verifications() *VerificationStore { return &VerificationStore{db: s.DB} }

func (v *VerificationStore) Create(ctx context.Context, vr *domain.VerificationRequest) error {
	if vr.ID == uuid.Nil {
		vr.ID = uuid.New()
	}
	return v.db.WithContext(ctx).Create(vr).Error
}

func (v *VerificationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	var out domain.VerificationRequest
	if err := v.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

// GetActiveByTestator returns the single pending request, if any.
func (v *VerificationStore) GetActiveByTestator(ctx context.Context, testatorID uuid.UUID) (*domain.VerificationRequest, error) {
	var out domain.VerificationRequest
	err := v.db.WithContext(ctx).
		Where("testator_id = ? AND status = ?", testatorID, domain.RequestPending).
		First(&out).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

// Transition closes or completes a request. Conditional on the current
// status so only one writer wins; returns rows affected.
func (v *VerificationStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.RequestStatus, at time.Time) (int64, error) {
	tx := v.db.WithContext(ctx).Model(&domain.VerificationRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "closed_at": at, "updated_at": at})
	return tx.RowsAffected, tx.Error
}

func (v *VerificationStore) CreateParty(ctx context.Context, p *domain.VerificationParty) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return v.db.WithContext(ctx).Create(p).Error
}

func (v *VerificationStore) ListParties(ctx context.Context, requestID uuid.UUID) ([]domain.VerificationParty, error) {
	var out []domain.VerificationParty
	err := v.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// FindParty resolves an identity claim against the snapshot. Both fields
// must match; callers must not reveal which one failed.
func (v *VerificationStore) FindParty(ctx context.Context, requestID uuid.UUID, fullName, email string) (*domain.VerificationParty, error) {
	var out domain.VerificationParty
	err := v.db.WithContext(ctx).
		Where("request_id = ? AND lower(full_name) = lower(?) AND email = ?", requestID, fullName, email).
		First(&out).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}
