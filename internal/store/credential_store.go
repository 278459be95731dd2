package store

import (
	"context"
	"time"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CredentialStore struct{ db *gorm.DB }

func (s *Store) Credentials() *CredentialStore { return &CredentialStore{db: s.DB} }

func (cs *CredentialStore) Create(ctx context.Context, c *domain.UnlockCredential) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return cs.db.WithContext(ctx).Create(c).Error
}

func (cs *CredentialStore) GetByParty(ctx context.Context, requestID, partyID uuid.UUID) (*domain.UnlockCredential, error) {
	var out domain.UnlockCredential
	err := cs.db.WithContext(ctx).
		Where("request_id = ? AND party_id = ?", requestID, partyID).
		First(&out).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

// MarkUsed consumes a credential. Conditional on used = false: once consumed
// it can never be consumed again, whoever asks.
func (cs *CredentialStore) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tx := cs.db.WithContext(ctx).Model(&domain.UnlockCredential{}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]any{"used": true, "used_at": at})
	return tx.RowsAffected, tx.Error
}

// ReplaceOtp enforces the single-active-code invariant: delete whatever
// challenge the session had, then insert the fresh one, in the caller's tx.
func (cs *CredentialStore) ReplaceOtp(ctx context.Context, o *domain.OtpChallenge) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if err := cs.db.WithContext(ctx).
		Where("session_id = ?", o.SessionID).
		Delete(&domain.OtpChallenge{}).Error; err != nil {
		return err
	}
	return cs.db.WithContext(ctx).Create(o).Error
}

func (cs *CredentialStore) GetOtpBySession(ctx context.Context, sessionID uuid.UUID) (*domain.OtpChallenge, error) {
	var out domain.OtpChallenge
	err := cs.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&out).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

func (cs *CredentialStore) ConsumeOtp(ctx context.Context, id uuid.UUID) (int64, error) {
	tx := cs.db.WithContext(ctx).Model(&domain.OtpChallenge{}).
		Where("id = ? AND consumed = ?", id, false).
		Update("consumed", true)
	return tx.RowsAffected, tx.Error
}
