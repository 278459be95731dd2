package store

import (
	"context"
	"time"

	"willvault/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStore struct{ db *gorm.DB }

func (s *Store) Sessions() *SessionStore { return &SessionStore{db: s.DB} }

func (ss *SessionStore) Create(ctx context.Context, sess *domain.UnlockSession) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	return ss.db.WithContext(ctx).Create(sess).Error
}

func (ss *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.UnlockSession, error) {
	var out domain.UnlockSession
	if err := ss.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &out, nil
}

// Advance moves the session exactly one step forward, conditional on the
// step it is expected to be on.
func (ss *SessionStore) Advance(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus, at time.Time) (int64, error) {
	if !from.CanAdvanceTo(to) {
		return 0, nil
	}
	updates := map[string]any{"status": to, "updated_at": at}
	if to == domain.SessionOtpVerified {
		updates["otp_verified_at"] = at
	}
	tx := ss.db.WithContext(ctx).Model(&domain.UnlockSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return tx.RowsAffected, tx.Error
}

// Supersede retires every live session the party holds on the request, so a
// fresh identify leaves exactly one verifiable OTP in play.
func (ss *SessionStore) Supersede(ctx context.Context, requestID, partyID uuid.UUID, at time.Time) (int64, error) {
	tx := ss.db.WithContext(ctx).Model(&domain.UnlockSession{}).
		Where("request_id = ? AND party_id = ? AND status <> ? AND expires_at > ?",
			requestID, partyID, domain.SessionFinalized, at).
		Updates(map[string]any{"expires_at": at, "updated_at": at})
	return tx.RowsAffected, tx.Error
}

// Rewind drops an otp_verified session back to identified when its OTP proof
// has gone stale, forcing a re-issue.
func (ss *SessionStore) Rewind(ctx context.Context, id uuid.UUID, at time.Time) error {
	return ss.db.WithContext(ctx).Model(&domain.UnlockSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          domain.SessionIdentified,
			"otp_verified_at": nil,
			"updated_at":      at,
		}).Error
}
