package impl

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"willvault/internal/domain"
	"willvault/internal/netutil"
	"willvault/internal/store"

	"github.com/google/uuid"
)

// Narrow, consumer-side views of the store. Service impls depend on these so
// tests can swap in an in-memory implementation; the gorm adapters below are
// the only production implementation.

type dataStore interface {
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
}

type storeTx interface {
	Testators() testatorStore
	CheckIns() checkinStore
	Verifications() verificationStore
	Credentials() credentialStore
	Sessions() sessionStore
	Releases() releaseStore
	Audit() auditStore
}

type testatorStore interface {
	Create(ctx context.Context, t *domain.Testator) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Testator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Testator, error)
	ListCheckInEnabled(ctx context.Context) ([]domain.Testator, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, enabled bool, interval, grace time.Duration, at time.Time) error
	Freeze(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
}

type checkinStore interface {
	Create(ctx context.Context, ci *domain.CheckIn) error
	GetCurrent(ctx context.Context, testatorID uuid.UUID) (*domain.CheckIn, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to domain.CheckInStatus, at time.Time) (int64, error)
}

type verificationStore interface {
	Create(ctx context.Context, vr *domain.VerificationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error)
	GetActiveByTestator(ctx context.Context, testatorID uuid.UUID) (*domain.VerificationRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.RequestStatus, at time.Time) (int64, error)
	CreateParty(ctx context.Context, p *domain.VerificationParty) error
	ListParties(ctx context.Context, requestID uuid.UUID) ([]domain.VerificationParty, error)
	FindParty(ctx context.Context, requestID uuid.UUID, fullName, email string) (*domain.VerificationParty, error)
}

type credentialStore interface {
	Create(ctx context.Context, c *domain.UnlockCredential) error
	GetByParty(ctx context.Context, requestID, partyID uuid.UUID) (*domain.UnlockCredential, error)
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	ReplaceOtp(ctx context.Context, o *domain.OtpChallenge) error
	GetOtpBySession(ctx context.Context, sessionID uuid.UUID) (*domain.OtpChallenge, error)
	ConsumeOtp(ctx context.Context, id uuid.UUID) (int64, error)
}

type sessionStore interface {
	Create(ctx context.Context, s *domain.UnlockSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UnlockSession, error)
	Advance(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus, at time.Time) (int64, error)
	Supersede(ctx context.Context, requestID, partyID uuid.UUID, at time.Time) (int64, error)
	Rewind(ctx context.Context, id uuid.UUID, at time.Time) error
}

type releaseStore interface {
	Create(ctx context.Context, r *domain.ReleasePackage) error
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.ReleasePackage, error)
}

type auditStore interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
	ListByTestator(ctx context.Context, testatorID uuid.UUID, limit int) ([]domain.AuditEntry, error)
}

// ---- gorm adapters ----

type gormStoreAdapter struct {
	store *store.Store
}

func newGormStoreAdapter(st *store.Store) gormStoreAdapter { return gormStoreAdapter{store: st} }

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormTxAdapter{tx: tx})
	})
}

type gormTxAdapter struct {
	tx *store.Store
}

func (g gormTxAdapter) Testators() testatorStore         { return g.tx.Testators() }
func (g gormTxAdapter) CheckIns() checkinStore           { return g.tx.CheckIns() }
func (g gormTxAdapter) Verifications() verificationStore { return g.tx.Verifications() }
func (g gormTxAdapter) Credentials() credentialStore     { return g.tx.Credentials() }
func (g gormTxAdapter) Sessions() sessionStore           { return g.tx.Sessions() }
func (g gormTxAdapter) Releases() releaseStore           { return g.tx.Releases() }
func (g gormTxAdapter) Audit() auditStore                { return g.tx.Audit() }

// appendAudit writes one trail entry inside the caller's transaction.
func appendAudit(ctx context.Context, tx storeTx, testatorID domain.TestatorID, action string, details map[string]any, ip, ua string, at time.Time) error {
	var meta []byte
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		meta = b
	}
	tid := testatorID
	if ip != "" {
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			ip = normalized
		}
	}
	return tx.Audit().Append(ctx, &domain.AuditEntry{
		TestatorID: &tid,
		Action:     action,
		Metadata:   meta,
		IP:         ip,
		UserAgent:  netutil.TruncateUserAgent(ua),
		CreatedAt:  at,
	})
}
