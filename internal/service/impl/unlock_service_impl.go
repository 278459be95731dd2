package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"willvault/internal/domain"
	"willvault/internal/dto"
	"willvault/internal/observability/metrics"
	"willvault/internal/service"
	"willvault/internal/store"

	"github.com/google/uuid"
)

var _ service.UnlockService = (*UnlockServiceImpl)(nil)

// UnlockServiceImpl drives the four-step release chain: identify against the
// verification snapshot, prove an emailed OTP, prove knowledge of the other
// parties' names, then finalize with the unlock credential.
//
// Any ONE party completing the whole chain releases the will for everyone;
// the bar is the chain itself, not a count of independent parties. This is a
// deliberate one-shot design: the first successful finalize freezes the
// testator and every other credential dies with it.
type UnlockServiceImpl struct {
	store    dataStore
	tokens   service.SessionTokenService
	codes    service.CodeService
	notifier service.Notifier
	matcher  service.NameMatcher
	wills    service.WillStore
	clock    service.Clock

	otpTTL     time.Duration
	minMatches int
}

func NewUnlockServiceImpl(
	st *store.Store,
	tokens service.SessionTokenService,
	codes service.CodeService,
	notifier service.Notifier,
	matcher service.NameMatcher,
	wills service.WillStore,
	clock service.Clock,
	otpTTL time.Duration,
) *UnlockServiceImpl {
	return &UnlockServiceImpl{
		store:      newGormStoreAdapter(st),
		tokens:     tokens,
		codes:      codes,
		notifier:   notifier,
		matcher:    matcher,
		wills:      wills,
		clock:      clock,
		otpTTL:     otpTTL,
		minMatches: 2,
	}
}

// RequestUnlock resolves the caller's identity claim against the snapshot and
// opens a session with a fresh OTP. Any mismatch is a bare not-found: the
// response never says which field was wrong, or whether the testator exists.
func (u *UnlockServiceImpl) RequestUnlock(ctx context.Context, req dto.IdentifyRequest, ip, ua string) (*dto.UnlockSessionResponse, error) {
	result := "failure"
	defer func() { metrics.UnlockStepsTotal.WithLabelValues("identify", result).Inc() }()

	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	testatorEmail := strings.TrimSpace(req.TestatorEmail)
	if fullName == "" {
		return nil, ErrEmptyName
	}
	if email == "" || testatorEmail == "" {
		return nil, ErrEmptyEmail
	}

	now := u.clock.Now()
	var (
		sess     *domain.UnlockSession
		party    *domain.VerificationParty
		testator *domain.Testator
		rawOtp   string
		opErr    error // rejection recorded inside the tx; the tx still commits
	)
	err := u.store.WithTx(ctx, func(tx storeTx) error {
		t, err := tx.Testators().GetByEmail(ctx, testatorEmail)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if t.Frozen {
			return domain.ErrAlreadyReleased
		}
		vr, err := tx.Verifications().GetActiveByTestator(ctx, t.ID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if now.After(vr.ExpiresAt) {
			// Lazy expiry: retire the request on access rather than by
			// timer. Returning nil commits the transition; the caller
			// still gets ErrExpired.
			if _, err := tx.Verifications().Transition(ctx, vr.ID, domain.RequestPending, domain.RequestExpired, now); err != nil {
				return err
			}
			if err := appendAudit(ctx, tx, t.ID, domain.AuditVerificationExpired,
				map[string]any{"requestId": vr.ID}, ip, ua, now); err != nil {
				return err
			}
			opErr = domain.ErrExpired
			return nil
		}

		p, err := tx.Verifications().FindParty(ctx, vr.ID, fullName, email)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		// Re-identifying supersedes the party's earlier sessions, and with
		// them any OTP still inside its window. One active code per party.
		superseded, err := tx.Sessions().Supersede(ctx, vr.ID, p.ID, now)
		if err != nil {
			return err
		}

		sess = &domain.UnlockSession{
			RequestID: vr.ID,
			PartyID:   p.ID,
			Status:    domain.SessionIdentified,
			ExpiresAt: vr.ExpiresAt,
			IP:        ip,
			UserAgent: ua,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Sessions().Create(ctx, sess); err != nil {
			return err
		}

		code, err := u.codes.NewOtp()
		if err != nil {
			return err
		}
		hash, salt, params, err := u.codes.Hash(code)
		if err != nil {
			return err
		}
		// Delete-then-insert keeps exactly one active OTP per session.
		if err := tx.Credentials().ReplaceOtp(ctx, &domain.OtpChallenge{
			SessionID:  sess.ID,
			CodeHash:   hash,
			Salt:       salt,
			ParamsJSON: params,
			ExpiresAt:  now.Add(u.otpTTL),
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		rawOtp = code
		party = p
		testator = t

		return appendAudit(ctx, tx, t.ID, domain.AuditUnlockIdentified,
			map[string]any{"requestId": vr.ID, "partyId": p.ID, "role": p.Role, "sessionId": sess.ID, "superseded": superseded}, ip, ua, now)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	// The OTP goes to the snapshot party's own address, never anywhere the
	// caller supplied.
	deliveryID, sendErr := u.notifier.Send(ctx, party.Email, service.TemplateUnlockOtp, map[string]string{
		"partyName":    party.FullName,
		"testatorName": testator.FullName,
		"otp":          rawOtp,
		"expiresAt":    now.Add(u.otpTTL).Format(time.RFC3339),
	})
	if sendErr != nil {
		metrics.NotificationsTotal.WithLabelValues(string(service.TemplateUnlockOtp), "failure").Inc()
		return nil, fmt.Errorf("%w: otp delivery: %v", domain.ErrUpstreamFailure, sendErr)
	}
	metrics.NotificationsTotal.WithLabelValues(string(service.TemplateUnlockOtp), "success").Inc()
	if err := u.auditDispatch(ctx, testator.ID, domain.AuditOtpIssued,
		map[string]any{"sessionId": sess.ID, "deliveryId": deliveryID}, ip, ua, now); err != nil {
		slog.Error("otp audit append failed", "session_id", sess.ID, "error", err)
	}

	token, err := u.tokens.Issue(sess)
	if err != nil {
		return nil, err
	}
	result = "success"
	slog.Info("unlock session opened", "session_id", sess.ID, "request_id", sess.RequestID, "role", party.Role)
	return &dto.UnlockSessionResponse{SessionToken: token, Step: "submit_otp", ExpiresAt: sess.ExpiresAt}, nil
}

func (u *UnlockServiceImpl) SubmitOtp(ctx context.Context, req dto.SubmitOtpRequest, ip, ua string) (*dto.UnlockSessionResponse, error) {
	result := "failure"
	defer func() { metrics.UnlockStepsTotal.WithLabelValues("otp", result).Inc() }()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	now := u.clock.Now()

	var (
		sess  *domain.UnlockSession
		opErr error
	)
	err := u.store.WithTx(ctx, func(tx storeTx) error {
		s, testatorID, err := u.loadSession(ctx, tx, req.SessionToken, now)
		if err != nil {
			return err
		}
		if s.Status != domain.SessionIdentified {
			return ErrWrongStep
		}

		otp, err := tx.Credentials().GetOtpBySession(ctx, s.ID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidCredential
			}
			return err
		}
		if otp.Consumed {
			return domain.ErrInvalidCredential
		}
		if now.After(otp.ExpiresAt) {
			// Distinct in the audit trail, indistinguishable to the caller.
			// Returning nil keeps the audit entry on rollback-free footing.
			if err := appendAudit(ctx, tx, testatorID, domain.AuditOtpRejected,
				map[string]any{"sessionId": s.ID, "reason": "expired"}, ip, ua, now); err != nil {
				return err
			}
			opErr = domain.ErrExpired
			return nil
		}
		if !u.codes.Verify(code, otp.CodeHash, otp.Salt, otp.ParamsJSON) {
			if err := appendAudit(ctx, tx, testatorID, domain.AuditOtpRejected,
				map[string]any{"sessionId": s.ID, "reason": "mismatch"}, ip, ua, now); err != nil {
				return err
			}
			opErr = domain.ErrInvalidCredential
			return nil
		}

		if n, err := tx.Credentials().ConsumeOtp(ctx, otp.ID); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrInvalidCredential
		}
		if n, err := tx.Sessions().Advance(ctx, s.ID, domain.SessionIdentified, domain.SessionOtpVerified, now); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrConflict
		}
		s.Status = domain.SessionOtpVerified

		sess = s
		return appendAudit(ctx, tx, testatorID, domain.AuditOtpVerified,
			map[string]any{"sessionId": s.ID}, ip, ua, now)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	token, err := u.tokens.Issue(sess)
	if err != nil {
		return nil, err
	}
	result = "success"
	return &dto.UnlockSessionResponse{SessionToken: token, Step: "verify_contacts", ExpiresAt: sess.ExpiresAt}, nil
}

// VerifyContacts binds knowledge of the social graph as a second factor: the
// claimed names must fuzzily match at least two distinct other parties of the
// same request. The acting party's own name does not count.
func (u *UnlockServiceImpl) VerifyContacts(ctx context.Context, req dto.VerifyContactsRequest, ip, ua string) (*dto.UnlockSessionResponse, error) {
	result := "failure"
	defer func() { metrics.UnlockStepsTotal.WithLabelValues("contacts", result).Inc() }()

	if len(req.Names) < u.minMatches {
		return nil, ErrTooFewNames
	}
	now := u.clock.Now()

	var (
		sess  *domain.UnlockSession
		opErr error
	)
	err := u.store.WithTx(ctx, func(tx storeTx) error {
		s, testatorID, err := u.loadSession(ctx, tx, req.SessionToken, now)
		if err != nil {
			return err
		}
		if s.Status != domain.SessionOtpVerified {
			return ErrWrongStep
		}
		if stale, err := u.rewindIfOtpStale(ctx, tx, s, now); err != nil {
			return err
		} else if stale {
			// Commit the rewind; the caller restarts at identification.
			opErr = domain.ErrExpired
			return nil
		}

		parties, err := tx.Verifications().ListParties(ctx, s.RequestID)
		if err != nil {
			return err
		}
		matched := u.countMatches(req.Names, parties, s.PartyID)
		if matched < u.minMatches {
			if err := appendAudit(ctx, tx, testatorID, domain.AuditContactsRejected,
				map[string]any{"sessionId": s.ID, "claimed": len(req.Names), "matched": matched}, ip, ua, now); err != nil {
				return err
			}
			opErr = domain.ErrInvalidCredential
			return nil
		}

		if n, err := tx.Sessions().Advance(ctx, s.ID, domain.SessionOtpVerified, domain.SessionContactsVerified, now); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrConflict
		}
		s.Status = domain.SessionContactsVerified

		sess = s
		return appendAudit(ctx, tx, testatorID, domain.AuditContactsVerified,
			map[string]any{"sessionId": s.ID, "matched": matched}, ip, ua, now)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	token, err := u.tokens.Issue(sess)
	if err != nil {
		return nil, err
	}
	result = "success"
	return &dto.UnlockSessionResponse{SessionToken: token, Step: "finalize", ExpiresAt: sess.ExpiresAt}, nil
}

// Finalize is the system's only hard mutual-exclusion point. Inside one
// transaction it re-validates the whole chain, consumes the credential,
// completes the request, freezes the testator, and materializes the package.
// A check-in persisted before this commit flips the request to cancelled and
// the conditional completion loses, so cancellation always wins the race.
func (u *UnlockServiceImpl) Finalize(ctx context.Context, req dto.FinalizeRequest, ip, ua string) (*dto.ReleaseResponse, error) {
	result := "failure"
	defer func() { metrics.UnlockStepsTotal.WithLabelValues("finalize", result).Inc() }()

	code := strings.TrimSpace(req.CredentialCode)
	if code == "" {
		return nil, ErrEmptyCode
	}
	now := u.clock.Now()

	var (
		out   *dto.ReleaseResponse
		opErr error
	)
	err := u.store.WithTx(ctx, func(tx storeTx) error {
		s, testatorID, err := u.loadSession(ctx, tx, req.SessionToken, now)
		if err != nil {
			return err
		}

		// Winner retry: the party that already released gets the same
		// package back instead of recomputing.
		if s.Status == domain.SessionFinalized {
			existing, err := tx.Releases().GetByRequestID(ctx, s.RequestID)
			if err != nil {
				return err
			}
			out, err = releaseResponse(existing)
			return err
		}

		if s.Status != domain.SessionContactsVerified {
			return ErrWrongStep
		}
		if stale, err := u.rewindIfOtpStale(ctx, tx, s, now); err != nil {
			return err
		} else if stale {
			// Commit the rewind; the caller restarts at identification.
			opErr = domain.ErrExpired
			return nil
		}

		vr, err := tx.Verifications().GetByID(ctx, s.RequestID)
		if err != nil {
			return err
		}
		switch vr.Status {
		case domain.RequestPending:
			// fall through to the conditional commit below
		case domain.RequestCompleted:
			return domain.ErrAlreadyReleased
		case domain.RequestCancelled:
			return domain.ErrConflict
		default:
			return domain.ErrExpired
		}
		if now.After(vr.ExpiresAt) {
			// Lazy expiry, committed despite the rejection.
			if _, err := tx.Verifications().Transition(ctx, vr.ID, domain.RequestPending, domain.RequestExpired, now); err != nil {
				return err
			}
			if err := appendAudit(ctx, tx, testatorID, domain.AuditVerificationExpired,
				map[string]any{"requestId": vr.ID}, ip, ua, now); err != nil {
				return err
			}
			opErr = domain.ErrExpired
			return nil
		}

		testator, err := tx.Testators().GetByID(ctx, testatorID)
		if err != nil {
			return err
		}
		if testator.Frozen {
			return domain.ErrAlreadyReleased
		}

		cred, err := tx.Credentials().GetByParty(ctx, vr.ID, s.PartyID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidCredential
			}
			return err
		}
		if cred.Used {
			return domain.ErrInvalidCredential
		}
		if now.After(cred.ExpiresAt) {
			return domain.ErrExpired
		}
		if !u.codes.Verify(code, cred.CodeHash, cred.Salt, cred.ParamsJSON) {
			if err := appendAudit(ctx, tx, testatorID, domain.AuditFinalizeRejected,
				map[string]any{"sessionId": s.ID, "reason": "credential_mismatch"}, ip, ua, now); err != nil {
				return err
			}
			opErr = domain.ErrInvalidCredential
			return nil
		}

		// Commit point. Every update below is conditional; the first one to
		// report zero rows means a concurrent writer won and we roll back.
		if n, err := tx.Credentials().MarkUsed(ctx, cred.ID, now); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrInvalidCredential
		}
		if n, err := tx.Verifications().Transition(ctx, vr.ID, domain.RequestPending, domain.RequestCompleted, now); err != nil {
			return err
		} else if n == 0 {
			// Cancelled by a fresh check-in, expired, or lost to another
			// finalize between our read and this update.
			fresh, err := tx.Verifications().GetByID(ctx, vr.ID)
			if err != nil {
				return err
			}
			switch fresh.Status {
			case domain.RequestCompleted:
				return domain.ErrAlreadyReleased
			case domain.RequestExpired:
				return domain.ErrExpired
			default:
				return domain.ErrConflict
			}
		}
		if n, err := tx.Testators().Freeze(ctx, testatorID, now); err != nil {
			return err
		} else if n == 0 {
			// A different request finalized first; this whole tx unwinds.
			return domain.ErrAlreadyReleased
		}
		if n, err := tx.Sessions().Advance(ctx, s.ID, domain.SessionContactsVerified, domain.SessionFinalized, now); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrConflict
		}

		sealed, err := u.wills.GetSealedContent(ctx, testatorID)
		if err != nil {
			return fmt.Errorf("%w: will store: %v", domain.ErrUpstreamFailure, err)
		}

		parties, err := tx.Verifications().ListParties(ctx, vr.ID)
		if err != nil {
			return err
		}
		var acting domain.VerificationParty
		names := make([]string, 0, len(parties))
		for _, p := range parties {
			names = append(names, p.FullName)
			if p.ID == s.PartyID {
				acting = p
			}
		}
		manifest := domain.ReleaseManifest{
			TestatorEmail: testator.Email,
			ReleasedTo:    acting.FullName,
			ReleasedRole:  acting.Role,
			PartyNames:    names,
			ReleasedAt:    now,
		}
		manifestJSON, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		pkg := &domain.ReleasePackage{
			RequestID:       vr.ID,
			TestatorID:      testatorID,
			SealedContent:   sealed,
			ManifestJSON:    manifestJSON,
			ReleasedToParty: s.PartyID,
			ReleasedAt:      now,
		}
		if err := tx.Releases().Create(ctx, pkg); err != nil {
			return err
		}

		if err := appendAudit(ctx, tx, testatorID, domain.AuditWillReleased,
			map[string]any{"requestId": vr.ID, "partyId": s.PartyID, "role": acting.Role}, ip, ua, now); err != nil {
			return err
		}

		out, err = releaseResponse(pkg)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	result = "success"
	metrics.ReleasesTotal.Inc()
	slog.Info("will released", "request_id", out.RequestID)
	return out, nil
}

func (u *UnlockServiceImpl) auditDispatch(ctx context.Context, testatorID domain.TestatorID, action string, details map[string]any, ip, ua string, now time.Time) error {
	return u.store.WithTx(ctx, func(tx storeTx) error {
		return appendAudit(ctx, tx, testatorID, action, details, ip, ua, now)
	})
}

// loadSession resolves the bearer token to its DB row and checks session
// expiry. Returns the owning testator id for audit entries.
func (u *UnlockServiceImpl) loadSession(ctx context.Context, tx storeTx, token string, now time.Time) (*domain.UnlockSession, domain.TestatorID, error) {
	id, err := u.tokens.Parse(token)
	if err != nil {
		return nil, uuid.Nil, domain.ErrInvalidCredential
	}
	s, err := tx.Sessions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, uuid.Nil, domain.ErrNotFound
		}
		return nil, uuid.Nil, err
	}
	// Inclusive: a session superseded "now" is dead now, not next tick.
	if !now.Before(s.ExpiresAt) {
		return nil, uuid.Nil, domain.ErrExpired
	}
	vr, err := tx.Verifications().GetByID(ctx, s.RequestID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return s, vr.TestatorID, nil
}

// rewindIfOtpStale enforces the OTP freshness window across later steps: a
// session whose OTP proof is older than the TTL drops back to identified and
// must re-issue.
func (u *UnlockServiceImpl) rewindIfOtpStale(ctx context.Context, tx storeTx, s *domain.UnlockSession, now time.Time) (bool, error) {
	if s.OtpVerifiedAt == nil {
		return true, nil
	}
	if now.Sub(*s.OtpVerifiedAt) <= u.otpTTL {
		return false, nil
	}
	if err := tx.Sessions().Rewind(ctx, s.ID, now); err != nil {
		return false, err
	}
	return true, nil
}

// countMatches returns how many DISTINCT other parties the claimed names
// cover. Repeating one party's name, or spelling it two ways, still counts
// as knowing a single person.
func (u *UnlockServiceImpl) countMatches(claimed []string, parties []domain.VerificationParty, actingParty domain.PartyID) int {
	matched := make(map[domain.PartyID]struct{})
	for _, name := range claimed {
		for _, p := range parties {
			if p.ID == actingParty {
				continue
			}
			if _, done := matched[p.ID]; done {
				continue
			}
			if u.matcher.Match(name, p.FullName) {
				matched[p.ID] = struct{}{}
				break
			}
		}
	}
	return len(matched)
}

func releaseResponse(pkg *domain.ReleasePackage) (*dto.ReleaseResponse, error) {
	var manifest domain.ReleaseManifest
	if err := json.Unmarshal(pkg.ManifestJSON, &manifest); err != nil {
		return nil, err
	}
	return &dto.ReleaseResponse{
		RequestID:     pkg.RequestID.String(),
		SealedContent: pkg.SealedContent,
		Manifest: dto.ReleaseManifest{
			TestatorEmail: manifest.TestatorEmail,
			ReleasedTo:    manifest.ReleasedTo,
			ReleasedRole:  string(manifest.ReleasedRole),
			PartyNames:    manifest.PartyNames,
		},
		ReleasedAt: pkg.ReleasedAt,
	}, nil
}
