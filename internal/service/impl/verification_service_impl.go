package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"willvault/internal/domain"
	"willvault/internal/observability/metrics"
	"willvault/internal/service"
	"willvault/internal/store"
)

var _ service.VerificationService = (*VerificationServiceImpl)(nil)

type VerificationServiceImpl struct {
	store    dataStore
	registry service.ContactRegistry
	notifier service.Notifier
	codes    service.CodeService
	clock    service.Clock

	requestTTL time.Duration
}

func NewVerificationServiceImpl(st *store.Store, registry service.ContactRegistry, notifier service.Notifier, codes service.CodeService, clock service.Clock, requestTTL time.Duration) *VerificationServiceImpl {
	return &VerificationServiceImpl{
		store:      newGormStoreAdapter(st),
		registry:   registry,
		notifier:   notifier,
		codes:      codes,
		clock:      clock,
		requestTTL: requestTTL,
	}
}

// invitation is the material for one recipient's notification, assembled
// inside the transaction and dispatched after it commits. Raw is the only
// place the raw credential code ever lives.
type invitation struct {
	party  domain.VerificationParty
	raw    string
	others []domain.VerificationParty
}

// Open creates one escalation episode: snapshot the registry, persist the
// request with its party list and one credential per party, then notify each
// party with their code and the names of the others (never the others'
// codes). The snapshot is authoritative; later registry edits do not change
// this request's recipients.
func (v *VerificationServiceImpl) Open(ctx context.Context, testator *domain.Testator, now time.Time) (*domain.VerificationRequest, error) {
	if testator.Frozen {
		return nil, domain.ErrAlreadyReleased
	}

	snapshot, err := v.registry.ListParties(ctx, testator.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: contact registry: %v", domain.ErrUpstreamFailure, err)
	}
	recipients := snapshot.All()
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: testator has no registered parties", domain.ErrConflict)
	}

	var (
		req     *domain.VerificationRequest
		invites []invitation
	)
	err = v.store.WithTx(ctx, func(tx storeTx) error {
		// Single-active-request invariant: a pending request means an earlier
		// sweep already escalated; this call is a no-op returning it.
		if existing, err := tx.Verifications().GetActiveByTestator(ctx, testator.ID); err == nil {
			req = existing
			return nil
		} else if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}

		req = &domain.VerificationRequest{
			TestatorID:  testator.ID,
			Status:      domain.RequestPending,
			InitiatedAt: now,
			ExpiresAt:   now.Add(v.requestTTL),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Verifications().Create(ctx, req); err != nil {
			return err
		}

		parties := make([]domain.VerificationParty, 0, len(recipients))
		for _, rc := range recipients {
			p := domain.VerificationParty{
				RequestID: req.ID,
				Role:      rc.Role,
				FullName:  rc.FullName,
				Email:     rc.Email,
				CreatedAt: now,
			}
			if err := tx.Verifications().CreateParty(ctx, &p); err != nil {
				return err
			}
			parties = append(parties, p)
		}

		for i, p := range parties {
			raw, err := v.codes.NewUnlockCode()
			if err != nil {
				return err
			}
			hash, salt, params, err := v.codes.Hash(raw)
			if err != nil {
				return err
			}
			cred := &domain.UnlockCredential{
				RequestID:  req.ID,
				PartyID:    p.ID,
				Role:       p.Role,
				CodeHash:   hash,
				Salt:       salt,
				ParamsJSON: params,
				ExpiresAt:  req.ExpiresAt,
				CreatedAt:  now,
			}
			if err := tx.Credentials().Create(ctx, cred); err != nil {
				return err
			}
			if err := appendAudit(ctx, tx, testator.ID, domain.AuditCredentialIssued,
				map[string]any{"requestId": req.ID, "partyId": p.ID, "role": p.Role}, "", "", now); err != nil {
				return err
			}

			others := make([]domain.VerificationParty, 0, len(parties)-1)
			others = append(others, parties[:i]...)
			others = append(others, parties[i+1:]...)
			invites = append(invites, invitation{party: p, raw: raw, others: others})
		}

		return appendAudit(ctx, tx, testator.ID, domain.AuditVerificationOpened,
			map[string]any{"requestId": req.ID, "expiresAt": req.ExpiresAt, "parties": len(parties)}, "", "", now)
	})
	if err != nil {
		return nil, err
	}

	// State committed; dispatch is best-effort and individually audited.
	v.dispatchInvitations(ctx, testator, req, invites, now)

	metrics.VerificationRequestsOpenedTotal.Inc()
	slog.Info("verification request opened",
		"testator_id", testator.ID, "request_id", req.ID, "expires_at", req.ExpiresAt)
	return req, nil
}

func (v *VerificationServiceImpl) dispatchInvitations(ctx context.Context, testator *domain.Testator, req *domain.VerificationRequest, invites []invitation, now time.Time) {
	for _, inv := range invites {
		names := make([]string, 0, len(inv.others))
		for _, o := range inv.others {
			names = append(names, fmt.Sprintf("%s <%s>", o.FullName, o.Email))
		}
		deliveryID, err := v.notifier.Send(ctx, inv.party.Email, service.TemplateUnlockInvitation, map[string]string{
			"testatorName": testator.FullName,
			"role":         string(inv.party.Role),
			"unlockCode":   inv.raw,
			"otherParties": strings.Join(names, ", "),
			"expiresAt":    req.ExpiresAt.Format(time.RFC3339),
		})
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(service.TemplateUnlockInvitation), "failure").Inc()
			slog.Error("unlock invitation failed", "request_id", req.ID, "party_id", inv.party.ID, "error", err)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(string(service.TemplateUnlockInvitation), "success").Inc()
		auditErr := v.store.WithTx(ctx, func(tx storeTx) error {
			return appendAudit(ctx, tx, testator.ID, domain.AuditPartyNotified,
				map[string]any{"requestId": req.ID, "partyId": inv.party.ID, "deliveryId": deliveryID}, "", "", now)
		})
		if auditErr != nil {
			slog.Error("notification audit append failed", "request_id", req.ID, "error", auditErr)
		}
	}
}

func (v *VerificationServiceImpl) CancelActive(ctx context.Context, testatorID domain.TestatorID, now time.Time) (bool, error) {
	var cancelled bool
	err := v.store.WithTx(ctx, func(tx storeTx) error {
		var err error
		cancelled, err = cancelActiveRequest(ctx, tx, testatorID, now)
		return err
	})
	return cancelled, err
}

// ExpireIfDue retires a pending request whose window has passed. Expiry is
// lazy: nothing sweeps for it, every access path calls this first.
func (v *VerificationServiceImpl) ExpireIfDue(ctx context.Context, req *domain.VerificationRequest, now time.Time) (domain.RequestStatus, error) {
	if req.Status != domain.RequestPending || !now.After(req.ExpiresAt) {
		return req.Status, nil
	}
	err := v.store.WithTx(ctx, func(tx storeTx) error {
		n, err := tx.Verifications().Transition(ctx, req.ID, domain.RequestPending, domain.RequestExpired, now)
		if err != nil {
			return err
		}
		if n == 0 {
			// Lost to a concurrent closer; re-read below settles the status.
			fresh, err := tx.Verifications().GetByID(ctx, req.ID)
			if err != nil {
				return err
			}
			req.Status = fresh.Status
			return nil
		}
		req.Status = domain.RequestExpired
		return appendAudit(ctx, tx, req.TestatorID, domain.AuditVerificationExpired,
			map[string]any{"requestId": req.ID}, "", "", now)
	})
	if err != nil {
		return req.Status, err
	}
	return req.Status, nil
}
