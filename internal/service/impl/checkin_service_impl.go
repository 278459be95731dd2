package impl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"willvault/internal/domain"
	"willvault/internal/observability/metrics"
	"willvault/internal/service"
	"willvault/internal/store"
)

var _ service.CheckInService = (*CheckInServiceImpl)(nil)

type CheckInServiceImpl struct {
	store dataStore
	clock service.Clock
}

func NewCheckInServiceImpl(st *store.Store, clock service.Clock) *CheckInServiceImpl {
	return &CheckInServiceImpl{store: newGormStoreAdapter(st), clock: clock}
}

// RecordCheckIn appends a fresh alive event, superseding whatever escalation
// chain the previous check-in was on, and cancels any pending verification
// request. Cancellation is persisted in the same transaction, so a testator
// checking in strictly before an unlock's final commit always wins.
func (c *CheckInServiceImpl) RecordCheckIn(ctx context.Context, testatorID domain.TestatorID, ip, ua string) (*domain.CheckIn, error) {
	now := c.clock.Now()
	var out *domain.CheckIn

	err := c.store.WithTx(ctx, func(tx storeTx) error {
		t, err := tx.Testators().GetByID(ctx, testatorID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		ci := &domain.CheckIn{
			TestatorID:  t.ID,
			Status:      domain.CheckInAlive,
			CheckedInAt: now,
			NextDueAt:   now.Add(t.CheckInInterval),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CheckIns().Create(ctx, ci); err != nil {
			return err
		}

		cancelled, err := cancelActiveRequest(ctx, tx, t.ID, now)
		if err != nil {
			return err
		}
		details := map[string]any{"nextDueAt": ci.NextDueAt}
		if cancelled {
			details["cancelledPendingVerification"] = true
		}
		if err := appendAudit(ctx, tx, t.ID, domain.AuditCheckInRecorded, details, ip, ua, now); err != nil {
			return err
		}

		out = ci
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckInsRecordedTotal.WithLabelValues("success").Inc()
	slog.Info("check-in recorded", "testator_id", testatorID, "next_due_at", out.NextDueAt)
	return out, nil
}

func (c *CheckInServiceImpl) CurrentStatus(ctx context.Context, testatorID domain.TestatorID) (*domain.CheckIn, error) {
	var out *domain.CheckIn
	err := c.store.WithTx(ctx, func(tx storeTx) error {
		if _, err := tx.Testators().GetByID(ctx, testatorID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		ci, err := tx.CheckIns().GetCurrent(ctx, testatorID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		out = ci
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// cancelActiveRequest flips the testator's pending verification request (if
// any) to cancelled. Shared by check-in recording and the verification
// service's CancelActive.
func cancelActiveRequest(ctx context.Context, tx storeTx, testatorID domain.TestatorID, at time.Time) (bool, error) {
	req, err := tx.Verifications().GetActiveByTestator(ctx, testatorID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	n, err := tx.Verifications().Transition(ctx, req.ID, domain.RequestPending, domain.RequestCancelled, at)
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Someone else closed it between the read and the update; either way
		// it is no longer pending.
		return false, nil
	}
	if err := appendAudit(ctx, tx, testatorID, domain.AuditVerificationCancelled,
		map[string]any{"requestId": req.ID}, "", "", at); err != nil {
		return false, err
	}
	return true, nil
}
