package impl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"willvault/internal/domain"
	"willvault/internal/dto"
	"willvault/internal/observability/metrics"
	"willvault/internal/service"
	"willvault/internal/store"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
)

var _ service.EscalationService = (*EscalationServiceImpl)(nil)

// EscalationServiceImpl walks every protected testator through the overdue
// chain: reminder at next_due, trusted-contact alert at next_due + grace/2,
// verification request at next_due + grace. Each stage is guarded by a
// conditional status update, so sweeps are idempotent and may run at any
// interval, including concurrently.
type EscalationServiceImpl struct {
	store        dataStore
	registry     service.ContactRegistry
	notifier     service.Notifier
	verification service.VerificationService

	workers int
}

func NewEscalationServiceImpl(st *store.Store, registry service.ContactRegistry, notifier service.Notifier, verification service.VerificationService, workers int) *EscalationServiceImpl {
	if workers < 1 {
		workers = 1
	}
	return &EscalationServiceImpl{
		store:        newGormStoreAdapter(st),
		registry:     registry,
		notifier:     notifier,
		verification: verification,
		workers:      workers,
	}
}

func (e *EscalationServiceImpl) ProcessOverdue(ctx context.Context, now time.Time) (dto.SweepResponse, error) {
	var testators []domain.Testator
	err := e.store.WithTx(ctx, func(tx storeTx) error {
		var err error
		testators, err = tx.Testators().ListCheckInEnabled(ctx)
		return err
	})
	if err != nil {
		return dto.SweepResponse{}, err
	}

	var (
		mu     sync.Mutex
		report dto.SweepResponse
		errs   *multierror.Error
	)
	pool := workerpool.New(e.workers)
	for i := range testators {
		t := testators[i]
		pool.Submit(func() {
			res, err := e.escalate(ctx, &t, now)
			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			report.RemindersSent += res.RemindersSent
			report.TrustedContactNotices += res.TrustedContactNotices
			report.RequestsOpened += res.RequestsOpened
			if err != nil {
				// One testator's failure never blocks the rest; the next
				// sweep retries whatever stage did not commit.
				report.Failures++
				errs = multierror.Append(errs, err)
				slog.Error("escalation failed", "testator_id", t.ID, "error", err)
			}
		})
	}
	pool.StopWait()

	metrics.SweepRunsTotal.Inc()
	metrics.SweepFailuresTotal.Add(float64(report.Failures))
	slog.Info("escalation sweep finished",
		"processed", report.Processed,
		"reminders", report.RemindersSent,
		"trusted_contact_notices", report.TrustedContactNotices,
		"requests_opened", report.RequestsOpened,
		"failures", report.Failures,
	)
	return report, errs.ErrorOrNil()
}

// escalate advances one testator as far as the clock allows. Deadlines are
// recomputed from the last check-in, never from sweep counts, so irregular
// sweep cadences and crash-restarts change nothing.
func (e *EscalationServiceImpl) escalate(ctx context.Context, t *domain.Testator, now time.Time) (dto.SweepResponse, error) {
	var res dto.SweepResponse

	var current *domain.CheckIn
	err := e.store.WithTx(ctx, func(tx storeTx) error {
		ci, err := tx.CheckIns().GetCurrent(ctx, t.ID)
		if err != nil {
			return err
		}
		current = ci
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// Never checked in; protection starts at the first check-in.
			return res, nil
		}
		return res, err
	}

	status := current.Status
	halfGrace := t.GracePeriod / 2

	// Stage 1: reminder once next_due passes.
	if status == domain.CheckInAlive && now.After(current.NextDueAt) {
		owned, err := e.advance(ctx, t.ID, current.ID, status, domain.CheckInPending, domain.AuditCheckInMarkedPending, now)
		if err != nil {
			return res, err
		}
		if owned {
			status = domain.CheckInPending
			e.sendReminder(ctx, t, current, now)
			res.RemindersSent++
		}
	}

	// Stage 2: trusted contacts at half grace. Status guard, not timestamps,
	// keeps this at most once per check-in.
	if status == domain.CheckInPending && now.After(current.NextDueAt.Add(halfGrace)) {
		owned, err := e.advance(ctx, t.ID, current.ID, status, domain.CheckInTrustedContactsNotified, domain.AuditTrustedContactStage, now)
		if err != nil {
			return res, err
		}
		if owned {
			status = domain.CheckInTrustedContactsNotified
			e.alertTrustedContacts(ctx, t, now)
			res.TrustedContactNotices++
		}
	}

	// Stage 3: full grace elapsed, open the verification request. Open is
	// idempotent (single-active-request guard), so it runs before the status
	// flip; a failure here leaves the stage retryable on the next sweep.
	if status != domain.CheckInVerificationTriggered && now.After(current.NextDueAt.Add(t.GracePeriod)) {
		if _, err := e.verification.Open(ctx, t, now); err != nil {
			return res, err
		}
		owned, err := e.advance(ctx, t.ID, current.ID, status, domain.CheckInVerificationTriggered, domain.AuditVerificationTriggered, now)
		if err != nil {
			return res, err
		}
		if owned {
			res.RequestsOpened++
		}
	}

	return res, nil
}

// advance performs one conditional status transition plus its audit entry.
// Returns false when another sweep already owns the stage.
func (e *EscalationServiceImpl) advance(ctx context.Context, testatorID domain.TestatorID, checkinID domain.CheckInID, from, to domain.CheckInStatus, auditAction string, now time.Time) (bool, error) {
	var owned bool
	err := e.store.WithTx(ctx, func(tx storeTx) error {
		n, err := tx.CheckIns().AdvanceStatus(ctx, checkinID, from, to, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		owned = true
		return appendAudit(ctx, tx, testatorID, auditAction,
			map[string]any{"checkinId": checkinID, "from": from, "to": to}, "", "", now)
	})
	return owned, err
}

func (e *EscalationServiceImpl) sendReminder(ctx context.Context, t *domain.Testator, ci *domain.CheckIn, now time.Time) {
	deliveryID, err := e.notifier.Send(ctx, t.Email, service.TemplateCheckInReminder, map[string]string{
		"fullName":  t.FullName,
		"dueSince":  ci.NextDueAt.Format(time.RFC3339),
		"graceEnds": ci.NextDueAt.Add(t.GracePeriod).Format(time.RFC3339),
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(service.TemplateCheckInReminder), "failure").Inc()
		slog.Error("check-in reminder failed", "testator_id", t.ID, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(service.TemplateCheckInReminder), "success").Inc()
	e.auditDispatch(ctx, t.ID, domain.AuditCheckInReminderSent, map[string]any{"deliveryId": deliveryID}, now)
}

func (e *EscalationServiceImpl) alertTrustedContacts(ctx context.Context, t *domain.Testator, now time.Time) {
	snapshot, err := e.registry.ListParties(ctx, t.ID)
	if err != nil {
		slog.Error("contact registry lookup failed", "testator_id", t.ID, "error", err)
		return
	}
	for _, c := range snapshot.TrustedContacts {
		deliveryID, err := e.notifier.Send(ctx, c.Email, service.TemplateTrustedContactAlert, map[string]string{
			"contactName":  c.FullName,
			"testatorName": t.FullName,
		})
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(service.TemplateTrustedContactAlert), "failure").Inc()
			slog.Error("trusted contact alert failed", "testator_id", t.ID, "contact", c.ID, "error", err)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(string(service.TemplateTrustedContactAlert), "success").Inc()
		e.auditDispatch(ctx, t.ID, domain.AuditTrustedContactAlertSent,
			map[string]any{"contactId": c.ID, "deliveryId": deliveryID}, now)
	}
}

func (e *EscalationServiceImpl) auditDispatch(ctx context.Context, testatorID domain.TestatorID, action string, details map[string]any, now time.Time) {
	err := e.store.WithTx(ctx, func(tx storeTx) error {
		return appendAudit(ctx, tx, testatorID, action, details, "", "", now)
	})
	if err != nil {
		slog.Error("dispatch audit append failed", "testator_id", testatorID, "action", action, "error", err)
	}
}
