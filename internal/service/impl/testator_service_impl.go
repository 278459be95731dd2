package impl

import (
	"context"
	"errors"
	"strings"
	"time"

	"willvault/internal/domain"
	"willvault/internal/service"
	"willvault/internal/store"
)

const minCadence = 24 * time.Hour

var _ service.TestatorService = (*TestatorServiceImpl)(nil)

type TestatorServiceImpl struct {
	store dataStore
	clock service.Clock
}

func NewTestatorServiceImpl(st *store.Store, clock service.Clock) *TestatorServiceImpl {
	return &TestatorServiceImpl{store: newGormStoreAdapter(st), clock: clock}
}

// Provision creates the protected account and its initial alive check-in, so
// the escalation clock starts ticking immediately.
func (ts *TestatorServiceImpl) Provision(ctx context.Context, email, fullName string, interval, grace time.Duration) (*domain.Testator, error) {
	email = strings.TrimSpace(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" {
		return nil, ErrEmptyEmail
	}
	if fullName == "" {
		return nil, ErrEmptyName
	}
	if interval < minCadence {
		return nil, ErrIntervalTooShort
	}
	if grace < minCadence {
		return nil, ErrGraceTooShort
	}

	now := ts.clock.Now()
	t := &domain.Testator{
		Email:           email,
		FullName:        fullName,
		CheckInEnabled:  true,
		CheckInInterval: interval,
		GracePeriod:     grace,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := ts.store.WithTx(ctx, func(tx storeTx) error {
		if err := tx.Testators().Create(ctx, t); err != nil {
			return err
		}
		ci := &domain.CheckIn{
			TestatorID:  t.ID,
			Status:      domain.CheckInAlive,
			CheckedInAt: now,
			NextDueAt:   now.Add(interval),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CheckIns().Create(ctx, ci); err != nil {
			return err
		}
		return appendAudit(ctx, tx, t.ID, domain.AuditCheckInRecorded,
			map[string]any{"nextDueAt": ci.NextDueAt, "provisioned": true}, "", "", now)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (ts *TestatorServiceImpl) UpdateSettings(ctx context.Context, id domain.TestatorID, s service.TestatorSettings) error {
	now := ts.clock.Now()
	return ts.store.WithTx(ctx, func(tx storeTx) error {
		t, err := tx.Testators().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		enabled := t.CheckInEnabled
		interval := t.CheckInInterval
		grace := t.GracePeriod
		if s.CheckInEnabled != nil {
			enabled = *s.CheckInEnabled
		}
		if s.CheckInInterval != nil {
			interval = *s.CheckInInterval
		}
		if s.GracePeriod != nil {
			grace = *s.GracePeriod
		}
		if interval < minCadence {
			return ErrIntervalTooShort
		}
		if grace < minCadence {
			return ErrGraceTooShort
		}
		return tx.Testators().UpdateSettings(ctx, id, enabled, interval, grace, now)
	})
}

func (ts *TestatorServiceImpl) Get(ctx context.Context, id domain.TestatorID) (*domain.Testator, error) {
	var out *domain.Testator
	err := ts.store.WithTx(ctx, func(tx storeTx) error {
		t, err := tx.Testators().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
