package service

import (
	"context"
	"time"

	"willvault/internal/dto"
)

// EscalationService is the periodic sweep. It is never self-scheduling: an
// external invoker (cron, admin endpoint) supplies the tick. Deadlines are
// recomputed from the last check-in, so the sweep is safe to run at any
// interval and safe to re-run after a crash.
type EscalationService interface {
	ProcessOverdue(ctx context.Context, now time.Time) (dto.SweepResponse, error)
}
