package service

import (
	"context"
	"time"

	"willvault/internal/domain"
)

type TestatorSettings struct {
	CheckInEnabled  *bool
	CheckInInterval *time.Duration
	GracePeriod     *time.Duration
}

type TestatorService interface {
	Provision(ctx context.Context, email, fullName string, interval, grace time.Duration) (*domain.Testator, error)
	UpdateSettings(ctx context.Context, id domain.TestatorID, s TestatorSettings) error
	Get(ctx context.Context, id domain.TestatorID) (*domain.Testator, error)
}
