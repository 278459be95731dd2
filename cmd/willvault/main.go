package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"willvault/internal/config"
	"willvault/internal/observability/logging"
	"willvault/internal/observability/metrics"
	"willvault/internal/observability/middleware"
	"willvault/internal/service"
	impl "willvault/internal/service/impl"
	"willvault/internal/store"
	httpx "willvault/internal/transport/http"
	"willvault/internal/upstream"
	"willvault/pkg/db"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "willvault",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	logger.Info("starting service")

	cfg := config.Load()
	metrics.MustRegister("willvault")

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)
	clock := service.RealClock{}

	registry := upstream.NewRegistryClient(cfg.RegistryBaseURL)
	notifier := upstream.NewNotifierClient(cfg.NotifierBaseURL)
	wills := upstream.NewWillStoreClient(cfg.WillStoreBaseURL)

	codes := impl.NewCodeServiceArgon2id()
	tokens := impl.NewSessionTokenHS256(impl.SessionTokenConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		SigningKey: []byte(cfg.SigningKey),
	}, clock)

	testators := impl.NewTestatorServiceImpl(st, clock)
	checkins := impl.NewCheckInServiceImpl(st, clock)
	verification := impl.NewVerificationServiceImpl(st, registry, notifier, codes, clock, cfg.RequestTTL)
	escalation := impl.NewEscalationServiceImpl(st, registry, notifier, verification, cfg.SweepWorkers)
	unlock := impl.NewUnlockServiceImpl(st, tokens, codes, notifier, impl.SubstringMatcher{}, wills, clock, cfg.OtpTTL)
	audit := impl.NewAuditServiceImpl(st, clock)

	mux := httpx.NewRouter(testators, checkins, escalation, unlock, audit, clock, httpx.RouterConfig{
		AllowSimulatedTime:     env != "prod",
		DefaultCheckInInterval: cfg.CheckInInterval,
		DefaultGracePeriod:     cfg.GracePeriod,
	})
	handler := middleware.WithRequestAndTrace(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("willvault listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
