package http

import (
	"net/http"
	"time"

	"willvault/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	// AllowSimulatedTime lets ?now=RFC3339 override the sweep clock. Only
	// ever enabled outside production, for escalation drills.
	AllowSimulatedTime bool

	// Cadence applied when a provision request omits the durations.
	DefaultCheckInInterval time.Duration
	DefaultGracePeriod     time.Duration
}

func NewRouter(
	testators service.TestatorService,
	checkins service.CheckInService,
	escalation service.EscalationService,
	unlock service.UnlockService,
	audit service.AuditService,
	clock service.Clock,
	cfg RouterConfig,
) http.Handler {
	h := &handlers{
		testators:  testators,
		checkins:   checkins,
		escalation: escalation,
		unlock:     unlock,
		audit:      audit,
		clock:      clock,
		cfg:        cfg,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/testators", h.provisionTestator)
		r.Route("/testators/{testatorID}", func(r chi.Router) {
			r.Get("/", h.getTestator)
			r.Put("/settings", h.updateSettings)
			r.Post("/checkin", h.recordCheckIn)
			r.Get("/checkin", h.currentCheckIn)
			r.Get("/audit", h.auditTrail)
		})

		r.Post("/admin/sweep", h.runSweep)

		r.Route("/unlock", func(r chi.Router) {
			r.Post("/request", h.requestUnlock)
			r.Post("/otp", h.submitOtp)
			r.Post("/contacts", h.verifyContacts)
			r.Post("/finalize", h.finalizeUnlock)
		})
	})

	return r
}
