package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"willvault/internal/domain"
	"willvault/internal/dto"
	"willvault/internal/netutil"
	"willvault/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handlers struct {
	testators  service.TestatorService
	checkins   service.CheckInService
	escalation service.EscalationService
	unlock     service.UnlockService
	audit      service.AuditService
	clock      service.Clock
	cfg        RouterConfig
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			return normalized
		}
	}
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

func (h *handlers) provisionTestator(w http.ResponseWriter, r *http.Request) {
	var req dto.ProvisionTestatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	interval := h.cfg.DefaultCheckInInterval
	grace := h.cfg.DefaultGracePeriod
	if req.CheckInInterval != "" {
		d, err := time.ParseDuration(req.CheckInInterval)
		if err != nil {
			http.Error(w, "invalid checkInInterval", http.StatusBadRequest)
			return
		}
		interval = d
	}
	if req.GracePeriod != "" {
		d, err := time.ParseDuration(req.GracePeriod)
		if err != nil {
			http.Error(w, "invalid gracePeriod", http.StatusBadRequest)
			return
		}
		grace = d
	}
	t, err := h.testators.Provision(r.Context(), req.Email, req.FullName, interval, grace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ProvisionTestatorResponse{TestatorID: t.ID.String()})
}

func (h *handlers) getTestator(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "testatorID")
	if !ok {
		return
	}
	t, err := h.testators.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TestatorResponse{
		TestatorID:      t.ID.String(),
		Email:           t.Email,
		FullName:        t.FullName,
		CheckInEnabled:  t.CheckInEnabled,
		CheckInInterval: t.CheckInInterval.String(),
		GracePeriod:     t.GracePeriod.String(),
		Frozen:          t.Frozen,
	})
}

func (h *handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "testatorID")
	if !ok {
		return
	}
	var req dto.TestatorSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var settings service.TestatorSettings
	settings.CheckInEnabled = req.CheckInEnabled
	if req.CheckInInterval != "" {
		d, err := time.ParseDuration(req.CheckInInterval)
		if err != nil {
			http.Error(w, "invalid checkInInterval", http.StatusBadRequest)
			return
		}
		settings.CheckInInterval = &d
	}
	if req.GracePeriod != "" {
		d, err := time.ParseDuration(req.GracePeriod)
		if err != nil {
			http.Error(w, "invalid gracePeriod", http.StatusBadRequest)
			return
		}
		settings.GracePeriod = &d
	}
	if err := h.testators.UpdateSettings(r.Context(), id, settings); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) recordCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "testatorID")
	if !ok {
		return
	}
	ci, err := h.checkins.RecordCheckIn(r.Context(), id, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse(ci))
}

func (h *handlers) currentCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "testatorID")
	if !ok {
		return
	}
	ci, err := h.checkins.CurrentStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse(ci))
}

func (h *handlers) auditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "testatorID")
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := h.audit.Trail(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) runSweep(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	if raw := r.URL.Query().Get("now"); raw != "" && h.cfg.AllowSimulatedTime {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid now", http.StatusBadRequest)
			return
		}
		now = parsed
	}
	report, err := h.escalation.ProcessOverdue(r.Context(), now)
	if err != nil {
		// Partial failures still produce a report; surface both.
		writeJSON(w, http.StatusMultiStatus, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) requestUnlock(w http.ResponseWriter, r *http.Request) {
	var req dto.IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.unlock.RequestUnlock(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) submitOtp(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.unlock.SubmitOtp(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) verifyContacts(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyContactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.unlock.VerifyContacts(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) finalizeUnlock(w http.ResponseWriter, r *http.Request) {
	var req dto.FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.unlock.Finalize(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func checkInResponse(ci *domain.CheckIn) dto.CheckInResponse {
	return dto.CheckInResponse{
		TestatorID:  ci.TestatorID.String(),
		Status:      string(ci.Status),
		CheckedInAt: ci.CheckedInAt,
		NextDueAt:   ci.NextDueAt,
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps domain errors to statuses. Invalid and expired credentials
// share one message on purpose: callers must not be able to tell a wrong
// code from a stale one. The audit trail keeps them distinct.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidCredential), errors.Is(err, domain.ErrExpired):
		http.Error(w, "verification failed; request a new code if yours expired", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrAlreadyReleased):
		http.Error(w, "this will has already been released", http.StatusConflict)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "the request is no longer open", http.StatusConflict)
	case errors.Is(err, domain.ErrUpstreamFailure):
		http.Error(w, "upstream unavailable, try again later", http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
