package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"checkin-station/internal/status"
	"checkin-station/models"
	"checkin-station/monitoring"
	"checkin-station/services"
)

// CheckInHandler exposes the scan pipeline over the station's local API. One
// scan session is active at a time; opening a new one closes the previous.
type CheckInHandler struct {
	app      *pocketbase.PocketBase
	verifier *services.VerifierService
	outbox   *services.OutboxService
	watcher  *services.ConnectivityWatcher
	audit    *services.AuditTrail
	staff    *models.StaffSession
	feedback services.Feedback
	location string
	cooldown time.Duration

	mu      sync.Mutex
	current *services.ScanSession
}

func NewCheckInHandler(
	app *pocketbase.PocketBase,
	verifier *services.VerifierService,
	outbox *services.OutboxService,
	watcher *services.ConnectivityWatcher,
	audit *services.AuditTrail,
	staff *models.StaffSession,
	feedback services.Feedback,
	location string,
	cooldown time.Duration,
) *CheckInHandler {
	return &CheckInHandler{
		app:      app,
		verifier: verifier,
		outbox:   outbox,
		watcher:  watcher,
		audit:    audit,
		staff:    staff,
		feedback: feedback,
		location: location,
		cooldown: cooldown,
	}
}

// OpenSession starts scanning for one event.
func (h *CheckInHandler) OpenSession(e *core.RequestEvent) error {
	var req struct {
		EventID int `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == 0 {
		return apis.NewBadRequestError("event_id is required", nil)
	}

	h.mu.Lock()
	if h.current != nil {
		h.current.Close()
	}
	h.verifier.ScanAgain()
	h.current = services.NewScanSession(req.EventID, h.location, services.ScanSessionDeps{
		Lock:     services.NewScanLock(h.cooldown),
		Verifier: h.verifier,
		Outbox:   h.outbox,
		Watcher:  h.watcher,
		Audit:    h.audit,
		Staff:    h.staff,
		Feedback: h.feedback,
	})
	session := h.current
	h.mu.Unlock()

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": session.EventID(),
		"status":   session.Status(),
	})
}

// CloseSession stops the active session. In-flight verifications run to
// completion but their results are discarded.
func (h *CheckInHandler) CloseSession(e *core.RequestEvent) error {
	h.mu.Lock()
	if h.current != nil {
		h.current.Close()
		h.current = nil
	}
	h.mu.Unlock()

	return e.JSON(http.StatusOK, map[string]string{"message": "Session closed"})
}

// SessionStatus reports the active session's state machine and last verdict.
func (h *CheckInHandler) SessionStatus(e *core.RequestEvent) error {
	session := h.activeSession()
	if session == nil {
		return e.JSON(http.StatusOK, map[string]any{"active": false})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"active":      true,
		"event_id":    session.EventID(),
		"status":      session.Status(),
		"last_result": session.LastResult(),
	})
}

// ScanAgain returns the session to scanning and lifts the scan lock.
func (h *CheckInHandler) ScanAgain(e *core.RequestEvent) error {
	session := h.activeSession()
	if session == nil {
		return apis.NewNotFoundError("No active scan session", nil)
	}

	session.ScanAgain()
	return e.JSON(http.StatusOK, map[string]any{"status": session.Status()})
}

// Scan runs one camera-decoded string through the pipeline.
func (h *CheckInHandler) Scan(e *core.RequestEvent) error {
	var req struct {
		Decoded string `json:"decoded"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Decoded == "" {
		return apis.NewBadRequestError("decoded is required", nil)
	}

	session := h.activeSession()
	if session == nil {
		return apis.NewNotFoundError("No active scan session", nil)
	}

	result, err := session.SubmitScan(e.Request.Context(), req.Decoded)
	return h.respond(e, "qr", result, err)
}

// Manual verifies a hand-typed ticket number.
func (h *CheckInHandler) Manual(e *core.RequestEvent) error {
	var req struct {
		TicketNumber string `json:"ticket_number"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TicketNumber == "" {
		return apis.NewBadRequestError("ticket_number is required", nil)
	}

	session := h.activeSession()
	if session == nil {
		return apis.NewNotFoundError("No active scan session", nil)
	}

	result, err := session.SubmitManual(e.Request.Context(), req.TicketNumber)
	return h.respond(e, "manual", result, err)
}

// RecentScans returns the newest audit rows for the station's scan history
// panel.
func (h *CheckInHandler) RecentScans(e *core.RequestEvent) error {
	limit := 50
	if v := e.Request.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.audit.Recent(e.Request.Context(), limit)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load scan history", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"scans": entries})
}

func (h *CheckInHandler) respond(e *core.RequestEvent, method string, result *models.VerificationResult, err error) error {
	switch {
	case err == nil:
		if result.Valid {
			monitoring.RecordVerification(method, "valid")
		} else {
			monitoring.RecordVerification(method, "invalid")
		}
		return e.JSON(http.StatusOK, result)

	case errors.Is(err, status.ErrQueuedOffline):
		monitoring.RecordVerification(method, "queued")
		return e.JSON(http.StatusAccepted, map[string]any{
			"queued":  true,
			"warning": "Offline: check your internet connection.",
		})

	case errors.Is(err, status.ErrScanSuppressed):
		return e.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Scan suppressed by cooldown",
		})

	case errors.Is(err, status.ErrMalformedScan):
		monitoring.RecordVerification(method, "malformed")
		return apis.NewBadRequestError("Malformed scan payload", err)

	case errors.Is(err, status.ErrSessionClosed):
		return e.JSON(http.StatusConflict, map[string]string{
			"error": "Scan session is closed",
		})

	case errors.Is(err, status.ErrSessionExpired):
		return apis.NewUnauthorizedError("Staff session expired, log in again", err)

	default:
		monitoring.RecordVerification(method, "error")
		return apis.NewBadRequestError("Verification failed", err)
	}
}

func (h *CheckInHandler) activeSession() *services.ScanSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}
