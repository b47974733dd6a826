package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"checkin-station/internal/status"
	"checkin-station/models"
)

// ScanSession wires one event's scan stream through the lock, the verifier
// and the outbox. It is the single consumer of the decoded-scan source: the
// lock's single-flight property holds because admissions only happen here.
type ScanSession struct {
	eventID  int
	location string

	lock     *ScanLock
	verifier *VerifierService
	outbox   *OutboxService
	watcher  *ConnectivityWatcher
	audit    *AuditTrail
	staff    *models.StaffSession
	feedback Feedback

	closed atomic.Bool
	// generation identifies the session epoch; a verification that finishes
	// after Close (or a later epoch) is discarded, not shown.
	generation atomic.Int64

	mu         sync.Mutex
	lastResult *models.VerificationResult
}

type ScanSessionDeps struct {
	Lock     *ScanLock
	Verifier *VerifierService
	Outbox   *OutboxService
	Watcher  *ConnectivityWatcher
	Audit    *AuditTrail
	Staff    *models.StaffSession
	Feedback Feedback
}

func NewScanSession(eventID int, location string, deps ScanSessionDeps) *ScanSession {
	feedback := deps.Feedback
	if feedback == nil {
		feedback = NoopFeedback{}
	}
	return &ScanSession{
		eventID:  eventID,
		location: location,
		lock:     deps.Lock,
		verifier: deps.Verifier,
		outbox:   deps.Outbox,
		watcher:  deps.Watcher,
		audit:    deps.Audit,
		staff:    deps.Staff,
		feedback: feedback,
	}
}

// Run consumes the decoded-scan stream until it closes or ctx is cancelled.
func (s *ScanSession) Run(ctx context.Context, scans <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case decoded, ok := <-scans:
			if !ok {
				return
			}
			if _, err := s.SubmitScan(ctx, decoded); err != nil {
				if errors.Is(err, status.ErrScanSuppressed) {
					continue
				}
				slog.Info("scan not verified", "event_id", s.eventID, "error", err)
			}
		}
	}
}

// SubmitScan runs one camera-decoded string through the full pipeline:
// admission, envelope parse, verification, and failure routing. The returned
// error classifies what happened when there is no verdict: suppressed scans,
// malformed payloads, offline queuing, or a closed session.
func (s *ScanSession) SubmitScan(ctx context.Context, decoded string) (*models.VerificationResult, error) {
	if s.closed.Load() {
		return nil, status.ErrSessionClosed
	}
	if !s.lock.CanProcess(decoded) {
		return nil, status.ErrScanSuppressed
	}

	env, err := models.ParseScanEnvelope(decoded)
	if err != nil {
		// Malformed input fails fast: feedback fires, nothing is queued.
		s.feedback.Failure(ctx)
		s.recordAudit(ctx, decoded, "qr", "malformed", "malformed payload")
		return nil, err
	}

	payload := models.CheckInRequest{
		QRCodeData:      decoded,
		CheckInLocation: s.location,
		EventID:         s.eventID,
	}
	result, err := s.verify(ctx, payload, "qr")
	if result != nil {
		result.ScannedCode = env.TicketNumber
	}
	return result, err
}

// SubmitManual verifies a hand-typed ticket number. Manual entries bypass the
// scan lock; the form is its own rate limit.
func (s *ScanSession) SubmitManual(ctx context.Context, ticketNumber string) (*models.VerificationResult, error) {
	if s.closed.Load() {
		return nil, status.ErrSessionClosed
	}

	payload := models.CheckInRequest{
		TicketNumber:    ticketNumber,
		CheckInLocation: s.location,
		EventID:         s.eventID,
	}
	return s.verify(ctx, payload, "manual")
}

func (s *ScanSession) verify(ctx context.Context, payload models.CheckInRequest, method string) (*models.VerificationResult, error) {
	gen := s.generation.Load()

	result, err := s.verifier.Verify(ctx, payload)

	// The session may have closed while the round trip was in flight; the
	// verdict is stale and must not surface.
	if s.closed.Load() || s.generation.Load() != gen {
		return nil, status.ErrSessionClosed
	}

	if err != nil {
		return nil, s.routeFailure(ctx, payload, method, err)
	}

	if result.Valid {
		s.recordAudit(ctx, payload.TicketRef(), method, "valid", "")
	} else {
		s.recordAudit(ctx, payload.TicketRef(), method, "invalid", result.Reason)
	}

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	return result, nil
}

// routeFailure classifies a no-verdict error. Transport failures go to the
// outbox; everything else is definitive and surfaces directly.
func (s *ScanSession) routeFailure(ctx context.Context, payload models.CheckInRequest, method string, err error) error {
	if status.IsTransport(err) {
		if s.watcher != nil {
			s.watcher.SetOnline(false)
		}
		if _, qErr := s.outbox.Enqueue(ctx, payload); qErr != nil {
			slog.Error("failed to queue offline check-in", "error", qErr)
			return fmt.Errorf("queueing offline check-in: %w", qErr)
		}
		s.recordAudit(ctx, payload.TicketRef(), method, "queued", "offline")
		return fmt.Errorf("%w: %v", status.ErrQueuedOffline, err)
	}

	// The server was reachable and answered something unexpected (for
	// example an expired session). Unlock so the operator can retry at once.
	s.lock.Reset()
	s.recordAudit(ctx, payload.TicketRef(), method, "error", err.Error())
	return err
}

func (s *ScanSession) recordAudit(ctx context.Context, ticketRef, method, result, reason string) {
	if s.audit == nil {
		return
	}
	entry := models.ScanAuditEntry{
		StaffID:   s.staff.StaffID(),
		TicketRef: ticketRef,
		Method:    method,
		Result:    result,
		Reason:    reason,
		Location:  s.location,
		Offline:   s.watcher != nil && !s.watcher.Online(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		slog.Warn("scan audit write failed", "error", err)
	}
}

// ScanAgain returns to the scanning state and lifts the lock, admitting even
// the previous code immediately.
func (s *ScanSession) ScanAgain() {
	s.generation.Add(1)
	s.verifier.ScanAgain()
	s.lock.Reset()
}

// Close stops future admissions. An in-flight verification runs to
// completion but its result is discarded.
func (s *ScanSession) Close() {
	s.closed.Store(true)
	s.generation.Add(1)
	s.lock.Reset()
}

func (s *ScanSession) Closed() bool {
	return s.closed.Load()
}

func (s *ScanSession) Status() ScanStatus {
	return s.verifier.Status()
}

// LastResult returns the most recent surfaced verdict, if any.
func (s *ScanSession) LastResult() *models.VerificationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

func (s *ScanSession) EventID() int { return s.eventID }
