package services

import (
	"context"
	"sync"
	"time"

	"checkin-station/internal/verification"
	"checkin-station/models"
)

// ScanStatus is the orchestrator's user-facing state. It moves from Scanning
// to Success or Error on a verdict and back to Scanning only through an
// explicit "scan again".
type ScanStatus string

const (
	StatusScanning ScanStatus = "scanning"
	StatusSuccess  ScanStatus = "success"
	StatusError    ScanStatus = "error"
)

// VerifierService runs the ticket validity rule chain against the authority's
// snapshot. The rule order is a correctness contract: the first failing rule
// decides the reason.
type VerifierService struct {
	client   verification.Client
	feedback Feedback
	now      func() time.Time

	mu     sync.Mutex
	status ScanStatus
}

func NewVerifierService(client verification.Client, feedback Feedback) *VerifierService {
	if feedback == nil {
		feedback = NoopFeedback{}
	}
	return &VerifierService{
		client:   client,
		feedback: feedback,
		now:      time.Now,
		status:   StatusScanning,
	}
}

// Verify submits the request and applies the rule chain. A transport failure
// propagates as an error with the status left at Scanning; every reachable
// outcome, valid or not, returns a VerificationResult. Exactly one feedback
// side effect fires per call.
func (s *VerifierService) Verify(ctx context.Context, req models.CheckInRequest) (*models.VerificationResult, error) {
	env, err := s.client.VerifyTicket(ctx, req)
	if err != nil {
		s.feedback.Failure(ctx)
		return nil, err
	}

	if !env.Success || env.Data == nil {
		message := env.Message
		if message == "" {
			message = "Verification failed"
		}
		return s.fail(ctx, req, message), nil
	}

	ticket := env.Data

	if ticket.Status != "active" {
		return s.fail(ctx, req, "Ticket is not active"), nil
	}
	if ticket.IsUsed {
		return s.fail(ctx, req, "Ticket already used"), nil
	}
	if !ticket.QRCode.IsActive {
		return s.fail(ctx, req, "QR code is inactive"), nil
	}

	now := s.now()
	if now.Before(ticket.Event.StartDate) || now.After(ticket.Event.EndDate) {
		return s.fail(ctx, req, "Event is not active"), nil
	}

	if !ticket.TicketType.IsActive {
		return s.fail(ctx, req, "Ticket type inactive"), nil
	}

	s.setStatus(StatusSuccess)
	s.feedback.Success(ctx)
	return &models.VerificationResult{
		Valid:       true,
		Ticket:      ticket,
		ScannedCode: req.TicketRef(),
	}, nil
}

func (s *VerifierService) fail(ctx context.Context, req models.CheckInRequest, reason string) *models.VerificationResult {
	s.setStatus(StatusError)
	s.feedback.Failure(ctx)
	return &models.VerificationResult{
		Valid:       false,
		Reason:      reason,
		ScannedCode: req.TicketRef(),
	}
}

func (s *VerifierService) Status() ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ScanAgain returns the orchestrator to Scanning. The caller also resets the
// scan lock.
func (s *VerifierService) ScanAgain() {
	s.setStatus(StatusScanning)
}

func (s *VerifierService) setStatus(st ScanStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
