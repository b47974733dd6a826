package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin-station/internal/status"
	"checkin-station/internal/verification"
	"checkin-station/models"
)

func verifierWith(client *fakeClient) (*VerifierService, *countingFeedback) {
	feedback := &countingFeedback{}
	return NewVerifierService(client, feedback), feedback
}

func gateRequest() models.CheckInRequest {
	return models.CheckInRequest{
		TicketNumber:    "BV2024-AFRO-1234",
		CheckInLocation: "Gate A",
		EventID:         7,
	}
}

func TestVerifier_ValidTicket(t *testing.T) {
	service, feedback := verifierWith(acceptAll())

	result, err := service.Verify(context.Background(), gateRequest())
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotNil(t, result.Ticket)
	assert.Equal(t, "BV2024-AFRO-1234", result.Ticket.TicketNumber)
	assert.Empty(t, result.Reason)
	assert.Equal(t, StatusSuccess, service.Status())

	successes, failures := feedback.counts()
	assert.Equal(t, 1, successes, "exactly one success side effect")
	assert.Equal(t, 0, failures)
}

func TestVerifier_RuleChain(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*models.TicketSnapshot)
		reason string
	}{
		{
			name:   "inactive ticket",
			mutate: func(s *models.TicketSnapshot) { s.Status = "inactive" },
			reason: "Ticket is not active",
		},
		{
			name:   "already used",
			mutate: func(s *models.TicketSnapshot) { s.IsUsed = true },
			reason: "Ticket already used",
		},
		{
			name:   "inactive qr code",
			mutate: func(s *models.TicketSnapshot) { s.QRCode.IsActive = false },
			reason: "QR code is inactive",
		},
		{
			name: "event not started",
			mutate: func(s *models.TicketSnapshot) {
				s.Event.StartDate = now.Add(time.Hour)
				s.Event.EndDate = now.Add(2 * time.Hour)
			},
			reason: "Event is not active",
		},
		{
			name: "event over",
			mutate: func(s *models.TicketSnapshot) {
				s.Event.StartDate = now.Add(-2 * time.Hour)
				s.Event.EndDate = now.Add(-time.Hour)
			},
			reason: "Event is not active",
		},
		{
			name:   "inactive ticket type",
			mutate: func(s *models.TicketSnapshot) { s.TicketType.IsActive = false },
			reason: "Ticket type inactive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := activeSnapshot()
			tt.mutate(&snapshot)
			client := &fakeClient{steps: []fakeStep{{env: &verification.Envelope{Success: true, Data: &snapshot}}}}
			service, feedback := verifierWith(client)

			result, err := service.Verify(context.Background(), gateRequest())
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.Nil(t, result.Ticket)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, StatusError, service.Status())

			successes, failures := feedback.counts()
			assert.Equal(t, 0, successes)
			assert.Equal(t, 1, failures, "exactly one failure side effect")
		})
	}
}

func TestVerifier_RuleOrderPrecedence(t *testing.T) {
	// Inactive AND used: the status rule fires first.
	snapshot := activeSnapshot()
	snapshot.Status = "inactive"
	snapshot.IsUsed = true
	client := &fakeClient{steps: []fakeStep{{env: &verification.Envelope{Success: true, Data: &snapshot}}}}
	service, _ := verifierWith(client)

	result, err := service.Verify(context.Background(), gateRequest())
	require.NoError(t, err)
	assert.Equal(t, "Ticket is not active", result.Reason)
}

func TestVerifier_EnvelopeFailureUsesServerMessage(t *testing.T) {
	service, _ := verifierWith(rejectAll("Ticket verification failed: unknown ticket"))

	result, err := service.Verify(context.Background(), gateRequest())
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Ticket verification failed: unknown ticket", result.Reason)
}

func TestVerifier_EnvelopeFailureDefaultMessage(t *testing.T) {
	service, _ := verifierWith(rejectAll(""))

	result, err := service.Verify(context.Background(), gateRequest())
	require.NoError(t, err)
	assert.Equal(t, "Verification failed", result.Reason)
}

func TestVerifier_TransportFailurePropagates(t *testing.T) {
	service, feedback := verifierWith(failAll())

	result, err := service.Verify(context.Background(), gateRequest())
	require.Error(t, err)
	assert.Nil(t, result, "a transport failure must never become an Invalid result")
	assert.True(t, status.IsTransport(err))
	assert.Equal(t, StatusScanning, service.Status(), "state stays Scanning on transport failure")

	_, failures := feedback.counts()
	assert.Equal(t, 1, failures)
}

func TestVerifier_ScanAgainResetsState(t *testing.T) {
	service, _ := verifierWith(acceptAll())

	_, err := service.Verify(context.Background(), gateRequest())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, service.Status())

	service.ScanAgain()
	assert.Equal(t, StatusScanning, service.Status())
}
