package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"checkin-station/internal/status"
	"checkin-station/internal/verification"
	"checkin-station/models"
)

// fakeClient scripts the verification client. Each VerifyTicket call pops the
// next step; the last step repeats.
type fakeClient struct {
	mu    sync.Mutex
	steps []fakeStep
	calls []models.CheckInRequest

	pingErr error
}

type fakeStep struct {
	env *verification.Envelope
	err error
}

func transportErr() error {
	return fmt.Errorf("%w: dial tcp: connection refused", status.ErrTransport)
}

func acceptAll() *fakeClient {
	snapshot := activeSnapshot()
	return &fakeClient{steps: []fakeStep{{env: &verification.Envelope{Success: true, Data: &snapshot}}}}
}

func rejectAll(message string) *fakeClient {
	return &fakeClient{steps: []fakeStep{{env: &verification.Envelope{Success: false, Message: message}}}}
}

func failAll() *fakeClient {
	return &fakeClient{steps: []fakeStep{{err: transportErr()}}}
}

func activeSnapshot() models.TicketSnapshot {
	now := time.Now()
	return models.TicketSnapshot{
		TicketNumber: "BV2024-AFRO-1234",
		Status:       "active",
		IsUsed:       false,
		QRCode:       models.QRCodeInfo{IsActive: true},
		Event: models.EventWindow{
			StartDate: now.Add(-2 * time.Hour),
			EndDate:   now.Add(2 * time.Hour),
		},
		TicketType: models.TicketTypeInfo{Name: "GA", IsActive: true},
	}
}

func (f *fakeClient) VerifyTicket(ctx context.Context, payload models.CheckInRequest) (*verification.Envelope, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, payload)

	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	return step.env, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) Login(ctx context.Context, email, password string) error { return nil }
func (f *fakeClient) Logout()                                                 {}

func (f *fakeClient) ListEvents(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeClient) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// countingFeedback counts side-effect invocations.
type countingFeedback struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (c *countingFeedback) Success(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes++
}

func (c *countingFeedback) Failure(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

func (c *countingFeedback) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successes, c.failures
}
