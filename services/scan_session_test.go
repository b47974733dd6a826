package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin-station/internal/status"
	"checkin-station/internal/verification"
	"checkin-station/models"
)

func newSession(client *fakeClient) (*ScanSession, *MemoryQueueStore, *ConnectivityWatcher) {
	store := NewMemoryQueueStore()
	watcher := NewConnectivityWatcher(client, time.Minute)
	outbox := NewOutboxService(store, client, watcher.Online, 3)
	verifier := NewVerifierService(client, NoopFeedback{})
	staff := models.NewStaffSession()
	staff.Adopt("staff-1", "Ada", "user", "a", "r")

	session := NewScanSession(7, "Gate A", ScanSessionDeps{
		Lock:     NewScanLock(50 * time.Millisecond),
		Verifier: verifier,
		Outbox:   outbox,
		Watcher:  watcher,
		Staff:    staff,
	})
	return session, store, watcher
}

const decodedScan = `{"ticket_number":"BV2024-AFRO-1234"}`

func TestScanSession_ValidScan(t *testing.T) {
	session, store, _ := newSession(acceptAll())

	result, err := session.SubmitScan(context.Background(), decodedScan)
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Equal(t, "BV2024-AFRO-1234", result.ScannedCode)
	assert.Equal(t, StatusSuccess, session.Status())
	assert.Equal(t, result, session.LastResult())

	items, _ := store.Load(context.Background())
	assert.Empty(t, items, "a definitive verdict is never queued")
}

func TestScanSession_BusinessRejectionNotQueued(t *testing.T) {
	snapshot := activeSnapshot()
	snapshot.IsUsed = true
	client := &fakeClient{steps: []fakeStep{{env: &verification.Envelope{Success: true, Data: &snapshot}}}}
	session, store, _ := newSession(client)

	result, err := session.SubmitScan(context.Background(), decodedScan)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Ticket already used", result.Reason)

	items, _ := store.Load(context.Background())
	assert.Empty(t, items, "a business rejection has a definitive answer and must not be retried")
}

func TestScanSession_TransportFailureQueues(t *testing.T) {
	session, store, watcher := newSession(failAll())

	result, err := session.SubmitScan(context.Background(), decodedScan)
	require.Error(t, err)
	assert.Nil(t, result, "no Valid/Invalid transition on transport failure")
	assert.ErrorIs(t, err, status.ErrQueuedOffline)
	assert.Equal(t, StatusScanning, session.Status())
	assert.False(t, watcher.Online())

	items, _ := store.Load(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, models.QueueStatusPending, items[0].Status)
	assert.Equal(t, 0, items[0].Attempts)
	assert.Equal(t, decodedScan, items[0].Payload.QRCodeData)
	assert.Equal(t, "Gate A", items[0].Payload.CheckInLocation)
	assert.Equal(t, 7, items[0].Payload.EventID)
}

func TestScanSession_MalformedScanNotQueued(t *testing.T) {
	client := acceptAll()
	session, store, _ := newSession(client)

	_, err := session.SubmitScan(context.Background(), "garbage-not-json")
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrMalformedScan)
	assert.Equal(t, 0, client.callCount(), "malformed payloads never reach the client")

	items, _ := store.Load(context.Background())
	assert.Empty(t, items)
}

func TestScanSession_DuplicateScanSuppressed(t *testing.T) {
	client := acceptAll()
	session, _, _ := newSession(client)

	_, err := session.SubmitScan(context.Background(), decodedScan)
	require.NoError(t, err)

	_, err = session.SubmitScan(context.Background(), decodedScan)
	assert.ErrorIs(t, err, status.ErrScanSuppressed)
	assert.Equal(t, 1, client.callCount(), "exactly one verification per physical scan")
}

func TestScanSession_ScanAgainAdmitsSameCode(t *testing.T) {
	client := acceptAll()
	session, _, _ := newSession(client)

	_, err := session.SubmitScan(context.Background(), decodedScan)
	require.NoError(t, err)

	session.ScanAgain()
	assert.Equal(t, StatusScanning, session.Status())

	_, err = session.SubmitScan(context.Background(), decodedScan)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount())
}

func TestScanSession_ManualEntry(t *testing.T) {
	client := acceptAll()
	session, _, _ := newSession(client)

	result, err := session.SubmitManual(context.Background(), "BV2024-AFRO-1234")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Manual entries bypass the scan lock.
	result, err = session.SubmitManual(context.Background(), "BV2024-AFRO-1234")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestScanSession_ClosedSessionRejectsScans(t *testing.T) {
	session, _, _ := newSession(acceptAll())

	session.Close()
	_, err := session.SubmitScan(context.Background(), decodedScan)
	assert.ErrorIs(t, err, status.ErrSessionClosed)
	_, err = session.SubmitManual(context.Background(), "X")
	assert.ErrorIs(t, err, status.ErrSessionClosed)
}

func TestScanSession_InFlightResultDiscardedAfterClose(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	snapshot := activeSnapshot()
	client := &blockingClient{
		started: started,
		release: release,
		env:     &verification.Envelope{Success: true, Data: &snapshot},
	}

	store := NewMemoryQueueStore()
	watcher := NewConnectivityWatcher(client, time.Minute)
	outbox := NewOutboxService(store, client, watcher.Online, 3)
	staff := models.NewStaffSession()
	session := NewScanSession(7, "Gate A", ScanSessionDeps{
		Lock:     NewScanLock(time.Hour),
		Verifier: NewVerifierService(client, NoopFeedback{}),
		Outbox:   outbox,
		Watcher:  watcher,
		Staff:    staff,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var result *models.VerificationResult
	var err error
	go func() {
		defer wg.Done()
		result, err = session.SubmitScan(context.Background(), decodedScan)
	}()

	<-started
	session.Close()
	close(release)
	wg.Wait()

	assert.Nil(t, result)
	assert.ErrorIs(t, err, status.ErrSessionClosed)
	assert.Nil(t, session.LastResult(), "a stale verdict must not surface")
}

func TestScanSession_RunConsumesStream(t *testing.T) {
	client := acceptAll()
	session, _, _ := newSession(client)

	scans := make(chan string, 4)
	// The decoder repeats the same code; only the first admission verifies.
	scans <- decodedScan
	scans <- decodedScan
	scans <- decodedScan
	close(scans)

	session.Run(context.Background(), scans)
	assert.Equal(t, 1, client.callCount())
}
