package handlers

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"checkin-station/models"
	"checkin-station/services"
)

func newRequestEvent(t *testing.T, method, path string, body io.Reader) (*core.RequestEvent, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.App = pocketbase.New()
	e.Request = req
	e.Response = rec

	return e, rec
}

func TestCheckInHandler_Scan_NoActiveSession_Simple(t *testing.T) {
	handler := &CheckInHandler{}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/checkin/scan",
		bytes.NewReader([]byte(`{"decoded":"{\"ticket_number\":\"TK-1\"}"}`)))

	err := handler.Scan(e)

	assert.Error(t, err)
}

func TestCheckInHandler_Scan_InvalidJSON_Simple(t *testing.T) {
	handler := &CheckInHandler{}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/checkin/scan",
		bytes.NewReader([]byte("invalid json")))

	err := handler.Scan(e)

	assert.Error(t, err)
}

func TestCheckInHandler_Manual_MissingTicketNumber_Simple(t *testing.T) {
	handler := &CheckInHandler{}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/checkin/manual",
		bytes.NewReader([]byte(`{}`)))

	err := handler.Manual(e)

	assert.Error(t, err)
}

func TestCheckInHandler_OpenSession_MissingEventID_Simple(t *testing.T) {
	handler := &CheckInHandler{}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/scan-sessions",
		bytes.NewReader([]byte(`{}`)))

	err := handler.OpenSession(e)

	assert.Error(t, err)
}

func TestCheckInHandler_SessionStatus_NoSession_Simple(t *testing.T) {
	handler := &CheckInHandler{}

	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/scan-sessions/current", nil)

	err := handler.SessionStatus(e)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)
}

func TestOutboxHandler_Requeue_WrongPIN_Simple(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.DefaultCost)
	assert.NoError(t, err)

	handler := &OutboxHandler{adminPINHash: string(hash)}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/outbox/requeue",
		bytes.NewReader([]byte(`{"item_id":"abc123","admin_pin":"0000"}`)))

	err = handler.Requeue(e)

	assert.Error(t, err)
}

func TestOutboxHandler_Requeue_DisabledWithoutHash_Simple(t *testing.T) {
	handler := &OutboxHandler{}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/outbox/requeue",
		bytes.NewReader([]byte(`{"item_id":"abc123","admin_pin":"1234"}`)))

	err := handler.Requeue(e)

	assert.Error(t, err)
}

func TestAuthHandler_Login_MissingCredentials_Simple(t *testing.T) {
	handler := &AuthHandler{session: models.NewStaffSession()}

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/auth/login",
		bytes.NewReader([]byte(`{"email":"staff@example.com"}`)))

	err := handler.Login(e)

	assert.Error(t, err)
}

func TestAuthHandler_Me_NotLoggedIn_Simple(t *testing.T) {
	handler := &AuthHandler{session: models.NewStaffSession()}

	e, _ := newRequestEvent(t, http.MethodGet, "/api/v1/auth/me", nil)

	err := handler.Me(e)

	assert.Error(t, err)
}

func TestOutboxHandler_Sync_Accepted_Simple(t *testing.T) {
	watcher := services.NewConnectivityWatcher(nil, 0)
	handler := &OutboxHandler{watcher: watcher}

	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/outbox/sync", nil)

	err := handler.Sync(e)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
