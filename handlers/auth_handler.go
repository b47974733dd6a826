package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"checkin-station/internal/verification"
	"checkin-station/models"
)

// AuthHandler proxies staff login to the ticketing authority and keeps the
// station's shared staff session.
type AuthHandler struct {
	client  verification.Client
	session *models.StaffSession
}

func NewAuthHandler(client verification.Client, session *models.StaffSession) *AuthHandler {
	return &AuthHandler{client: client, session: session}
}

func (h *AuthHandler) Login(e *core.RequestEvent) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Email == "" || req.Password == "" {
		return apis.NewBadRequestError("email and password are required", nil)
	}

	if err := h.client.Login(e.Request.Context(), req.Email, req.Password); err != nil {
		return apis.NewUnauthorizedError("Login failed", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"staff_id": h.session.StaffID(),
		"name":     h.session.StaffName(),
		"role":     h.session.Role(),
	})
}

func (h *AuthHandler) Logout(e *core.RequestEvent) error {
	h.client.Logout()
	return e.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) Me(e *core.RequestEvent) error {
	if !h.session.Authenticated() {
		return apis.NewUnauthorizedError("Not logged in", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"staff_id": h.session.StaffID(),
		"name":     h.session.StaffName(),
		"role":     h.session.Role(),
	})
}
