package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"

	"checkin-station/services"
)

// OutboxHandler exposes the offline queue: stats for the station dashboard,
// the item list, a manual sync trigger, and admin-gated requeue of failed
// items.
type OutboxHandler struct {
	outbox       *services.OutboxService
	watcher      *services.ConnectivityWatcher
	adminPINHash string
}

func NewOutboxHandler(outbox *services.OutboxService, watcher *services.ConnectivityWatcher, adminPINHash string) *OutboxHandler {
	return &OutboxHandler{
		outbox:       outbox,
		watcher:      watcher,
		adminPINHash: adminPINHash,
	}
}

func (h *OutboxHandler) Stats(e *core.RequestEvent) error {
	stats, err := h.outbox.Stats(e.Request.Context())
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load outbox stats", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"online": h.watcher.Online(),
		"stats":  stats,
	})
}

func (h *OutboxHandler) Items(e *core.RequestEvent) error {
	items, err := h.outbox.Items(e.Request.Context())
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load outbox items", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"items": items})
}

// Sync requests a sync pass. The pass runs on the outbox worker; an already
// running pass absorbs the request.
func (h *OutboxHandler) Sync(e *core.RequestEvent) error {
	h.watcher.Notify()
	return e.JSON(http.StatusAccepted, map[string]string{"message": "Sync requested"})
}

// Requeue copies a failed item's payload back into the queue as a fresh
// pending item. Requires the station admin PIN.
func (h *OutboxHandler) Requeue(e *core.RequestEvent) error {
	var req struct {
		ItemID   string `json:"item_id"`
		AdminPIN string `json:"admin_pin"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ItemID == "" {
		return apis.NewBadRequestError("item_id is required", nil)
	}

	if h.adminPINHash == "" {
		return apis.NewForbiddenError("Requeue is disabled on this station", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.adminPINHash), []byte(req.AdminPIN)); err != nil {
		return apis.NewForbiddenError("Invalid admin PIN", nil)
	}

	item, err := h.outbox.RequeueFailed(e.Request.Context(), req.ItemID)
	if err != nil {
		return apis.NewBadRequestError("Failed to requeue item", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"item": item})
}
