package models

import (
	"encoding/json"
	"fmt"
	"time"

	"checkin-station/internal/status"
)

// CheckInRequest is the payload sent to the ticketing authority for one
// check-in attempt. Exactly one of QRCodeData or TicketNumber identifies the
// ticket.
type CheckInRequest struct {
	QRCodeData      string `json:"qr_code_data,omitempty"`
	TicketNumber    string `json:"ticket_number,omitempty"`
	CheckInLocation string `json:"check_in_location"`
	Notes           string `json:"notes"`
	EventID         int    `json:"event_id"`
}

func (r CheckInRequest) Validate() error {
	if r.QRCodeData == "" && r.TicketNumber == "" {
		return fmt.Errorf("%w: missing ticket identifier", status.ErrMalformedScan)
	}
	if r.QRCodeData != "" && r.TicketNumber != "" {
		return fmt.Errorf("%w: both qr_code_data and ticket_number set", status.ErrMalformedScan)
	}
	return nil
}

// TicketRef returns whichever identifier is set, for logging and audit.
func (r CheckInRequest) TicketRef() string {
	if r.TicketNumber != "" {
		return r.TicketNumber
	}
	return r.QRCodeData
}

type QueueItemStatus string

const (
	QueueStatusPending QueueItemStatus = "pending"
	QueueStatusSynced  QueueItemStatus = "synced"
	QueueStatusFailed  QueueItemStatus = "failed"
)

// QueueItem is one durable outbox record. Attempts only grows; status moves
// pending -> synced or pending -> failed and both are terminal.
type QueueItem struct {
	ID         string          `json:"id"`
	Payload    CheckInRequest  `json:"payload"`
	Status     QueueItemStatus `json:"status"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// OutboxStats is the read-only view derived from the stored collection.
type OutboxStats struct {
	Pending    int        `json:"pending"`
	Synced     int        `json:"synced"`
	Failed     int        `json:"failed"`
	Syncing    bool       `json:"syncing"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// ScanEnvelope is the JSON carried inside a decoded QR code.
type ScanEnvelope struct {
	TicketNumber string `json:"ticket_number"`
}

// ParseScanEnvelope decodes the raw scanner output. A parse failure is a
// malformed-input error, never routed to the outbox.
func ParseScanEnvelope(raw string) (*ScanEnvelope, error) {
	var env ScanEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrMalformedScan, err)
	}
	if env.TicketNumber == "" {
		return nil, fmt.Errorf("%w: envelope missing ticket_number", status.ErrMalformedScan)
	}
	return &env, nil
}
