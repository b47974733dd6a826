package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketSnapshot is the authority's view of a ticket at verification time.
// Consumed read-only; the station never writes ticket state.
type TicketSnapshot struct {
	TicketNumber string         `json:"ticket_number"`
	Status       string         `json:"status"` // active, inactive, revoked
	IsUsed       bool           `json:"is_used"`
	HolderName   string         `json:"holder_name"`
	QRCode       QRCodeInfo     `json:"qr_code"`
	Event        EventWindow    `json:"event"`
	TicketType   TicketTypeInfo `json:"ticket_type"`
}

type QRCodeInfo struct {
	IsActive bool `json:"is_active"`
}

type EventWindow struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type TicketTypeInfo struct {
	Name     string          `json:"name"`
	IsActive bool            `json:"is_active"`
	Price    decimal.Decimal `json:"price"`
}

// VerificationResult is the tagged outcome of one verification. Ticket is set
// only when Valid is true; Reason only when it is false.
type VerificationResult struct {
	Valid       bool            `json:"valid"`
	Ticket      *TicketSnapshot `json:"ticket,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	ScannedCode string          `json:"scanned_code,omitempty"`
}

// Event is the listing shape returned by the authority's event browse API.
type Event struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Location   string    `json:"location"`
	Category   string    `json:"category"`
	CoverImage string    `json:"cover_image"`
}

// ScanAuditEntry is one row of the station's local scan trail.
type ScanAuditEntry struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	TicketRef string    `json:"ticket_ref"`
	Method    string    `json:"method"` // qr, manual
	Result    string    `json:"result"` // success, error, queued
	Reason    string    `json:"reason,omitempty"`
	Location  string    `json:"location"`
	Offline   bool      `json:"offline"`
	Timestamp time.Time `json:"timestamp"`
}
