package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"

	"checkin-station/models"
	"checkin-station/utils"
)

// AuditTrail records every scan outcome in the station's local scan_audit
// table so staff can review recent activity, including what happened while
// offline.
type AuditTrail struct {
	db dbx.Builder
}

func NewAuditTrail(db dbx.Builder) *AuditTrail {
	return &AuditTrail{db: db}
}

type auditRow struct {
	ID        string `db:"id"`
	StaffID   string `db:"staff_id"`
	TicketRef string `db:"ticket_ref"`
	Method    string `db:"method"`
	Result    string `db:"result"`
	Reason    string `db:"reason"`
	Location  string `db:"location"`
	Offline   bool   `db:"offline"`
	Created   string `db:"created"`
}

// Record appends one entry. Audit write failures are returned so callers can
// log them, but they never veto a check-in.
func (a *AuditTrail) Record(ctx context.Context, entry models.ScanAuditEntry) error {
	id := entry.ID
	if id == "" {
		var err error
		if id, err = utils.GenerateCode(8); err != nil {
			return fmt.Errorf("audit record: %w", err)
		}
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := a.db.Insert("scan_audit", dbx.Params{
		"id":         id,
		"staff_id":   entry.StaffID,
		"ticket_ref": entry.TicketRef,
		"method":     entry.Method,
		"result":     entry.Result,
		"reason":     entry.Reason,
		"location":   entry.Location,
		"offline":    entry.Offline,
		"created":    ts.UTC().Format(time.RFC3339),
		"updated":    ts.UTC().Format(time.RFC3339),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("audit record: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (a *AuditTrail) Recent(ctx context.Context, limit int) ([]models.ScanAuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []auditRow
	err := a.db.Select("id", "staff_id", "ticket_ref", "method", "result", "reason", "location", "offline", "created").
		From("scan_audit").
		OrderBy("created DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("audit recent: %w", err)
	}

	entries := make([]models.ScanAuditEntry, 0, len(rows))
	for _, row := range rows {
		ts, _ := time.Parse(time.RFC3339, row.Created)
		entries = append(entries, models.ScanAuditEntry{
			ID:        row.ID,
			StaffID:   row.StaffID,
			TicketRef: row.TicketRef,
			Method:    row.Method,
			Result:    row.Result,
			Reason:    row.Reason,
			Location:  row.Location,
			Offline:   row.Offline,
			Timestamp: ts,
		})
	}
	return entries, nil
}
