package status

import "errors"

var (
	// ErrTransport marks connectivity failures: the ticketing authority could
	// not be reached at all. Callers must never resolve it as an invalid
	// ticket; it routes the check-in to the offline outbox instead.
	ErrTransport = errors.New("verification: ticketing authority unreachable")

	// ErrMalformedScan marks decoded payloads that are not parseable. Not
	// queued, not retried.
	ErrMalformedScan = errors.New("scan: malformed payload")

	// ErrScanSuppressed is returned when the scan lock rejects a duplicate or
	// rapid-fire scan event.
	ErrScanSuppressed = errors.New("scan: suppressed by cooldown lock")

	// ErrQueuedOffline signals that the check-in reached no verdict and was
	// stored in the offline outbox for a later sync.
	ErrQueuedOffline = errors.New("checkin: queued for later sync")

	// ErrSessionClosed marks verification results that completed after their
	// scan session was closed; the result is discarded, not shown.
	ErrSessionClosed = errors.New("scan: session closed")

	ErrSessionExpired = errors.New("auth: session expired")
	ErrItemNotFound   = errors.New("outbox: item not found")
)

// IsTransport reports whether err is a connectivity failure rather than a
// business rejection from the authority.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
