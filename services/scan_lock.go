package services

import (
	"sync"
	"time"
)

// ScanLock rate-limits and deduplicates raw decoded strings. A camera decoder
// emits the same code many times per second; exactly one verification attempt
// is admitted per physical scan. The lock is global: while one verification
// is outstanding no other code is admitted either (single-flight).
type ScanLock struct {
	mu        sync.Mutex
	locked    bool
	lastValue string
	hasLast   bool
	cooldown  time.Duration
	timer     *time.Timer
	// gen identifies the current admission. A timer that already fired but
	// has not run yet survives Stop; tying each expiry to its admission
	// keeps such a stale timer from unlocking a later one early.
	gen uint64
}

// DefaultScanCooldown mirrors the decoder's retry cadence.
const DefaultScanCooldown = 2 * time.Second

func NewScanLock(cooldown time.Duration) *ScanLock {
	if cooldown <= 0 {
		cooldown = DefaultScanCooldown
	}
	return &ScanLock{cooldown: cooldown}
}

// CanProcess reports whether value may start a verification. Admitting a
// value locks out all further admissions until the cooldown elapses or
// Reset is called.
func (l *ScanLock) CanProcess(value string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return false
	}
	if l.hasLast && l.lastValue == value {
		return false
	}

	l.locked = true
	l.lastValue = value
	l.hasLast = true

	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(l.cooldown, func() { l.expire(gen) })

	return true
}

func (l *ScanLock) expire(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	l.locked = false
	l.hasLast = false
	l.lastValue = ""
}

// Reset unlocks immediately, cancelling any pending cooldown. Called on
// "scan again" and when a session closes.
func (l *ScanLock) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
	l.locked = false
	l.hasLast = false
	l.lastValue = ""
}

func (l *ScanLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}
