package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"checkin-station/internal/status"
	"checkin-station/internal/verification"
	"checkin-station/models"
	"checkin-station/utils"
)

// DefaultMaxSyncAttempts is the per-item retry cap. Reaching it is terminal;
// failed items wait for an operator.
const DefaultMaxSyncAttempts = 3

// OutboxService is the durable local queue of check-ins that could not reach
// the authority. Items are appended when a verification hits a transport
// failure and replayed, through the same verification client, when a sync
// trigger fires.
type OutboxService struct {
	store       QueueStore
	client      verification.Client
	online      func() bool
	maxAttempts int
	now         func() time.Time

	syncing atomic.Bool

	// storeMu serializes every read-modify-write against the store. The
	// sync worker and the HTTP handlers are concurrent writers; an
	// unserialized save would overwrite items enqueued in between.
	storeMu sync.Mutex

	mu         sync.Mutex
	lastSyncAt *time.Time
	onSyncPass func(time.Duration)
}

func NewOutboxService(store QueueStore, client verification.Client, online func() bool, maxAttempts int) *OutboxService {
	if online == nil {
		online = func() bool { return true }
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxSyncAttempts
	}
	return &OutboxService{
		store:       store,
		client:      client,
		online:      online,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Enqueue appends a fresh pending item and persists immediately. It never
// touches the network.
func (s *OutboxService) Enqueue(ctx context.Context, payload models.CheckInRequest) (*models.QueueItem, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.enqueueLocked(ctx, payload)
}

// enqueueLocked appends a fresh pending item. Callers hold storeMu.
func (s *OutboxService) enqueueLocked(ctx context.Context, payload models.CheckInRequest) (*models.QueueItem, error) {
	id, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("outbox enqueue: %w", err)
	}

	item := models.QueueItem{
		ID:         id,
		Payload:    payload,
		Status:     models.QueueStatusPending,
		Attempts:   0,
		EnqueuedAt: s.now(),
	}

	items, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	items = append(items, item)
	if err := s.store.Save(ctx, items); err != nil {
		return nil, err
	}

	slog.Info("check-in queued offline", "item_id", item.ID, "ticket_ref", payload.TicketRef())
	return &item, nil
}

// Sync replays every pending item in stored order. It is a no-op when the
// station is offline or another pass is already in flight. Individual item
// failures do not stop the pass; the mutated collection is persisted once at
// the end.
func (s *OutboxService) Sync(ctx context.Context) error {
	if !s.online() {
		return nil
	}
	if !s.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.syncing.Store(false)

	passStart := s.now()
	defer func() {
		s.mu.Lock()
		observer := s.onSyncPass
		s.mu.Unlock()
		if observer != nil {
			observer(time.Since(passStart))
		}
	}()

	s.storeMu.Lock()
	items, err := s.store.Load(ctx)
	s.storeMu.Unlock()
	if err != nil {
		return err
	}

	// The pass works on a snapshot while replay calls are in flight; items
	// enqueued in the meantime are not in it. Mutations are merged back by
	// id under the lock so the final save cannot drop them.
	updates := make(map[string]models.QueueItem)
	for i := range items {
		if items[i].Status != models.QueueStatusPending {
			continue
		}

		env, err := s.client.VerifyTicket(ctx, items[i].Payload)
		if err == nil && env.Success {
			items[i].Status = models.QueueStatusSynced
			updates[items[i].ID] = items[i]
			continue
		}

		items[i].Attempts++
		if items[i].Attempts >= s.maxAttempts {
			items[i].Status = models.QueueStatusFailed
			slog.Warn("outbox item reached attempt cap",
				"item_id", items[i].ID,
				"attempts", items[i].Attempts,
			)
		}
		updates[items[i].ID] = items[i]
	}

	if len(updates) > 0 {
		if err := s.mergeUpdates(ctx, updates); err != nil {
			return err
		}
	}

	syncedAt := s.now()
	s.mu.Lock()
	s.lastSyncAt = &syncedAt
	s.mu.Unlock()

	return nil
}

// mergeUpdates rewrites the items a sync pass mutated into the current
// stored collection, leaving anything enqueued during the pass intact.
func (s *OutboxService) mergeUpdates(ctx context.Context, updates map[string]models.QueueItem) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	current, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	for i := range current {
		if updated, ok := updates[current[i].ID]; ok {
			current[i] = updated
		}
	}
	return s.store.Save(ctx, current)
}

// SetSyncObserver registers a callback invoked with the duration of every
// completed sync pass.
func (s *OutboxService) SetSyncObserver(fn func(time.Duration)) {
	s.mu.Lock()
	s.onSyncPass = fn
	s.mu.Unlock()
}

// Stats derives the read-only view of the stored collection.
func (s *OutboxService) Stats(ctx context.Context) (*models.OutboxStats, error) {
	items, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.OutboxStats{Syncing: s.syncing.Load()}
	for _, item := range items {
		switch item.Status {
		case models.QueueStatusPending:
			stats.Pending++
		case models.QueueStatusSynced:
			stats.Synced++
		case models.QueueStatusFailed:
			stats.Failed++
		}
	}

	s.mu.Lock()
	stats.LastSyncAt = s.lastSyncAt
	s.mu.Unlock()

	return stats, nil
}

// Items returns a copy of the stored collection for the queue view.
func (s *OutboxService) Items(ctx context.Context) ([]models.QueueItem, error) {
	return s.store.Load(ctx)
}

// RequeueFailed copies a failed item's payload into a fresh pending item.
// The failed record itself is never mutated; terminal states stay terminal.
// This is the operator's manual recovery path.
func (s *OutboxService) RequeueFailed(ctx context.Context, itemID string) (*models.QueueItem, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	items, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.ID != itemID {
			continue
		}
		if item.Status != models.QueueStatusFailed {
			return nil, fmt.Errorf("outbox requeue: item %s is %s, only failed items can be requeued", itemID, item.Status)
		}
		return s.enqueueLocked(ctx, item.Payload)
	}
	return nil, fmt.Errorf("%w: %s", status.ErrItemNotFound, itemID)
}

// Run consumes sync triggers until ctx is cancelled. Triggers arriving while
// a pass is in flight collapse into the in-flight guard inside Sync.
func (s *OutboxService) Run(ctx context.Context, triggers <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-triggers:
			if !ok {
				return
			}
			if err := s.Sync(ctx); err != nil {
				slog.Error("outbox sync failed", "error", err)
			}
		}
	}
}
