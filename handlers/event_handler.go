package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"checkin-station/internal/verification"
	"checkin-station/models"
)

// EventHandler serves the event browse surface. Listings are cached in Redis
// so a flapping uplink does not blank the event picker between probes.
type EventHandler struct {
	client   verification.Client
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewEventHandler(client verification.Client, redisClient *redis.Client, cacheTTL time.Duration) *EventHandler {
	return &EventHandler{
		client:   client,
		redis:    redisClient,
		cacheTTL: cacheTTL,
	}
}

func (h *EventHandler) List(e *core.RequestEvent) error {
	start, end, err := parseEventRange(e)
	if err != nil {
		return apis.NewBadRequestError("Invalid date range", err)
	}

	cacheKey := "events:" + start.Format("2006-01-02") + ":" + end.Format("2006-01-02")

	ctx := e.Request.Context()
	if cached, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var events []models.Event
		if json.Unmarshal([]byte(cached), &events) == nil {
			return e.JSON(http.StatusOK, map[string]any{"events": events, "cached": true})
		}
	}

	events, err := h.client.ListEvents(ctx, start, end)
	if err != nil {
		// fall back to a stale entry if the authority is unreachable
		if stale, staleErr := h.redis.Get(ctx, "stale:"+cacheKey).Result(); staleErr == nil {
			var cached []models.Event
			if json.Unmarshal([]byte(stale), &cached) == nil {
				return e.JSON(http.StatusOK, map[string]any{"events": cached, "cached": true})
			}
		}
		return apis.NewApiError(http.StatusBadGateway, "Failed to list events", err)
	}

	if blob, err := json.Marshal(events); err == nil {
		h.redis.Set(ctx, cacheKey, blob, h.cacheTTL)
		h.redis.Set(ctx, "stale:"+cacheKey, blob, 24*time.Hour)
	}

	return e.JSON(http.StatusOK, map[string]any{"events": events, "cached": false})
}

func parseEventRange(e *core.RequestEvent) (time.Time, time.Time, error) {
	now := time.Now()
	start := now
	end := now.AddDate(0, 1, 0)

	q := e.Request.URL.Query()
	if v := q.Get("start_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}
	if v := q.Get("end_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}

	return start, end, nil
}
