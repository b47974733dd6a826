package services

import (
	"context"
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// Feedback is the fire-and-forget side-effect channel for scan outcomes (the
// station dashboard's audio/visual cue). Implementations must never surface
// their own failures to the caller.
type Feedback interface {
	Success(ctx context.Context)
	Failure(ctx context.Context)
}

// PubNubFeedback publishes scan outcomes to the station's monitor channel.
type PubNubFeedback struct {
	pn      *pubnub.PubNub
	channel string
}

func NewPubNubFeedback(pn *pubnub.PubNub, stationID string) *PubNubFeedback {
	return &PubNubFeedback{
		pn:      pn,
		channel: "station-" + stationID,
	}
}

func (f *PubNubFeedback) Success(ctx context.Context) {
	f.publish("success")
}

func (f *PubNubFeedback) Failure(ctx context.Context) {
	f.publish("failure")
}

func (f *PubNubFeedback) publish(result string) {
	_, pnStatus, err := f.pn.Publish().
		Channel(f.channel).
		Message(map[string]any{
			"type":   "scan_feedback",
			"result": result,
		}).
		Execute()

	// Best effort: a dead dashboard must not fail a check-in.
	if pubErr := publishError(err, pnStatus); pubErr != nil {
		slog.Debug("scan feedback publish failed", "channel", f.channel, "error", pubErr)
	}
}

// publishError folds the transport error and the status-level error into one;
// PubNub reports request failures on the status object, not as a returned
// error.
func publishError(err error, pnStatus pubnub.StatusResponse) error {
	if err != nil {
		return err
	}
	return pnStatus.Error
}

// NoopFeedback is used in tests and when PubNub is not configured.
type NoopFeedback struct{}

func (NoopFeedback) Success(ctx context.Context) {}
func (NoopFeedback) Failure(ctx context.Context) {}
