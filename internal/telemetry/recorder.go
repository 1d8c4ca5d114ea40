package telemetry

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/capability"
	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/storage"
	"media-client-bridge/internal/types"
)

// Recorder persists playback decision events into the local queue. Recording
// never blocks or fails a playback decision; errors are logged and dropped.
type Recorder struct {
	store    *storage.Store
	logger   *logrus.Entry
	callback types.DecisionCallback
}

// NewRecorder creates a decision event recorder
func NewRecorder(store *storage.Store, logger *logrus.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logging.NewComponentLogger(logger, "telemetry"),
	}
}

// SetCallback registers a callback invoked for every recorded decision
func (r *Recorder) SetCallback(cb types.DecisionCallback) {
	r.callback = cb
}

// RecordDecision queues one analyzer decision for publishing
func (r *Recorder) RecordDecision(itemID string, stream capability.StreamDescriptor, analysis capability.DirectPlayAnalysis) {
	event := types.DecisionEvent{
		EventID:       uuid.New().String(),
		ItemID:        itemID,
		Container:     stream.Container,
		VideoCodec:    stream.VideoCodec,
		AudioCodec:    stream.AudioCodec,
		Width:         stream.Width,
		Height:        stream.Height,
		Bitrate:       stream.Bitrate,
		CanDirectPlay: analysis.CanDirectPlay,
		Score:         analysis.Score,
		Issues:        analysis.Issues,
		Timestamp:     time.Now(),
	}

	if err := r.store.InsertDecision(&event); err != nil {
		r.logger.WithError(err).WithField("event_id", event.EventID).
			Error("Failed to queue decision event")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"event_id":        event.EventID,
		"container":       event.Container,
		"can_direct_play": event.CanDirectPlay,
		"score":           event.Score,
	}).Debug("Decision event queued")

	if r.callback != nil {
		r.callback(event)
	}
}

// PendingCount returns the number of events waiting to be published
func (r *Recorder) PendingCount() (int, error) {
	return r.store.PendingDecisionCount()
}
