package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/config"
	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/storage"
)

// Publisher drains queued decision events to a Redis list in batches. Events
// that exhaust their retry budget move to a dead-letter list so a poison
// event cannot wedge the queue.
type Publisher struct {
	store  *storage.Store
	client *redis.Client
	config config.TelemetryConfig
	logger *logrus.Entry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPublisher creates a Redis-backed decision publisher and verifies the
// connection before returning
func NewPublisher(store *storage.Store, cfg config.TelemetryConfig, logger *logrus.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Publisher{
		store:  store,
		client: client,
		config: cfg,
		logger: logging.NewComponentLogger(logger, "telemetry"),
	}, nil
}

// Start launches the background publish loop
func (p *Publisher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		interval := time.Duration(p.config.FlushInterval) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Flush(ctx); err != nil {
					p.logger.WithError(err).Warn("Decision flush failed")
				}
			}
		}
	}()

	p.logger.WithFields(logrus.Fields{
		"queue":          p.config.QueueName,
		"batch_size":     p.config.BatchSize,
		"flush_interval": p.config.FlushInterval,
	}).Info("Decision publisher started")
}

// Stop shuts down the publish loop and closes the Redis connection
func (p *Publisher) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return p.client.Close()
}

// Flush publishes one batch of pending decision events. Successfully pushed
// events are marked published; failed events accumulate retries until they
// hit the budget and move to the dead-letter list.
func (p *Publisher) Flush(ctx context.Context) error {
	rows, err := p.store.GetUnpublishedDecisions(p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load pending decisions: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	var published []string
	for _, row := range rows {
		data, err := json.Marshal(row.Event)
		if err != nil {
			// Unmarshalable events can never succeed, dead-letter immediately
			p.logger.WithError(err).WithField("event_id", row.Event.EventID).
				Error("Failed to marshal decision event, dropping to dead-letter")
			p.deadLetter(ctx, row.Event.EventID, []byte(fmt.Sprintf(`{"eventId":%q}`, row.Event.EventID)))
			published = append(published, row.Event.EventID)
			continue
		}

		if err := p.client.LPush(ctx, p.config.QueueName, data).Err(); err != nil {
			p.handlePushFailure(ctx, row.Event.EventID, data, err)
			continue
		}
		published = append(published, row.Event.EventID)
	}

	if len(published) > 0 {
		if err := p.store.MarkDecisionsPublished(published); err != nil {
			return fmt.Errorf("failed to mark decisions published: %w", err)
		}
		p.logger.WithField("count", len(published)).Debug("Decision events published")
	}

	return nil
}

// handlePushFailure bumps the retry counter and dead-letters the event once
// the budget is exhausted
func (p *Publisher) handlePushFailure(ctx context.Context, eventID string, data []byte, pushErr error) {
	retries, err := p.store.IncrementDecisionRetry(eventID)
	if err != nil {
		p.logger.WithError(err).WithField("event_id", eventID).
			Error("Failed to record publish retry")
		return
	}

	p.logger.WithError(pushErr).WithFields(logrus.Fields{
		"event_id": eventID,
		"retries":  retries,
	}).Warn("Failed to publish decision event")

	if retries >= p.config.MaxRetries {
		p.deadLetter(ctx, eventID, data)
		if err := p.store.MarkDecisionsPublished([]string{eventID}); err != nil {
			p.logger.WithError(err).WithField("event_id", eventID).
				Error("Failed to retire dead-lettered event")
		}
	}
}

// deadLetter pushes an event onto the dead-letter list. Best effort: if the
// push fails the event is lost, which is acceptable for telemetry.
func (p *Publisher) deadLetter(ctx context.Context, eventID string, data []byte) {
	dlq := p.config.QueueName + ":dlq"
	if err := p.client.LPush(ctx, dlq, data).Err(); err != nil {
		p.logger.WithError(err).WithField("event_id", eventID).
			Error("Failed to dead-letter decision event")
		return
	}
	p.logger.WithField("event_id", eventID).Warn("Decision event moved to dead-letter list")
}

// Prune removes published events older than the given age from the local
// queue table
func (p *Publisher) Prune(olderThan time.Duration) (int64, error) {
	return p.store.PrunePublishedDecisions(olderThan)
}

// QueueLength returns the current length of the remote Redis list
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.config.QueueName).Result()
}

// Health checks the Redis connection
func (p *Publisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
