package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"media-client-bridge/internal/types"
)

// DecisionRow represents a queued decision event row
type DecisionRow struct {
	ID          int64
	Event       types.DecisionEvent
	CreatedAt   time.Time
	PublishedAt sql.NullTime
	RetryCount  int
}

// InsertDecision adds a new decision event to the queue
func (s *Store) InsertDecision(event *types.DecisionEvent) error {
	issues, err := json.Marshal(event.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO decision_events
			(event_id, item_id, container, video_codec, audio_codec, width, height, bitrate, can_direct_play, score, issues)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.EventID,
		event.ItemID,
		event.Container,
		event.VideoCodec,
		event.AudioCodec,
		event.Width,
		event.Height,
		event.Bitrate,
		event.CanDirectPlay,
		event.Score,
		string(issues),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision event: %w", err)
	}

	return nil
}

// GetUnpublishedDecisions retrieves decision events that have not been
// published yet, oldest first
func (s *Store) GetUnpublishedDecisions(limit int) ([]*DecisionRow, error) {
	rows, err := s.conn.Query(`
		SELECT id, event_id, item_id, container, video_codec, audio_codec,
		       width, height, bitrate, can_direct_play, score, issues,
		       created_at, published_at, retry_count
		FROM decision_events
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished decisions: %w", err)
	}
	defer rows.Close()

	var result []*DecisionRow
	for rows.Next() {
		row := &DecisionRow{}
		var itemID, videoCodec, audioCodec, issues sql.NullString

		err := rows.Scan(
			&row.ID,
			&row.Event.EventID,
			&itemID,
			&row.Event.Container,
			&videoCodec,
			&audioCodec,
			&row.Event.Width,
			&row.Event.Height,
			&row.Event.Bitrate,
			&row.Event.CanDirectPlay,
			&row.Event.Score,
			&issues,
			&row.CreatedAt,
			&row.PublishedAt,
			&row.RetryCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}

		row.Event.ItemID = itemID.String
		row.Event.VideoCodec = videoCodec.String
		row.Event.AudioCodec = audioCodec.String
		row.Event.Timestamp = row.CreatedAt

		if issues.Valid && issues.String != "" {
			if err := json.Unmarshal([]byte(issues.String), &row.Event.Issues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal issues for event %s: %w", row.Event.EventID, err)
			}
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}

	return result, nil
}

// MarkDecisionsPublished marks decision events as published
func (s *Store) MarkDecisionsPublished(eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range eventIDs {
		if _, err := tx.Exec(
			"UPDATE decision_events SET published_at = CURRENT_TIMESTAMP WHERE event_id = ?", id,
		); err != nil {
			return fmt.Errorf("failed to mark event %s published: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit publish marks: %w", err)
	}
	return nil
}

// IncrementDecisionRetry bumps the retry count for a decision event and
// returns the new count
func (s *Store) IncrementDecisionRetry(eventID string) (int, error) {
	if _, err := s.conn.Exec(
		"UPDATE decision_events SET retry_count = retry_count + 1 WHERE event_id = ?", eventID,
	); err != nil {
		return 0, fmt.Errorf("failed to increment retry for event %s: %w", eventID, err)
	}

	var count int
	err := s.conn.QueryRow(
		"SELECT retry_count FROM decision_events WHERE event_id = ?", eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count for event %s: %w", eventID, err)
	}
	return count, nil
}

// PrunePublishedDecisions removes published decision events older than the
// given age and returns the number of rows removed
func (s *Store) PrunePublishedDecisions(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := s.conn.Exec(
		"DELETE FROM decision_events WHERE published_at IS NOT NULL AND published_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune published decisions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// PendingDecisionCount returns the number of unpublished decision events
func (s *Store) PendingDecisionCount() (int, error) {
	var count int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM decision_events WHERE published_at IS NULL",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending decisions: %w", err)
	}
	return count, nil
}
