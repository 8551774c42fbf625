// internal/engine/analytics/postgres.go
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"crm-assistant/internal/models"
)

// PostgresSink appends events to the feedback_events table:
//
//	CREATE TABLE feedback_events (
//	    id                 UUID PRIMARY KEY,
//	    user_id            TEXT NOT NULL,
//	    conversation_id    TEXT NOT NULL,
//	    raw_message        TEXT NOT NULL,
//	    classification     TEXT NOT NULL,
//	    corrected_kinds    TEXT[],
//	    corrected_entities JSONB,
//	    related_intent     JSONB,
//	    attributed         BOOLEAN NOT NULL,
//	    disputed           BOOLEAN NOT NULL,
//	    created_at         TIMESTAMPTZ NOT NULL
//	);
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	corrected, err := nullableJSON(event.CorrectedEntities, len(event.CorrectedEntities) > 0)
	if err != nil {
		return fmt.Errorf("%w: encode corrected entities: %v", ErrSinkFailed, err)
	}
	related, err := nullableJSON(event.RelatedIntent, event.RelatedIntent != nil)
	if err != nil {
		return fmt.Errorf("%w: encode related intent: %v", ErrSinkFailed, err)
	}

	kinds := make([]string, 0, len(event.CorrectedEntities))
	for _, k := range event.CorrectedEntities.Kinds() {
		kinds = append(kinds, string(k))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback_events (
			id, user_id, conversation_id, raw_message, classification,
			corrected_kinds, corrected_entities, related_intent,
			attributed, disputed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		event.ID,
		event.UserID,
		event.ConversationID,
		event.RawMessage,
		string(event.Classification),
		pq.Array(kinds),
		corrected,
		related,
		event.Attributed,
		event.Disputed,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: insert feedback event: %v", ErrSinkFailed, err)
	}
	return nil
}

func nullableJSON(v interface{}, present bool) (interface{}, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
