// internal/engine/executor/sql.go
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm-assistant/internal/models"
)

const DefaultRowLimit = 50

// SQLExecutor answers read intents from the PostgreSQL CRM replica.
type SQLExecutor struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

func NewSQLExecutor(db *sql.DB, limit int) *SQLExecutor {
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	return &SQLExecutor{db: db, limit: limit, now: time.Now}
}

func (e *SQLExecutor) Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	if intent == nil {
		return nil, ErrUnsupportedIntent
	}
	fn, exists := Registry[intent.Intent]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntent, intent.Intent)
	}

	records, summary, err := fn(ctx, e.db, intent.Entities, e.now(), e.limit)
	if err != nil {
		if errors.Is(err, ErrMissingEntity) {
			return nil, fmt.Errorf("%w: %v", ErrExecutorFailed, err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrExecutorFailed, err)
	}

	return &models.QueryResult{
		Intent:  intent.Intent,
		Source:  "postgres",
		Summary: summary,
		Records: records,
	}, nil
}
