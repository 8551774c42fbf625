// internal/engine/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

var (
	ErrUnsupportedIntent = errors.New("UNSUPPORTED_INTENT")
	ErrExecutorFailed    = errors.New("EXECUTOR_FAILED")
	ErrExecutorTimeout   = errors.New("EXECUTOR_TIMEOUT")
	ErrMissingEntity     = errors.New("missing required entity")
)

// Executor runs a resolved intent against the record store.
type Executor interface {
	Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error)
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	return f(ctx, intent)
}

// Backend names used in route tables.
const (
	BackendSQL    = "sql"
	BackendSearch = "search"
	BackendCRM    = "crm"
)

// DefaultRoutes sends reads to PostgreSQL, fuzzy account lookups to
// Elasticsearch and stage changes to the CRM.
func DefaultRoutes() map[models.IntentTag]string {
	return map[models.IntentTag]string{
		models.IntentAccountOwnership:     BackendSQL,
		models.IntentPipelineSummary:      BackendSQL,
		models.IntentLateStagePipeline:    BackendSQL,
		models.IntentAccountOpportunities: BackendSearch,
		models.IntentMoveToNurture:        BackendCRM,
		models.IntentCloseLost:            BackendCRM,
	}
}

// Router dispatches intents to the backend named in its route table.
type Router struct {
	routes   map[models.IntentTag]string
	backends map[string]Executor
	logger   logger.Logger
}

func NewRouter(routes map[models.IntentTag]string, backends map[string]Executor, log logger.Logger) *Router {
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	return &Router{
		routes:   routes,
		backends: backends,
		logger:   log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

func (r *Router) Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	if intent == nil || intent.IsUnknown() || intent.Intent == models.IntentFollowUp {
		return nil, ErrUnsupportedIntent
	}

	name, ok := r.routes[intent.Intent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntent, intent.Intent)
	}
	backend, ok := r.backends[name]
	if !ok || backend == nil {
		return nil, fmt.Errorf("%w: no %s backend for %s", ErrUnsupportedIntent, name, intent.Intent)
	}

	start := time.Now()
	result, err := backend.Execute(ctx, intent)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrExecutorTimeout, err)
		}
		r.logger.Warn("intent execution failed", map[string]interface{}{
			"intent":  string(intent.Intent),
			"backend": name,
			"error":   err.Error(),
		})
		return nil, err
	}

	if result == nil {
		result = &models.QueryResult{}
	}
	result.Intent = intent.Intent
	if result.Source == "" {
		result.Source = name
	}
	result.RowCount = len(result.Records)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	r.logger.Debug("intent executed", map[string]interface{}{
		"intent":   string(intent.Intent),
		"backend":  name,
		"rowCount": result.RowCount,
		"tookMs":   result.ExecutionTimeMs,
	})
	return result, nil
}
