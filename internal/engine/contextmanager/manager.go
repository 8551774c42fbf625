// internal/engine/contextmanager/manager.go
package contextmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/engine/contextstore"
	"crm-assistant/internal/models"
)

var (
	ErrInvalidKey = errors.New("INPUT_VALIDATION_FAILED")
	// ErrNoContext means there is no prior answer to attach feedback to.
	ErrNoContext = errors.New("ATTRIBUTION_FAILURE")
)

// Manager is the only reader and writer of ConversationContext records.
// Every mutation is a single store Update, so concurrent turns on one key
// never overwrite each other from a stale read.
type Manager struct {
	store  contextstore.Store
	config *Config
	now    func() time.Time
	logger logger.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(store contextstore.Store, cfg *Config, log logger.Logger, opts ...Option) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{
		store:  store,
		config: cfg,
		now:    time.Now,
		logger: log.With(map[string]interface{}{"component": "context-manager"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetContext returns nil when there is no record or it has expired.
func (m *Manager) GetContext(ctx context.Context, userID, conversationID string) (*models.ConversationContext, error) {
	key, err := m.key(userID, conversationID)
	if err != nil {
		return nil, err
	}

	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return m.decodeLive(key, raw), nil
}

// UpdateContext records a resolved query turn, creating the record when
// absent, and returns what was stored.
func (m *Manager) UpdateContext(ctx context.Context, userID, conversationID string, parsed models.ParsedIntent, result *models.QueryResult) (*models.ConversationContext, error) {
	key, err := m.key(userID, conversationID)
	if err != nil {
		return nil, err
	}

	return m.mutate(ctx, key, func(cc *models.ConversationContext, now time.Time) (*models.ConversationContext, error) {
		if cc == nil {
			cc = models.NewConversationContext(userID, conversationID, now)
		}
		resolved := Resolve(parsed, cc)
		if resolved.IsUnknown() {
			resolved = parsed.Normalized()
		}

		cc.LastIntent = &resolved
		cc.LastEntities = resolved.Entities.Clone()
		cc.AppendHistory(resolved, m.config.HistoryLimit)
		cc.LastResultRefs = result.RecordRefs()
		cc.Disputed = false
		cc.UpdatedAt = now
		return cc, nil
	})
}

// ApplyCorrection overwrites the corrected kinds on the last answer. History
// is left alone. Returns ErrNoContext when there is nothing to correct.
func (m *Manager) ApplyCorrection(ctx context.Context, userID, conversationID string, corrected models.Entities) (*models.ConversationContext, error) {
	key, err := m.key(userID, conversationID)
	if err != nil {
		return nil, err
	}

	return m.mutate(ctx, key, func(cc *models.ConversationContext, now time.Time) (*models.ConversationContext, error) {
		if !cc.HasLastIntent() {
			return nil, ErrNoContext
		}
		for _, kind := range corrected.Kinds() {
			values, _ := corrected.Get(kind)
			cc.LastEntities.Set(kind, values...)
			cc.LastIntent.Entities.Set(kind, values...)
		}
		cc.Disputed = false
		cc.UpdatedAt = now
		return cc, nil
	})
}

// MarkDisputed flags the last answer as rejected without touching entities.
func (m *Manager) MarkDisputed(ctx context.Context, userID, conversationID string) (*models.ConversationContext, error) {
	key, err := m.key(userID, conversationID)
	if err != nil {
		return nil, err
	}

	return m.mutate(ctx, key, func(cc *models.ConversationContext, now time.Time) (*models.ConversationContext, error) {
		if !cc.HasLastIntent() {
			return nil, ErrNoContext
		}
		cc.Disputed = true
		cc.UpdatedAt = now
		return cc, nil
	})
}

// Reset drops the record for the pair.
func (m *Manager) Reset(ctx context.Context, userID, conversationID string) error {
	key, err := m.key(userID, conversationID)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("reset context: %w", err)
	}
	m.logger.Info("conversation context reset", map[string]interface{}{
		"userId":         userID,
		"conversationId": conversationID,
	})
	return nil
}

type mutation func(cc *models.ConversationContext, now time.Time) (*models.ConversationContext, error)

// mutate runs fn inside one store update. fn receives nil for an absent or
// expired record.
func (m *Manager) mutate(ctx context.Context, key string, fn mutation) (*models.ConversationContext, error) {
	var stored *models.ConversationContext

	_, err := m.store.Update(ctx, key, m.config.TTL, func(current []byte, exists bool) ([]byte, error) {
		var cc *models.ConversationContext
		if exists {
			cc = m.decodeLive(key, current)
		}
		next, err := fn(cc, m.now().UTC())
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode context: %w", err)
		}
		stored = next
		return data, nil
	})
	if err != nil {
		if errors.Is(err, ErrNoContext) {
			return nil, err
		}
		return nil, fmt.Errorf("update context: %w", err)
	}
	return stored.Clone(), nil
}

// decodeLive returns nil for unreadable or expired records.
func (m *Manager) decodeLive(key string, raw []byte) *models.ConversationContext {
	var cc models.ConversationContext
	if err := json.Unmarshal(raw, &cc); err != nil {
		m.logger.Warn("discarding unreadable context record", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}
	if cc.IsExpired(m.now(), m.config.TTL) {
		return nil
	}

	if cc.LastIntent != nil {
		li := cc.LastIntent.Normalized()
		cc.LastIntent = &li
	}
	cc.LastEntities = cc.LastEntities.Clone()
	if cc.History == nil {
		cc.History = []models.ParsedIntent{}
	}
	for i := range cc.History {
		cc.History[i] = cc.History[i].Normalized()
	}
	return &cc
}

func (m *Manager) key(userID, conversationID string) (string, error) {
	if userID == "" || conversationID == "" {
		return "", fmt.Errorf("%w: userId and conversationId are required", ErrInvalidKey)
	}
	return contextstore.Key(m.config.KeyPrefix, userID, conversationID), nil
}
