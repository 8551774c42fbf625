// internal/engine/feedback/learner.go
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/engine/contextmanager"
	"crm-assistant/internal/models"
)

// ContextUpdater is the part of the context manager the learner may use.
// The learner never writes the store itself.
type ContextUpdater interface {
	ApplyCorrection(ctx context.Context, userID, conversationID string, corrected models.Entities) (*models.ConversationContext, error)
	MarkDisputed(ctx context.Context, userID, conversationID string) (*models.ConversationContext, error)
}

// EventRecorder receives every feedback event. Failures are logged only.
type EventRecorder interface {
	Record(ctx context.Context, event *models.FeedbackEvent) error
}

// Message is one feedback turn.
type Message struct {
	UserID         string
	ConversationID string
	Text           string
	Result         Result
}

type Learner struct {
	updater  ContextUpdater
	recorder EventRecorder
	now      func() time.Time
	logger   logger.Logger
}

type Option func(*Learner)

func WithClock(now func() time.Time) Option {
	return func(l *Learner) {
		l.now = now
	}
}

func NewLearner(updater ContextUpdater, recorder EventRecorder, log logger.Logger, opts ...Option) *Learner {
	l := &Learner{
		updater:  updater,
		recorder: recorder,
		now:      time.Now,
		logger:   log.With(map[string]interface{}{"component": "feedback-learner"}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProcessFeedback applies one classified feedback message to the
// conversation and emits the event. Without a prior answer the event is
// recorded as unattributed and nothing is changed. The returned context is
// the one now in force; it equals cc when nothing changed.
func (l *Learner) ProcessFeedback(ctx context.Context, msg Message, cc *models.ConversationContext) (*models.FeedbackEvent, *models.ConversationContext, error) {
	event := &models.FeedbackEvent{
		ID:             uuid.NewString(),
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		RawMessage:     msg.Text,
		Classification: msg.Result.Classification,
		Timestamp:      l.now().UTC(),
	}
	if msg.Result.Classification == models.FeedbackCorrection {
		event.CorrectedEntities = msg.Result.Corrected.Clone()
	}

	if !cc.HasLastIntent() {
		l.logger.Info("feedback without a prior answer", map[string]interface{}{
			"userId":         msg.UserID,
			"conversationId": msg.ConversationID,
			"classification": string(event.Classification),
		})
		l.emit(ctx, event)
		return event, cc, nil
	}

	related := cc.LastIntent.Normalized()
	event.RelatedIntent = &related
	event.Attributed = true

	updated, err := l.apply(ctx, msg, event)
	switch {
	case errors.Is(err, contextmanager.ErrNoContext):
		// The record expired between the read and the update.
		event.RelatedIntent = nil
		event.Attributed = false
		updated, err = nil, nil
	case err != nil:
		l.emit(ctx, event)
		return event, cc, fmt.Errorf("apply %s feedback: %w", event.Classification, err)
	case updated == nil:
		updated = cc
	}

	l.emit(ctx, event)
	return event, updated, nil
}

func (l *Learner) apply(ctx context.Context, msg Message, event *models.FeedbackEvent) (*models.ConversationContext, error) {
	switch msg.Result.Classification {
	case models.FeedbackNegative:
		event.Disputed = true
		return l.updater.MarkDisputed(ctx, msg.UserID, msg.ConversationID)
	case models.FeedbackCorrection:
		if len(msg.Result.Corrected) == 0 {
			return nil, nil
		}
		return l.updater.ApplyCorrection(ctx, msg.UserID, msg.ConversationID, msg.Result.Corrected)
	default:
		return nil, nil
	}
}

func (l *Learner) emit(ctx context.Context, event *models.FeedbackEvent) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.Record(ctx, event); err != nil {
		l.logger.Warn("failed to record feedback event", map[string]interface{}{
			"eventId": event.ID,
			"error":   err.Error(),
		})
	}
}
