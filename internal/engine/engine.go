// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/engine/contextmanager"
	"crm-assistant/internal/engine/executor"
	"crm-assistant/internal/engine/feedback"
	"crm-assistant/internal/engine/intentparser"
	"crm-assistant/internal/engine/suggestions"
	"crm-assistant/internal/models"
)

const (
	KindQuery    = "query"
	KindFeedback = "feedback"
)

const helpReply = `I can answer questions like "who owns Boeing", "show me late stage pipeline" or "opportunities for Intel", and I can close a deal as lost or move it to nurture.`

type Config struct {
	StoreTimeout    time.Duration
	ExecutorTimeout time.Duration
	MaxSuggestions  int
}

func DefaultConfig() *Config {
	return &Config{
		StoreTimeout:    2 * time.Second,
		ExecutorTimeout: 10 * time.Second,
		MaxSuggestions:  suggestions.DefaultMaxSuggestions,
	}
}

// Message is one inbound chat line.
type Message struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"message"`
}

// Response is what the chat transport renders.
type Response struct {
	Kind        string                `json:"kind"`
	Reply       string                `json:"reply"`
	Intent      *models.ParsedIntent  `json:"intent,omitempty"`
	Suggestions []string              `json:"suggestions"`
	Result      *models.QueryResult   `json:"result,omitempty"`
	Feedback    *models.FeedbackEvent `json:"feedback,omitempty"`
	Degraded    bool                  `json:"degraded"`
	Error       string                `json:"error,omitempty"`
}

// Closer is implemented by recorders that deliver in the background.
type Closer interface {
	Close()
}

// Engine handles one message at a time per conversation. Ordering within a
// conversation is the transport's job; the engine holds no locks.
type Engine struct {
	config      *Config
	parser      *intentparser.Parser
	contexts    *contextmanager.Manager
	executor    executor.Executor
	suggestions *suggestions.Generator
	learner     *feedback.Learner
	recorder    feedback.EventRecorder
	obs         *observability.Observability
	tracer      trace.Tracer
	logger      logger.Logger
}

type Option func(*Engine)

func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) {
		e.obs = o
	}
}

func WithLearner(l *feedback.Learner) Option {
	return func(e *Engine) {
		e.learner = l
	}
}

func New(cfg *Config, contexts *contextmanager.Manager, exec executor.Executor, recorder feedback.EventRecorder, log logger.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log = log.With(map[string]interface{}{"component": "engine"})
	e := &Engine{
		config:      cfg,
		parser:      intentparser.New(),
		contexts:    contexts,
		executor:    exec,
		suggestions: suggestions.New(cfg.MaxSuggestions),
		recorder:    recorder,
		tracer:      otel.Tracer("crm-assistant/engine"),
		logger:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.learner == nil {
		e.learner = feedback.NewLearner(contexts, recorder, log)
	}
	return e
}

// HandleMessage never fails: store problems degrade to a stateless turn and
// executor problems become a user-visible error on the response.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) *Response {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("conversation.user_id", msg.UserID),
		attribute.String("conversation.id", msg.ConversationID),
	))
	defer span.End()

	var resp *Response
	if result, ok := feedback.Classify(msg.Text); ok {
		resp = e.handleFeedback(ctx, msg, result)
	} else {
		resp = e.handleQuery(ctx, msg)
	}

	intent := string(models.IntentUnknown)
	if resp.Intent != nil {
		intent = string(resp.Intent.Intent)
	}
	span.SetAttributes(
		attribute.String("conversation.kind", resp.Kind),
		attribute.String("conversation.intent", intent),
		attribute.Bool("conversation.degraded", resp.Degraded),
	)
	if resp.Error != "" {
		span.SetStatus(codes.Error, resp.Error)
	}

	metrics.ConversationTurns.WithLabelValues(resp.Kind, intent).Inc()
	e.obs.RecordTurn(ctx, resp.Kind, intent, time.Since(start))
	return resp
}

func (e *Engine) handleQuery(ctx context.Context, msg Message) *Response {
	resp := &Response{Kind: KindQuery, Suggestions: []string{}}
	parsed := e.parser.Parse(msg.Text)

	stored, err := e.loadContext(ctx, msg)
	if err != nil {
		resp.Degraded = true
	}

	resolved := contextmanager.Resolve(parsed, stored)
	resp.Intent = &resolved

	if resolved.IsUnknown() {
		resp.Reply = helpReply
		return resp
	}

	resp.Suggestions = e.suggestions.Generate(&resolved)

	result, execErr := e.execute(ctx, &resolved)
	if execErr != nil {
		trace.SpanFromContext(ctx).RecordError(execErr)
		resp.Error = userFacingError(execErr)
		resp.Reply = resp.Error
	} else {
		resp.Result = result
		resp.Reply = result.Summary
	}

	if !resp.Degraded {
		if err := e.saveContext(ctx, msg, parsed, result); err != nil {
			resp.Degraded = true
		}
	}
	return resp
}

func (e *Engine) handleFeedback(ctx context.Context, msg Message, result feedback.Result) *Response {
	resp := &Response{Kind: KindFeedback, Suggestions: []string{}}

	stored, err := e.loadContext(ctx, msg)
	if err != nil {
		resp.Degraded = true
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()
	event, current, err := e.learner.ProcessFeedback(storeCtx, feedback.Message{
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		Text:           msg.Text,
		Result:         result,
	}, stored)
	if err != nil {
		e.degrade("feedback", msg, err)
		resp.Degraded = true
	}

	resp.Feedback = event
	resp.Reply = feedbackReply(event)
	if current.HasLastIntent() {
		last := current.LastIntent.Normalized()
		resp.Intent = &last
		resp.Suggestions = e.suggestions.Generate(&last)
	}

	metrics.FeedbackEvents.WithLabelValues(string(event.Classification), strconv.FormatBool(event.Attributed)).Inc()
	return resp
}

func (e *Engine) loadContext(ctx context.Context, msg Message) (*models.ConversationContext, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	cc, err := e.contexts.GetContext(storeCtx, msg.UserID, msg.ConversationID)
	if err != nil {
		e.degrade("get", msg, err)
		return nil, err
	}
	return cc, nil
}

func (e *Engine) saveContext(ctx context.Context, msg Message, parsed models.ParsedIntent, result *models.QueryResult) error {
	storeCtx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	if _, err := e.contexts.UpdateContext(storeCtx, msg.UserID, msg.ConversationID, parsed, result); err != nil {
		e.degrade("update", msg, err)
		return err
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	if e.executor == nil {
		return nil, executor.ErrUnsupportedIntent
	}
	execCtx, cancel := context.WithTimeout(ctx, e.config.ExecutorTimeout)
	defer cancel()

	start := time.Now()
	result, err := e.executor.Execute(execCtx, intent)
	outcome := "success"
	if err != nil {
		outcome = "error"
		e.logger.Warn("executor failed", map[string]interface{}{
			"intent": string(intent.Intent),
			"error":  err.Error(),
		})
	}
	metrics.ExecutorDuration.WithLabelValues(string(intent.Intent), outcome).Observe(time.Since(start).Seconds())
	if err == nil && result == nil {
		result = &models.QueryResult{Intent: intent.Intent, Records: []models.Record{}}
	}
	return result, err
}

func (e *Engine) degrade(operation string, msg Message, err error) {
	metrics.ContextDegraded.WithLabelValues(operation).Inc()
	e.logger.Warn("conversation context unavailable, continuing statelessly", map[string]interface{}{
		"operation":      operation,
		"userId":         msg.UserID,
		"conversationId": msg.ConversationID,
		"error":          err.Error(),
	})
}

// Reset forgets the conversation.
func (e *Engine) Reset(ctx context.Context, userID, conversationID string) error {
	storeCtx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()
	return e.contexts.Reset(storeCtx, userID, conversationID)
}

// Close waits for in-flight analytics deliveries.
func (e *Engine) Close() {
	if c, ok := e.recorder.(Closer); ok {
		c.Close()
	}
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, executor.ErrExecutorTimeout):
		return "Sorry, the CRM took too long to answer. Please try again in a moment."
	case errors.Is(err, executor.ErrUnsupportedIntent):
		return "Sorry, I can't run that kind of request yet."
	case errors.Is(err, executor.ErrMissingEntity):
		return "Which account do you mean?"
	}
	return "Sorry, I couldn't get that from the CRM right now."
}

func feedbackReply(event *models.FeedbackEvent) string {
	if !event.Attributed {
		return "Thanks for the feedback. Ask me something about your accounts or pipeline and I'll take it from there."
	}
	switch event.Classification {
	case models.FeedbackPositive:
		return "Glad that helped."
	case models.FeedbackNegative:
		return "Sorry about that. I've flagged the answer for review. You can tell me what it should be, for example \"it should be Microsoft\"."
	case models.FeedbackCorrection:
		parts := make([]string, 0, len(event.CorrectedEntities))
		for _, kind := range event.CorrectedEntities.Kinds() {
			values, _ := event.CorrectedEntities.Get(kind)
			parts = append(parts, fmt.Sprintf("%s to %s", strings.ReplaceAll(string(kind), "_", " "), strings.Join(values, ", ")))
		}
		return "Got it, I've updated " + strings.Join(parts, " and ") + "."
	}
	return "Thanks for the feedback."
}
