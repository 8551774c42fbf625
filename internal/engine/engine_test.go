// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/engine/analytics"
	"crm-assistant/internal/engine/contextmanager"
	"crm-assistant/internal/engine/contextstore"
	"crm-assistant/internal/engine/executor"
	"crm-assistant/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type fakeExecutor struct {
	mu    sync.Mutex
	calls []models.ParsedIntent
	err   error
	delay time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, intent *models.ParsedIntent) (*models.QueryResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, intent.Normalized())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	result := &models.QueryResult{Intent: intent.Intent, Source: "fake", Summary: "ok"}
	switch intent.Intent {
	case models.IntentAccountOwnership:
		result.Summary = "Boeing is owned by Dana Whitfield."
		result.Records = []models.Record{{ID: "acc-1", Name: "Boeing", Account: "Boeing", Owner: "Dana Whitfield"}}
	case models.IntentLateStagePipeline:
		result.Summary = "2 deals worth $1,250,000."
		result.Records = []models.Record{
			{ID: "opp-1", Name: "787 fleet", Account: "Boeing", Stage: "negotiation"},
			{ID: "opp-2", Name: "Azure seats", Account: "Microsoft", Stage: "proposal"},
		}
	}
	return result, nil
}

func (f *fakeExecutor) Calls() []models.ParsedIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ParsedIntent(nil), f.calls...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []*models.FeedbackEvent
}

func (s *recordingSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []*models.FeedbackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.FeedbackEvent(nil), s.events...)
}

// ==========================
// Test Helper Functions
// ==========================

type harness struct {
	engine  *Engine
	manager *contextmanager.Manager
	exec    *fakeExecutor
	sink    *recordingSink
	redis   *miniredis.Miniredis
	userID  string
	convID  string
	ctx     context.Context
	t       *testing.T
}

func newHarness(t *testing.T) *harness {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewTestLogger(t)
	manager := contextmanager.NewManager(contextstore.NewRedisStore(client, 3, log), nil, log)
	exec := &fakeExecutor{}
	sink := &recordingSink{}

	cfg := DefaultConfig()
	cfg.StoreTimeout = 500 * time.Millisecond
	cfg.ExecutorTimeout = 200 * time.Millisecond

	e := New(cfg, manager, exec, analytics.NewAsyncSink(sink, time.Second, log), log)
	t.Cleanup(e.Close)

	return &harness{
		engine:  e,
		manager: manager,
		exec:    exec,
		sink:    sink,
		redis:   mr,
		userID:  "u1",
		convID:  "c1",
		ctx:     context.Background(),
		t:       t,
	}
}

func (h *harness) say(text string) *Response {
	return h.engine.HandleMessage(h.ctx, Message{UserID: h.userID, ConversationID: h.convID, Text: text})
}

func (h *harness) stored() *models.ConversationContext {
	cc, err := h.manager.GetContext(h.ctx, h.userID, h.convID)
	require.NoError(h.t, err)
	return cc
}

// ==========================
// Scenario Tests
// ==========================

func TestHandleMessage_OwnershipThenThanks(t *testing.T) {
	h := newHarness(t)

	resp := h.say("who owns Boeing")
	assert.Equal(t, KindQuery, resp.Kind)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, models.IntentAccountOwnership, resp.Intent.Intent)
	assert.Equal(t, []string{"Boeing"}, resp.Intent.Entities[models.EntityAccounts])
	assert.Equal(t, "Boeing is owned by Dana Whitfield.", resp.Reply)
	assert.Contains(t, resp.Suggestions, "What's the pipeline for Boeing?")
	assert.False(t, resp.Degraded)

	before := h.stored()
	require.NotNil(t, before)

	resp = h.say("thanks")
	assert.Equal(t, KindFeedback, resp.Kind)
	require.NotNil(t, resp.Feedback)
	assert.Equal(t, models.FeedbackPositive, resp.Feedback.Classification)
	require.NotNil(t, resp.Feedback.RelatedIntent)
	assert.Equal(t, models.IntentAccountOwnership, resp.Feedback.RelatedIntent.Intent)
	assert.Equal(t, "Glad that helped.", resp.Reply)

	after := h.stored()
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, before.LastEntities, after.LastEntities)
	assert.Len(t, h.exec.Calls(), 1, "feedback is never executed")

	h.engine.Close()
	require.Len(t, h.sink.Events(), 1)
	assert.Equal(t, resp.Feedback.ID, h.sink.Events()[0].ID)
}

func TestHandleMessage_FollowUpCarriesAccount(t *testing.T) {
	h := newHarness(t)

	h.say("who owns Boeing")
	resp := h.say("what about their pipeline")

	require.NotNil(t, resp.Intent)
	assert.Equal(t, models.IntentPipelineSummary, resp.Intent.Intent)
	assert.Equal(t, []string{"Boeing"}, resp.Intent.Entities[models.EntityAccounts])

	calls := h.exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"Boeing"}, calls[1].Entities[models.EntityAccounts])

	cc := h.stored()
	require.Len(t, cc.History, 2)
	assert.Equal(t, models.IntentPipelineSummary, cc.LastIntent.Intent)
}

func TestHandleMessage_OrdinalPicksFromLastResult(t *testing.T) {
	h := newHarness(t)

	h.say("show me late stage pipeline")
	resp := h.say("who owns the second one")

	require.NotNil(t, resp.Intent)
	assert.Equal(t, models.IntentAccountOwnership, resp.Intent.Intent)
	assert.Equal(t, []string{"Microsoft"}, resp.Intent.Entities[models.EntityAccounts])
	assert.False(t, resp.Intent.Entities.Has(models.EntityOrdinal))
}

func TestHandleMessage_CorrectionRewritesContext(t *testing.T) {
	h := newHarness(t)

	h.say("who owns Intel")
	resp := h.say("should be Microsoft")

	assert.Equal(t, KindFeedback, resp.Kind)
	assert.Equal(t, models.FeedbackCorrection, resp.Feedback.Classification)
	assert.Equal(t, "Got it, I've updated accounts to Microsoft.", resp.Reply)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, []string{"Microsoft"}, resp.Intent.Entities[models.EntityAccounts])
	assert.Contains(t, resp.Suggestions, "What's the pipeline for Microsoft?")

	resp = h.say("what about their pipeline")
	assert.Equal(t, []string{"Microsoft"}, resp.Intent.Entities[models.EntityAccounts])
}

func TestHandleMessage_NegativeFlagsAnswer(t *testing.T) {
	h := newHarness(t)

	h.say("who owns Boeing")
	resp := h.say("that's wrong")

	assert.Equal(t, models.FeedbackNegative, resp.Feedback.Classification)
	assert.True(t, resp.Feedback.Disputed)
	assert.True(t, h.stored().Disputed)

	// A new answer clears the flag.
	h.say("who owns Intel")
	assert.False(t, h.stored().Disputed)
}

func TestHandleMessage_FeedbackWithoutContext(t *testing.T) {
	h := newHarness(t)

	resp := h.say("wrong")
	assert.Equal(t, KindFeedback, resp.Kind)
	assert.False(t, resp.Feedback.Attributed)
	assert.Nil(t, resp.Intent)
	assert.Empty(t, resp.Suggestions)
	assert.Nil(t, h.stored())
}

func TestHandleMessage_UnknownIsNotPersisted(t *testing.T) {
	h := newHarness(t)

	resp := h.say("tell me a joke")
	assert.Equal(t, KindQuery, resp.Kind)
	assert.Equal(t, models.IntentUnknown, resp.Intent.Intent)
	assert.Equal(t, helpReply, resp.Reply)
	assert.Empty(t, resp.Suggestions)
	assert.NotNil(t, resp.Suggestions)
	assert.Empty(t, h.exec.Calls())
	assert.Nil(t, h.stored())
}

func TestHandleMessage_FollowUpWithoutContextIsUnknown(t *testing.T) {
	h := newHarness(t)

	resp := h.say("what about Intel")
	assert.Equal(t, models.IntentUnknown, resp.Intent.Intent)
	assert.Empty(t, h.exec.Calls())
}

func TestHandleMessage_ConversationsAreIsolated(t *testing.T) {
	h := newHarness(t)

	h.say("who owns Boeing")
	h.convID = "c2"
	resp := h.say("what about their pipeline")
	assert.False(t, resp.Intent.Entities.Has(models.EntityAccounts))
}

// ==========================
// Failure Path Tests
// ==========================

func TestHandleMessage_ExecutorFailureStillSuggests(t *testing.T) {
	h := newHarness(t)
	h.exec.err = fmt.Errorf("%w: connection refused", executor.ErrExecutorFailed)

	resp := h.say("who owns Boeing")
	assert.Equal(t, "Sorry, I couldn't get that from the CRM right now.", resp.Error)
	assert.Equal(t, resp.Error, resp.Reply)
	assert.Nil(t, resp.Result)
	assert.NotEmpty(t, resp.Suggestions)

	cc := h.stored()
	require.NotNil(t, cc, "the attempted intent is remembered for follow-ups")
	assert.Equal(t, models.IntentAccountOwnership, cc.LastIntent.Intent)
}

func TestHandleMessage_ExecutorTimeout(t *testing.T) {
	h := newHarness(t)
	h.exec.delay = time.Second

	resp := h.say("who owns Boeing")
	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.Suggestions)
}

func TestHandleMessage_StoreDownDegrades(t *testing.T) {
	h := newHarness(t)
	h.say("who owns Boeing")
	h.redis.Close()

	resp := h.say("show me late stage pipeline")
	assert.True(t, resp.Degraded)
	assert.Equal(t, models.IntentLateStagePipeline, resp.Intent.Intent)
	assert.Equal(t, "2 deals worth $1,250,000.", resp.Reply)
	assert.Empty(t, resp.Error)

	resp = h.say("what about Intel")
	assert.True(t, resp.Degraded)
	assert.Equal(t, models.IntentUnknown, resp.Intent.Intent, "no context means no follow-up")

	resp = h.say("thanks")
	assert.True(t, resp.Degraded)
	assert.False(t, resp.Feedback.Attributed)
}

func TestHandleMessage_MalformedInput(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"", "   ", "???", string([]byte{0xff, 0xfe})} {
		resp := h.say(text)
		require.NotNil(t, resp)
		assert.Equal(t, models.IntentUnknown, resp.Intent.Intent)
		assert.NotNil(t, resp.Suggestions)
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t)

	h.say("who owns Boeing")
	require.NoError(t, h.engine.Reset(h.ctx, h.userID, h.convID))
	assert.Nil(t, h.stored())

	err := h.engine.Reset(h.ctx, "", h.convID)
	assert.True(t, errors.Is(err, contextmanager.ErrInvalidKey))
}
