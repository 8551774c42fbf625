// internal/engine/analytics/sink_test.go
package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

type countingSink struct {
	mu    sync.Mutex
	count int
	err   error
	delay time.Duration
}

func (s *countingSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.err
}

func (s *countingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// ==========================
// Test Helper Functions
// ==========================

func createTestEvent(classification models.Classification) *models.FeedbackEvent {
	related := models.NewParsedIntent(models.IntentAccountOwnership, models.Entities{
		models.EntityAccounts: {"Intel"},
	})
	event := &models.FeedbackEvent{
		ID:             "7d4f3c1e-0b8a-4f5e-9b1d-2f6a8c9e0d11",
		UserID:         "u1",
		ConversationID: "c1",
		RawMessage:     "should be Microsoft",
		Classification: classification,
		RelatedIntent:  &related,
		Attributed:     true,
		Timestamp:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	if classification == models.FeedbackCorrection {
		event.CorrectedEntities = models.Entities{models.EntityAccounts: {"Microsoft"}}
	}
	if classification == models.FeedbackNegative {
		event.Disputed = true
	}
	return event
}

// ==========================
// MultiSink Tests
// ==========================

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	err := MultiSink{a, b}.Record(context.Background(), createTestEvent(models.FeedbackPositive))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	a := &countingSink{err: errors.New("postgres down")}
	b := &countingSink{}
	c := &countingSink{err: errors.New("sns throttled")}

	err := MultiSink{a, b, c}.Record(context.Background(), createTestEvent(models.FeedbackNegative))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkFailed))
	assert.Contains(t, err.Error(), "postgres down")
	assert.Contains(t, err.Error(), "sns throttled")
	assert.Equal(t, 1, b.Count(), "a failing sink must not stop the others")
}

// ==========================
// AsyncSink Tests
// ==========================

func TestAsyncSink_DeliversInBackground(t *testing.T) {
	inner := &countingSink{delay: 100 * time.Millisecond}
	async := NewAsyncSink(inner, time.Second, logger.NewTestLogger(t))

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, async.Record(context.Background(), createTestEvent(models.FeedbackPositive)))
	}
	assert.Less(t, time.Since(start), 80*time.Millisecond)

	async.Close()
	assert.Equal(t, 5, inner.Count())
}

func TestAsyncSink_SurvivesCancelledCaller(t *testing.T) {
	var delivered atomic.Int32
	inner := &countingSink{delay: 10 * time.Millisecond}
	async := NewAsyncSink(inner, time.Second, logger.NewNoOpLogger())
	async.OnDone(func(err error) {
		if err == nil {
			delivered.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, async.Record(ctx, createTestEvent(models.FeedbackPositive)))
	cancel()

	async.Close()
	assert.Equal(t, int32(1), delivered.Load())
}

func TestAsyncSink_SwallowsFailures(t *testing.T) {
	var failures atomic.Int32
	inner := &countingSink{err: errors.New("boom")}
	async := NewAsyncSink(inner, time.Second, logger.NewNoOpLogger())
	async.OnDone(func(err error) {
		if err != nil {
			failures.Add(1)
		}
	})

	assert.NoError(t, async.Record(context.Background(), createTestEvent(models.FeedbackNegative)))
	async.Close()
	assert.Equal(t, int32(1), failures.Load())
}

func TestAsyncSink_DropsAfterClose(t *testing.T) {
	inner := &countingSink{}
	async := NewAsyncSink(inner, 0, logger.NewNoOpLogger())
	async.Close()

	assert.NoError(t, async.Record(context.Background(), createTestEvent(models.FeedbackPositive)))
	assert.NoError(t, async.Record(context.Background(), nil))
	assert.Equal(t, 0, inner.Count())
}

// ==========================
// PostgresSink Tests
// ==========================

func TestPostgresSink_Record(t *testing.T) {
	tests := []struct {
		name           string
		classification models.Classification
		execErr        error
		expectedErr    bool
	}{
		{"positive event", models.FeedbackPositive, nil, false},
		{"correction event", models.FeedbackCorrection, nil, false},
		{"insert failure", models.FeedbackNegative, errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			event := createTestEvent(tt.classification)
			exec := mock.ExpectExec("INSERT INTO feedback_events").
				WithArgs(
					event.ID,
					event.UserID,
					event.ConversationID,
					event.RawMessage,
					string(event.Classification),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					event.Attributed,
					event.Disputed,
					event.Timestamp,
				)
			if tt.execErr != nil {
				exec.WillReturnError(tt.execErr)
			} else {
				exec.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err = NewPostgresSink(db).Record(context.Background(), event)
			if tt.expectedErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSinkFailed))
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresSink_UnattributedEventHasNullJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	event := createTestEvent(models.FeedbackPositive)
	event.RelatedIntent = nil
	event.Attributed = false

	mock.ExpectExec("INSERT INTO feedback_events").
		WithArgs(
			event.ID, event.UserID, event.ConversationID, event.RawMessage,
			"positive", sqlmock.AnyArg(), nil, nil, false, false, event.Timestamp,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresSink(db).Record(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// SNSSink Tests
// ==========================

func TestSNSSink_Record(t *testing.T) {
	var captured *sns.PublishInput
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{}, nil
		},
	}

	sink := NewSNSSink(mock, "arn:aws:sns:us-east-1:123456789012:crm-feedback")
	require.NoError(t, sink.Record(context.Background(), createTestEvent(models.FeedbackCorrection)))

	require.NotNil(t, captured)
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:crm-feedback", *captured.TopicArn)
	assert.Contains(t, *captured.Message, `"classification":"correction"`)
	assert.Contains(t, *captured.Message, `"Microsoft"`)
	assert.Equal(t, "correction", *captured.MessageAttributes["classification"].StringValue)
	assert.Equal(t, "true", *captured.MessageAttributes["attributed"].StringValue)
}

func TestSNSSink_PublishFailure(t *testing.T) {
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	err := NewSNSSink(mock, "arn").Record(context.Background(), createTestEvent(models.FeedbackPositive))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkFailed))
}

// ==========================
// EmailAlertSink Tests
// ==========================

func TestEmailAlertSink_Record(t *testing.T) {
	tests := []struct {
		name           string
		classification models.Classification
		recipients     []string
		expectSend     bool
	}{
		{"correction alerts", models.FeedbackCorrection, []string{"crm-team@example.com"}, true},
		{"negative alerts", models.FeedbackNegative, []string{"crm-team@example.com"}, true},
		{"positive is ignored", models.FeedbackPositive, []string{"crm-team@example.com"}, false},
		{"no recipients", models.FeedbackNegative, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *ses.SendEmailInput
			mock := &MockSESService{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					captured = params
					return &ses.SendEmailOutput{}, nil
				},
			}

			sink := NewEmailAlertSink(mock, "noreply@example.com", tt.recipients)
			require.NoError(t, sink.Record(context.Background(), createTestEvent(tt.classification)))

			if !tt.expectSend {
				assert.Nil(t, captured)
				return
			}
			require.NotNil(t, captured)
			assert.Equal(t, "noreply@example.com", *captured.Source)
			assert.Equal(t, tt.recipients, captured.Destination.ToAddresses)
			assert.True(t, strings.HasPrefix(*captured.Message.Subject.Data, "[crm-assistant] "+string(tt.classification)))
			assert.Contains(t, *captured.Message.Body.Text.Data, "account_ownership {accounts=Intel}")
		})
	}
}

func TestEmailAlertSink_SendFailure(t *testing.T) {
	mock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected")
		},
	}

	err := NewEmailAlertSink(mock, "noreply@example.com", []string{"a@example.com"}).
		Record(context.Background(), createTestEvent(models.FeedbackNegative))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkFailed))
}

func TestAlertBody_Unattributed(t *testing.T) {
	event := createTestEvent(models.FeedbackCorrection)
	event.RelatedIntent = nil

	body := alertBody(event)
	assert.Contains(t, body, "(no prior answer)")
	assert.Contains(t, body, "Corrected to:   {accounts=Microsoft}")
}
