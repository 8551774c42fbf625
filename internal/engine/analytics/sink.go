// internal/engine/analytics/sink.go
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

var ErrSinkFailed = errors.New("ANALYTICS_SINK_FAILED")

// Sink stores feedback events for offline analysis.
type Sink interface {
	Record(ctx context.Context, event *models.FeedbackEvent) error
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrSinkFailed, errors.Join(errs...))
	}
	return nil
}

// AsyncSink hands events to its inner sink in the background so a slow
// analytics backend never holds up a conversation turn. Record always
// returns nil; failures are logged.
type AsyncSink struct {
	inner   Sink
	timeout time.Duration
	logger  logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	onDone func(err error)
}

func NewAsyncSink(inner Sink, timeout time.Duration, log logger.Logger) *AsyncSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncSink{
		inner:   inner,
		timeout: timeout,
		logger:  log.With(map[string]interface{}{"component": "analytics"}),
	}
}

// OnDone registers a callback run after each background delivery.
func (a *AsyncSink) OnDone(fn func(err error)) {
	a.onDone = fn
}

func (a *AsyncSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	if event == nil {
		return nil
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warn("dropping feedback event after close", map[string]interface{}{"eventId": event.ID})
		return nil
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		// Detached from the turn's context, which ends when the reply is sent.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		err := a.inner.Record(sendCtx, event)
		if err != nil {
			a.logger.Error("failed to record feedback event", map[string]interface{}{
				"eventId":        event.ID,
				"classification": string(event.Classification),
				"error":          err.Error(),
			})
		}
		if a.onDone != nil {
			a.onDone(err)
		}
	}()
	return nil
}

// Close stops accepting events and waits for in-flight deliveries.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}
