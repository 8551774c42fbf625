// internal/workers/conversation/process-message/handler.go
package processmessage

import (
	"context"
	"encoding/json"
	"time"

	apperrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/engine"
	"crm-assistant/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "process-message"

// Conversation is the engine surface this worker needs.
type Conversation interface {
	HandleMessage(ctx context.Context, msg engine.Message) *engine.Response
}

type Handler struct {
	config *Config
	engine Conversation
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, conv Conversation, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		engine: conv,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.decode(job.Variables)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) decode(variables string) (*Input, error) {
	if err := validateVariables(variables, h.config.MaxMessageLength); err != nil {
		return nil, apperrors.NewInputValidationError(err.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInputValidationError(err.Error())
	}
	return &input, nil
}

// execute never fails on engine problems: a degraded or failed turn is still
// a reply the process should deliver.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" || input.ConversationID == "" {
		return nil, apperrors.NewInputValidationError("userId and conversationId are required")
	}

	resp := h.engine.HandleMessage(ctx, engine.Message{
		UserID:         input.UserID,
		ConversationID: input.ConversationID,
		Text:           input.Message,
	})

	output := &Output{
		Kind:        resp.Kind,
		Reply:       resp.Reply,
		Intent:      string(models.IntentUnknown),
		Entities:    models.Entities{},
		Suggestions: resp.Suggestions,
		Result:      resp.Result,
		Feedback:    resp.Feedback,
		Degraded:    resp.Degraded,
		Error:       resp.Error,
	}
	if resp.Intent != nil {
		output.Intent = string(resp.Intent.Intent)
		output.Entities = resp.Intent.Entities.Clone()
	}
	if output.Suggestions == nil {
		output.Suggestions = []string{}
	}

	if resp.Degraded {
		h.logger.Warn("turn served without conversation context", map[string]interface{}{
			"userId":         input.UserID,
			"conversationId": input.ConversationID,
		})
	}
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
