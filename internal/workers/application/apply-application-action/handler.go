// internal/workers/application/apply-application-action/handler.go
package applyapplicationaction

import (
	"context"
	"encoding/json"
	"fmt"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/statemachine"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "apply-application-action"
)

type Handler struct {
	config    *Config
	machine   *statemachine.Machine
	responder *camunda.Responder
	logger    logger.Logger
}

func NewHandler(config *Config, machine *statemachine.Machine, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		machine:   machine,
		responder: camunda.NewResponder(TaskType, log),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.responder.Fail(client, job, errors.NewPayloadValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}
	// A retried job reuses its key, so the job key is a safe default.
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = fmt.Sprintf("job-%d", job.Key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.responder.Fail(client, job, err)
		return
	}
	h.responder.Complete(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}

	res, err := h.machine.Apply(ctx, statemachine.Request{
		ApplicationID: input.ApplicationID,
		Action:        models.Action(input.Action),
		Actor:         input.Actor,
		Payload: statemachine.Payload{
			Feedback:       input.Feedback,
			IssuesFound:    input.IssuesFound,
			Override:       input.Override,
			OverrideReason: input.OverrideReason,
		},
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		ApplicationID:     input.ApplicationID,
		ApplicationStatus: string(res.Status),
		Replayed:          res.Replayed,
	}
	if res.Application != nil {
		out.ApplicationNumber = res.Application.ApplicationNumber
	}
	return out, nil
}
