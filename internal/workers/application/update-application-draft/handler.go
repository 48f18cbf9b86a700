// internal/workers/application/update-application-draft/handler.go
package updateapplicationdraft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/registration/application"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-application-draft"
)

type Handler struct {
	config    *Config
	service   *application.Service
	responder *camunda.Responder
	logger    logger.Logger
}

func NewHandler(config *Config, service *application.Service, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		service:   service,
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

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.responder.Fail(client, job, err)
		return
	}
	h.responder.Complete(client, job, output)
}

// Execute saves owner edits to a draft or a correction-state application,
// including the wizard page the owner stopped on.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}

	app, err := h.service.UpdateDraft(ctx, input.Actor, input.ApplicationID, input.Changes)
	if err != nil {
		return nil, err
	}

	return &Output{
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		ApplicationStatus: string(app.Status),
		CurrentPage:       app.CurrentPage,
		UpdatedAt:         app.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}
