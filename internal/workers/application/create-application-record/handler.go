// internal/workers/application/create-application-record/handler.go
package createapplicationrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/application"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "create-application-record"
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

// Execute creates a draft owned by the acting user. An existing active
// application for the same slot surfaces as DUPLICATE_ACTIVE_DRAFT with the
// existing application in the error variables.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}

	app, err := h.service.Create(ctx, input.Actor, application.CreateRequest{
		OwnerUserID:         input.Actor.ID,
		Kind:                models.Kind(input.Kind),
		ParentApplicationID: input.ParentApplicationID,
		District:            input.District,
		Tehsil:              input.Tehsil,
		PropertyFacts: models.PropertyFacts{
			PropertyName: input.PropertyName,
			OwnerName:    input.OwnerName,
			Address:      input.Address,
			RoomCount:    input.RoomCount,
			Category:     input.Category,
		},
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("application record created", map[string]interface{}{
		"applicationId":     app.ID,
		"applicationNumber": app.ApplicationNumber,
		"ownerUserId":       app.OwnerUserID,
		"kind":              app.Kind,
	})

	return &Output{
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		ApplicationStatus: string(app.Status),
		CreatedAt:         app.CreatedAt.Format(time.RFC3339),
	}, nil
}
