// internal/workers/application/schedule-inspection/handler.go
package scheduleinspection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/inspection"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "schedule-inspection"
)

type Handler struct {
	config     *Config
	inspection *inspection.Subsystem
	responder  *camunda.Responder
	logger     logger.Logger
}

func NewHandler(config *Config, sub *inspection.Subsystem, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		inspection: sub,
		responder:  camunda.NewResponder(TaskType, log),
		logger:     log,
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
	date, err := validation.ParseDate("inspectionDate", input.InspectionDate)
	if err != nil {
		return nil, err
	}

	order, err := h.inspection.Schedule(ctx, inspection.ScheduleRequest{
		ApplicationID:       input.ApplicationID,
		AssignedTo:          input.AssignedTo,
		InspectionDate:      date,
		InspectionAddress:   input.InspectionAddress,
		SpecialInstructions: input.SpecialInstructions,
		ScheduledBy:         input.Actor,
		IdempotencyKey:      input.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("inspection scheduled", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"orderId":       order.ID,
		"assignedTo":    order.AssignedTo,
	})

	return &Output{
		InspectionOrderID: order.ID,
		OrderStatus:       string(order.Status),
		AssignedTo:        order.AssignedTo,
		InspectionDate:    order.InspectionDate.Format(time.RFC3339),
		ApplicationStatus: string(models.StatusInspectionScheduled),
	}, nil
}
