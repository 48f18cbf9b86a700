// internal/workers/application/update-inspection-order/handler.go
package updateinspectionorder

import (
	"context"
	"encoding/json"
	"fmt"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/inspection"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-inspection-order"
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

	var (
		order *models.InspectionOrder
		err   error
	)
	switch input.Operation {
	case OperationAcknowledge:
		order, err = h.inspection.Acknowledge(ctx, input.OrderID, input.Actor)
	case OperationStart:
		order, err = h.inspection.Start(ctx, input.OrderID, input.Actor)
	case OperationCancel:
		order, err = h.inspection.Cancel(ctx, input.OrderID, input.Actor, input.Reason)
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("inspection order updated", map[string]interface{}{
		"orderId":   order.ID,
		"operation": input.Operation,
		"status":    order.Status,
	})

	return &Output{
		OrderID:       order.ID,
		ApplicationID: order.ApplicationID,
		OrderStatus:   string(order.Status),
	}, nil
}
