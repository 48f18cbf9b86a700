// internal/workers/application/submit-inspection-report/handler.go
package submitinspectionreport

import (
	"context"
	"encoding/json"
	"fmt"

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
	TaskType = "submit-inspection-report"
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

// Execute stores the order's report. An approve recommendation completes the
// inspection; raise_objections sends the application back to the owner with
// the failed checks as issues.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}
	date, err := validation.ParseDate("actualInspectionDate", input.ActualInspectionDate)
	if err != nil {
		return nil, err
	}

	report, res, err := h.inspection.SubmitReport(ctx, input.OrderID, input.Actor, inspection.ReportInput{
		ActualInspectionDate:   date,
		RoomCountVerified:      input.RoomCountVerified,
		CategoryMeetsStandards: input.CategoryMeetsStandards,
		OverallSatisfactory:    input.OverallSatisfactory,
		Recommendation:         models.Recommendation(input.Recommendation),
		DetailedFindings:       input.DetailedFindings,
		IdempotencyKey:         input.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		ReportID:          report.ID,
		ApplicationID:     report.ApplicationID,
		Recommendation:    string(report.Recommendation),
		ApplicationStatus: string(res.Status),
	}
	if report.Recommendation == models.RecommendRaiseObjections && res.Application != nil {
		out.IssuesFound = res.Application.CorrectionIssues
	}

	h.logger.Info("inspection report submitted", map[string]interface{}{
		"orderId":        input.OrderID,
		"reportId":       report.ID,
		"recommendation": report.Recommendation,
		"status":         res.Status,
	})
	return out, nil
}
