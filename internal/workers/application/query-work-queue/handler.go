// internal/workers/application/query-work-queue/handler.go
package queryworkqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/events"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "query-work-queue"

	defaultSize = 50
)

// QueueSearcher is satisfied by events.SearchIndexer.
type QueueSearcher interface {
	Queue(ctx context.Context, q events.QueueQuery) ([]events.QueueEntry, error)
}

// Statuses each role works on when the caller does not narrow the queue.
var (
	scrutinyQueue = []models.Status{models.StatusSubmitted, models.StatusUnderScrutiny}
	decisionQueue = []models.Status{
		models.StatusForwardedToDTDO,
		models.StatusInspectionScheduled,
		models.StatusInspectionCompleted,
		models.StatusVerifiedForPayment,
	}
)

type Handler struct {
	config    *Config
	search    QueueSearcher
	responder *camunda.Responder
	logger    logger.Logger
}

func NewHandler(config *Config, search QueueSearcher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		search:    search,
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

// Execute lists the applications waiting on an officer, oldest update
// first, from the dashboard index.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}

	actor := input.Actor
	if !actor.Role.IsOfficer() {
		return nil, errors.NewInvalidTransitionError("work queues are only available to officers")
	}

	district := input.District
	if district == "" && !actor.Can(models.CapCrossDistrict) {
		district = actor.District
	}
	if district == "" && !actor.Can(models.CapCrossDistrict) {
		return nil, errors.NewPayloadValidationError("officer has no district")
	}
	if district != "" && !actor.CoversDistrict(district) {
		return nil, errors.NewInvalidTransitionError(fmt.Sprintf("officer cannot view district %s", district))
	}

	statuses := make([]models.Status, 0, len(input.Statuses))
	for _, s := range input.Statuses {
		statuses = append(statuses, models.Status(s))
	}
	if len(statuses) == 0 {
		statuses = defaultStatuses(actor)
	}

	size := input.Size
	if size == 0 {
		size = defaultSize
	}

	entries, err := h.search.Queue(ctx, events.QueueQuery{
		District: district,
		Statuses: statuses,
		From:     input.From,
		Size:     size,
	})
	if err != nil {
		return nil, errors.NewDatabaseOperationError("search work queue", err)
	}

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	h.logger.Debug("work queue fetched", map[string]interface{}{
		"actorId":  actor.ID,
		"district": district,
		"count":    len(entries),
	})
	return &Output{
		District: district,
		Statuses: names,
		Entries:  entries,
		Count:    len(entries),
	}, nil
}

func defaultStatuses(actor models.Actor) []models.Status {
	var out []models.Status
	if actor.Can(models.CapScrutinize) {
		out = append(out, scrutinyQueue...)
	}
	if actor.Can(models.CapDistrictDecision) {
		out = append(out, decisionQueue...)
	}
	return out
}
