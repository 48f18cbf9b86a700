// internal/workers/application/check-submission-readiness/handler.go
package checksubmissionreadiness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "check-submission-readiness"
)

type ApplicationReader interface {
	Get(ctx context.Context, id string) (*models.Application, error)
}

type DocumentLister interface {
	List(ctx context.Context, applicationID string) ([]models.Document, error)
}

type Handler struct {
	config       *Config
	applications ApplicationReader
	documents    DocumentLister
	responder    *camunda.Responder
	logger       logger.Logger
}

func NewHandler(config *Config, applications ApplicationReader, documents DocumentLister, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		applications: applications,
		documents:    documents,
		responder:    camunda.NewResponder(TaskType, log),
		logger:       log,
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

// Execute scores how close a draft is to passing the submit guards. It
// never changes the application.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}

	app, err := h.applications.Get(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	docs, err := h.documents.List(ctx, input.ApplicationID)
	if err != nil {
		if errors.CodeOf(err) == "" {
			return nil, errors.NewDatabaseOperationError("list documents", err)
		}
		return nil, err
	}

	var missing []string
	checks := ReadinessChecks{PhotosRequired: h.config.MinPhotos}

	facts := []struct {
		name string
		ok   bool
	}{
		{"propertyName", strings.TrimSpace(app.PropertyName) != ""},
		{"ownerName", strings.TrimSpace(app.OwnerName) != ""},
		{"address", strings.TrimSpace(app.Address) != ""},
		{"roomCount", app.RoomCount > 0},
		{"category", strings.TrimSpace(app.Category) != ""},
	}
	checks.PropertyTotal = len(facts)
	for _, f := range facts {
		if f.ok {
			checks.PropertyFacts++
		} else {
			missing = append(missing, f.name)
		}
	}

	present := map[string]bool{}
	for _, d := range docs {
		present[d.DocumentType] = true
		if d.DocumentType == models.DocumentTypePhoto {
			checks.Photos++
		}
	}
	checks.DocumentsTotal = len(h.config.RequiredDocuments)
	for _, t := range h.config.RequiredDocuments {
		if present[t] {
			checks.Documents++
		} else {
			missing = append(missing, "document:"+t)
		}
	}
	if checks.Photos < checks.PhotosRequired {
		missing = append(missing, fmt.Sprintf("photos:%d/%d", checks.Photos, checks.PhotosRequired))
	}

	score := readinessScore(checks)
	h.logger.Info("submission readiness calculated", map[string]interface{}{
		"applicationId": app.ID,
		"score":         score,
		"missing":       len(missing),
	})

	return &Output{
		Ready:          len(missing) == 0,
		ReadinessScore: score,
		Missing:        missing,
		Breakdown:      checks,
		CurrentPage:    app.CurrentPage,
	}, nil
}

// readinessScore weights property facts 40%, documents 40% and photos 20%.
func readinessScore(c ReadinessChecks) int {
	ratio := func(n, total int) float64 {
		if total <= 0 {
			return 1
		}
		if n > total {
			n = total
		}
		return float64(n) / float64(total)
	}
	score := ratio(c.PropertyFacts, c.PropertyTotal)*40 +
		ratio(c.Documents, c.DocumentsTotal)*40 +
		ratio(c.Photos, c.PhotosRequired)*20
	return int(score + 0.5)
}
