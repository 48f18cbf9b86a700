// internal/workers/application/issue-certificate/handler.go
package issuecertificate

import (
	"context"
	"encoding/json"
	"fmt"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/certificate"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "issue-certificate"
)

const dateLayout = "2006-01-02"

// CertificateArchive stores the printable certificate. *certificate.Archive
// satisfies it.
type CertificateArchive interface {
	Store(ctx context.Context, cert *models.Certificate) (string, error)
}

type Handler struct {
	config    *Config
	issuer    *certificate.Issuer
	archive   CertificateArchive
	responder *camunda.Responder
	logger    logger.Logger
}

// NewHandler builds the worker. archive may be nil, in which case no
// document is produced.
func NewHandler(config *Config, issuer *certificate.Issuer, archive CertificateArchive, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		issuer:    issuer,
		archive:   archive,
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

// Execute approves the application and issues its certificate. Issuing
// twice returns the certificate issued the first time, so a job retried
// after an archive failure re-uploads the same document.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}

	cert, err := h.issuer.Issue(ctx, input.ApplicationID, input.Actor, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	out := &Output{
		CertificateID:     cert.ID,
		CertificateNumber: cert.CertificateNumber,
		ApplicationID:     cert.ApplicationID,
		ApplicationStatus: string(models.StatusApproved),
		ValidFrom:         cert.ValidFrom.Format(dateLayout),
		ValidUpto:         cert.ValidUpto.Format(dateLayout),
	}
	if h.archive == nil {
		return out, nil
	}

	key, err := h.archive.Store(ctx, cert)
	if err != nil {
		h.logger.Warn("Certificate archive failed", map[string]interface{}{
			"certificateNumber": cert.CertificateNumber,
			"error":             err.Error(),
		})
		return nil, errors.NewSideEffectFailedError("archive certificate", err)
	}
	out.DocumentKey = key
	return out, nil
}
