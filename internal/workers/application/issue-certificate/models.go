// internal/workers/application/issue-certificate/models.go
package issuecertificate

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

type Input struct {
	ApplicationID  string       `json:"applicationId"`
	Actor          models.Actor `json:"actor"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
}

type Output struct {
	CertificateID     string `json:"certificateId"`
	CertificateNumber string `json:"certificateNumber"`
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	ValidFrom         string `json:"validFrom"` // YYYY-MM-DD
	ValidUpto         string `json:"validUpto"` // YYYY-MM-DD
	DocumentKey       string `json:"documentKey,omitempty"`
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["applicationId", "actor"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"actor": `+validation.ActorSchema+`,
		"idempotencyKey": {"type": "string"}
	}
}`)
