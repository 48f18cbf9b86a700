// internal/workers/application/apply-application-action/models.go
package applyapplicationaction

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

type Input struct {
	ApplicationID  string       `json:"applicationId"`
	Action         string       `json:"action"`
	Actor          models.Actor `json:"actor"`
	Feedback       string       `json:"feedback,omitempty"`
	IssuesFound    []string     `json:"issuesFound,omitempty"`
	Override       bool         `json:"override,omitempty"`
	OverrideReason string       `json:"overrideReason,omitempty"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	ApplicationStatus string `json:"applicationStatus"`
	// Replayed is true when the idempotency key had already been applied.
	Replayed bool `json:"replayed"`
}

// Inspection and approval transitions carry side effects and have their
// own workers.
var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["applicationId", "action", "actor"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"action": {"type": "string", "enum": [
			"submit", "start_scrutiny", "verify_documents", "send_back_for_corrections",
			"revert_to_applicant", "resubmit_correction", "verify_for_payment",
			"approve_cancellation", "reject"
		]},
		"actor": `+validation.ActorSchema+`,
		"issuesFound": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"idempotencyKey": {"type": "string"}
	}
}`)
