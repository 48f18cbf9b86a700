// internal/workers/application/discard-draft/models.go
package discarddraft

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

type Input struct {
	ApplicationID string       `json:"applicationId"`
	Actor         models.Actor `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Discarded     bool   `json:"discarded"`
	DiscardedAt   string `json:"discardedAt"` // ISO 8601
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["applicationId", "actor"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"actor": `+validation.ActorSchema+`
	}
}`)
