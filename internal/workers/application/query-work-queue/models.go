// internal/workers/application/query-work-queue/models.go
package queryworkqueue

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/events"
)

type Input struct {
	Actor    models.Actor `json:"actor"`
	District string       `json:"district,omitempty"`
	Statuses []string     `json:"statuses,omitempty"`
	From     int          `json:"from,omitempty"`
	Size     int          `json:"size,omitempty"`
}

type Output struct {
	District string              `json:"district,omitempty"`
	Statuses []string            `json:"statuses"`
	Entries  []events.QueueEntry `json:"entries"`
	Count    int                 `json:"count"`
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["actor"],
	"properties": {
		"actor": `+validation.ActorSchema+`,
		"district": {"type": "string"},
		"statuses": {
			"type": "array",
			"items": {
				"type": "string",
				"enum": ["submitted", "under_scrutiny", "forwarded_to_dtdo", "inspection_scheduled",
					"inspection_completed", "verified_for_payment", "sent_back_for_corrections", "reverted_by_dtdo"]
			}
		},
		"from": {"type": "integer", "minimum": 0},
		"size": {"type": "integer", "minimum": 0, "maximum": 100}
	}
}`)
