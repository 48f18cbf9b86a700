// internal/workers/application/schedule-inspection/models.go
package scheduleinspection

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

type Input struct {
	ApplicationID       string       `json:"applicationId"`
	Actor               models.Actor `json:"actor"`
	AssignedTo          string       `json:"assignedTo"`
	InspectionDate      string       `json:"inspectionDate"` // RFC 3339 or YYYY-MM-DD
	InspectionAddress   string       `json:"inspectionAddress,omitempty"`
	SpecialInstructions string       `json:"specialInstructions,omitempty"`
	IdempotencyKey      string       `json:"idempotencyKey,omitempty"`
}

type Output struct {
	InspectionOrderID string `json:"inspectionOrderId"`
	OrderStatus       string `json:"orderStatus"`
	AssignedTo        string `json:"assignedTo"`
	InspectionDate    string `json:"inspectionDate"`
	ApplicationStatus string `json:"applicationStatus"`
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["applicationId", "actor", "assignedTo", "inspectionDate"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"actor": `+validation.ActorSchema+`,
		"assignedTo": {"type": "string", "minLength": 1},
		"inspectionDate": {"type": "string", "minLength": 10}
	}
}`)
