// internal/workers/application/update-inspection-order/models.go
package updateinspectionorder

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

// Operations
const (
	OperationAcknowledge = "acknowledge"
	OperationStart       = "start"
	OperationCancel      = "cancel"
)

type Input struct {
	OrderID   string       `json:"orderId"`
	Operation string       `json:"operation"`
	Actor     models.Actor `json:"actor"`
	Reason    string       `json:"reason,omitempty"` // cancel only
}

type Output struct {
	OrderID       string `json:"orderId"`
	ApplicationID string `json:"applicationId"`
	OrderStatus   string `json:"orderStatus"`
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["orderId", "operation", "actor"],
	"properties": {
		"orderId": {"type": "string", "minLength": 1},
		"operation": {"type": "string", "enum": ["acknowledge", "start", "cancel"]},
		"actor": `+validation.ActorSchema+`,
		"reason": {"type": "string"}
	}
}`)
