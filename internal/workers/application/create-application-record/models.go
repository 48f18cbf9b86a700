// internal/workers/application/create-application-record/models.go
package createapplicationrecord

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

type Input struct {
	Actor               models.Actor `json:"actor"`
	Kind                string       `json:"kind"`
	ParentApplicationID string       `json:"parentApplicationId,omitempty"`
	District            string       `json:"district"`
	Tehsil              string       `json:"tehsil,omitempty"`
	PropertyName        string       `json:"propertyName,omitempty"`
	OwnerName           string       `json:"ownerName,omitempty"`
	Address             string       `json:"address,omitempty"`
	RoomCount           int          `json:"roomCount,omitempty"`
	Category            string       `json:"category,omitempty"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	ApplicationStatus string `json:"applicationStatus"`
	CreatedAt         string `json:"createdAt"` // ISO 8601
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["actor", "kind", "district"],
	"properties": {
		"actor": `+validation.ActorSchema+`,
		"kind": {"type": "string", "enum": ["new_registration", "add_rooms", "delete_rooms", "renewal", "cancellation", "legacy_rc"]},
		"parentApplicationId": {"type": "string"},
		"district": {"type": "string", "minLength": 1},
		"roomCount": {"type": "integer", "minimum": 0}
	}
}`)
