// internal/workers/application/update-application-draft/models.go
package updateapplicationdraft

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/application"
)

type Input struct {
	ApplicationID string                  `json:"applicationId"`
	Actor         models.Actor            `json:"actor"`
	Changes       application.DraftUpdate `json:"changes"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	ApplicationStatus string `json:"applicationStatus"`
	CurrentPage       int    `json:"currentPage"`
	UpdatedAt         string `json:"updatedAt"` // ISO 8601
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["applicationId", "actor", "changes"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"actor": `+validation.ActorSchema+`,
		"changes": {
			"type": "object",
			"minProperties": 1,
			"properties": {
				"tehsil":       {"type": "string"},
				"propertyName": {"type": "string", "maxLength": 200},
				"ownerName":    {"type": "string", "maxLength": 200},
				"address":      {"type": "string", "maxLength": 500},
				"roomCount":    {"type": "integer", "minimum": 0},
				"category":     {"type": "string"},
				"currentPage":  {"type": "integer", "minimum": 1}
			}
		}
	}
}`)
