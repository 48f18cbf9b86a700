// internal/workers/application/check-submission-readiness/models.go
package checksubmissionreadiness

import "registration-workers/internal/common/validation"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	Ready          bool            `json:"ready"`
	ReadinessScore int             `json:"readinessScore"` // 0-100
	Missing        []string        `json:"missing,omitempty"`
	Breakdown      ReadinessChecks `json:"breakdown"`
	CurrentPage    int             `json:"currentPage"`
}

// ReadinessChecks counts passed checks per group.
type ReadinessChecks struct {
	PropertyFacts  int `json:"propertyFacts"`
	PropertyTotal  int `json:"propertyTotal"`
	Documents      int `json:"documents"`
	DocumentsTotal int `json:"documentsTotal"`
	Photos         int `json:"photos"`
	PhotosRequired int `json:"photosRequired"`
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["applicationId"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1}
	}
}`)
