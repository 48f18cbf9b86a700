// internal/workers/application/submit-inspection-report/models.go
package submitinspectionreport

import (
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"
)

type Input struct {
	OrderID                string       `json:"orderId"`
	Actor                  models.Actor `json:"actor"`
	ActualInspectionDate   string       `json:"actualInspectionDate"`
	RoomCountVerified      bool         `json:"roomCountVerified"`
	CategoryMeetsStandards bool         `json:"categoryMeetsStandards"`
	OverallSatisfactory    bool         `json:"overallSatisfactory"`
	Recommendation         string       `json:"recommendation"`
	DetailedFindings       string       `json:"detailedFindings,omitempty"`
	IdempotencyKey         string       `json:"idempotencyKey,omitempty"`
}

type Output struct {
	ReportID          string   `json:"reportId"`
	ApplicationID     string   `json:"applicationId"`
	Recommendation    string   `json:"recommendation"`
	ApplicationStatus string   `json:"applicationStatus"`
	IssuesFound       []string `json:"issuesFound,omitempty"`
}

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["orderId", "actor", "actualInspectionDate", "recommendation"],
	"properties": {
		"orderId": {"type": "string", "minLength": 1},
		"actor": `+validation.ActorSchema+`,
		"actualInspectionDate": {"type": "string", "minLength": 10},
		"roomCountVerified": {"type": "boolean"},
		"categoryMeetsStandards": {"type": "boolean"},
		"overallSatisfactory": {"type": "boolean"},
		"recommendation": {"type": "string", "enum": ["approve", "raise_objections"]},
		"detailedFindings": {"type": "string"},
		"idempotencyKey": {"type": "string"}
	}
}`)
