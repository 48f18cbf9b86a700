// internal/workers/application/send-notification/models.go
package sendnotification

import "registration-workers/internal/common/validation"

// Input is the domain event correlated into the process instance.
type Input struct {
	EventType         string   `json:"eventType"`
	ApplicationID     string   `json:"applicationId"`
	ApplicationNumber string   `json:"applicationNumber"`
	OwnerUserID       string   `json:"ownerUserId"`
	Status            string   `json:"status,omitempty"`
	CorrectionNotes   string   `json:"correctionNotes,omitempty"`
	IssuesFound       []string `json:"issuesFound,omitempty"`
	InspectionDate    string   `json:"inspectionDate,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"` // "sent", "partial", "disabled"
	Channels       []string `json:"channels,omitempty"`
	SentAt         string   `json:"sentAt"` // ISO 8601
}

// Statuses
const (
	StatusSent     = "sent"
	StatusPartial  = "partial"
	StatusDisabled = "disabled"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

var inputSchema = validation.MustCompile(TaskType, `{
	"type": "object",
	"required": ["eventType", "applicationId", "ownerUserId"],
	"properties": {
		"eventType": {"type": "string", "enum": [
			"applicationSubmitted", "sentBackForCorrections", "inspectionScheduled", "approved", "rejected"
		]},
		"applicationId": {"type": "string", "minLength": 1},
		"ownerUserId": {"type": "string", "minLength": 1},
		"issuesFound": {"type": "array", "items": {"type": "string"}}
	}
}`)
