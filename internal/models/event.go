// internal/models/event.go
package models

import "time"

type EventType string

const (
	EventApplicationSubmitted   EventType = "applicationSubmitted"
	EventSentBackForCorrections EventType = "sentBackForCorrections"
	EventInspectionScheduled    EventType = "inspectionScheduled"
	EventApproved               EventType = "approved"
	EventRejected               EventType = "rejected"
)

// Event is emitted after a transition commits.
type Event struct {
	ID                string     `json:"id"`
	Type              EventType  `json:"type"`
	ApplicationID     string     `json:"applicationId"`
	ApplicationNumber string     `json:"applicationNumber"`
	OwnerUserID       string     `json:"ownerUserId"`
	District          string     `json:"district"`
	Kind              Kind       `json:"kind"`
	Status            Status     `json:"status"`
	ActorID           string     `json:"actorId"`
	IssuesFound       []string   `json:"issuesFound,omitempty"`
	CorrectionNotes   string     `json:"correctionNotes,omitempty"`
	InspectionDate    *time.Time `json:"inspectionDate,omitempty"`
	OccurredAt        time.Time  `json:"occurredAt"`
}

// EventFor maps an applied transition to the event it emits, if any.
func EventFor(action Action, to Status) (EventType, bool) {
	switch {
	case action == ActionSubmit || action == ActionResubmitCorrection:
		return EventApplicationSubmitted, true
	case to.IsCorrection():
		return EventSentBackForCorrections, true
	case action == ActionScheduleInspection:
		return EventInspectionScheduled, true
	case to == StatusApproved:
		return EventApproved, true
	case to == StatusRejected:
		return EventRejected, true
	}
	return "", false
}
