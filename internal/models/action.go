// internal/models/action.go
package models

import (
	"fmt"
	"time"
)

// Action is a command issued against an application.
type Action string

const (
	ActionSubmit                 Action = "submit"
	ActionStartScrutiny          Action = "start_scrutiny"
	ActionVerifyDocuments        Action = "verify_documents"
	ActionSendBackForCorrections Action = "send_back_for_corrections"
	ActionRevertToApplicant      Action = "revert_to_applicant"
	ActionResubmitCorrection     Action = "resubmit_correction"
	ActionScheduleInspection     Action = "schedule_inspection"
	ActionCancelInspection       Action = "cancel_inspection"
	ActionCompleteInspection     Action = "complete_inspection"
	ActionRaiseObjections        Action = "raise_objections"
	ActionVerifyForPayment       Action = "verify_for_payment"
	ActionApprove                Action = "approve"
	ActionApproveCancellation    Action = "approve_cancellation"
	ActionReject                 Action = "reject"
)

// ActionKind is the audit label written to the action log.
type ActionKind string

const (
	LogDraftCreated           ActionKind = "draft_created"
	LogSubmitted              ActionKind = "submitted"
	LogScrutinyStarted        ActionKind = "scrutiny_started"
	LogDocumentVerified       ActionKind = "document_verified"
	LogSentBackForCorrections ActionKind = "sent_back_for_corrections"
	LogRevertedByDTDO         ActionKind = "reverted_by_dtdo"
	LogCorrectionResubmitted  ActionKind = "correction_resubmitted"
	LogInspectionScheduled    ActionKind = "site_inspection_scheduled"
	LogInspectionCancelled    ActionKind = "inspection_cancelled"
	LogInspectionAcknowledged ActionKind = "inspection_acknowledged"
	LogInspectionStarted      ActionKind = "inspection_started"
	LogInspectionCompleted    ActionKind = "inspection_completed"
	LogObjectionsRaised       ActionKind = "objections_raised"
	LogVerifiedForPayment     ActionKind = "verified_for_payment"
	LogApproved               ActionKind = "approved"
	LogRejected               ActionKind = "rejected"
	LogCertificateCancelled   ActionKind = "certificate_cancelled"
	LogSuperseded             ActionKind = "superseded"
	LogDraftUpdated           ActionKind = "draft_updated"
)

var actionLogKinds = map[Action]ActionKind{
	ActionSubmit:                 LogSubmitted,
	ActionStartScrutiny:          LogScrutinyStarted,
	ActionVerifyDocuments:        LogDocumentVerified,
	ActionSendBackForCorrections: LogSentBackForCorrections,
	ActionRevertToApplicant:      LogRevertedByDTDO,
	ActionResubmitCorrection:     LogCorrectionResubmitted,
	ActionScheduleInspection:     LogInspectionScheduled,
	ActionCancelInspection:       LogInspectionCancelled,
	ActionCompleteInspection:     LogInspectionCompleted,
	ActionRaiseObjections:        LogObjectionsRaised,
	ActionVerifyForPayment:       LogVerifiedForPayment,
	ActionApprove:                LogApproved,
	ActionApproveCancellation:    LogApproved,
	ActionReject:                 LogRejected,
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := actionLogKinds[a]; !ok {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// LogKind is the action log label recorded when a succeeds.
func (a Action) LogKind() ActionKind {
	return actionLogKinds[a]
}

func (a Action) String() string { return string(a) }

// ApplicationAction is one append-only audit row.
type ApplicationAction struct {
	ID             string     `json:"id"`
	ApplicationID  string     `json:"applicationId"`
	ActorID        string     `json:"actorId"`
	ActorRole      Role       `json:"actorRole"`
	ActionKind     ActionKind `json:"actionKind"`
	FromStatus     Status     `json:"fromStatus,omitempty"`
	ToStatus       Status     `json:"toStatus"`
	Feedback       string     `json:"feedback,omitempty"`
	IssuesFound    []string   `json:"issuesFound,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ChangedStatus reports whether the row records a status change.
func (a ApplicationAction) ChangedStatus() bool {
	return a.FromStatus != a.ToStatus
}
