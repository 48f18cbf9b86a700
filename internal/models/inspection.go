// internal/models/inspection.go
package models

import (
	"fmt"
	"time"
)

type InspectionOrderStatus string

const (
	OrderScheduled    InspectionOrderStatus = "scheduled"
	OrderAcknowledged InspectionOrderStatus = "acknowledged"
	OrderInProgress   InspectionOrderStatus = "in_progress"
	OrderCompleted    InspectionOrderStatus = "completed"
	OrderCancelled    InspectionOrderStatus = "cancelled"
)

// Active reports whether the order still blocks a new one being scheduled.
func (s InspectionOrderStatus) Active() bool {
	return s == OrderScheduled || s == OrderAcknowledged || s == OrderInProgress
}

type InspectionOrder struct {
	ID                  string                `json:"id"`
	ApplicationID       string                `json:"applicationId"`
	ScheduledBy         string                `json:"scheduledBy"`
	AssignedTo          string                `json:"assignedTo"`
	ScheduledDate       time.Time             `json:"scheduledDate"`
	InspectionDate      time.Time             `json:"inspectionDate"`
	InspectionAddress   string                `json:"inspectionAddress"`
	SpecialInstructions string                `json:"specialInstructions,omitempty"`
	Status              InspectionOrderStatus `json:"status"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

var orderTransitions = map[InspectionOrderStatus][]InspectionOrderStatus{
	OrderScheduled:    {OrderAcknowledged, OrderInProgress, OrderCompleted, OrderCancelled},
	OrderAcknowledged: {OrderInProgress, OrderCompleted, OrderCancelled},
	OrderInProgress:   {OrderCompleted, OrderCancelled},
}

// CanMoveTo reports whether the order may advance to next.
func (o *InspectionOrder) CanMoveTo(next InspectionOrderStatus) bool {
	for _, s := range orderTransitions[o.Status] {
		if s == next {
			return true
		}
	}
	return false
}

type Recommendation string

const (
	RecommendApprove         Recommendation = "approve"
	RecommendRaiseObjections Recommendation = "raise_objections"
)

func ParseRecommendation(s string) (Recommendation, error) {
	switch Recommendation(s) {
	case RecommendApprove, RecommendRaiseObjections:
		return Recommendation(s), nil
	}
	return "", fmt.Errorf("unknown recommendation %q", s)
}

type InspectionReport struct {
	ID                     string         `json:"id"`
	InspectionOrderID      string         `json:"inspectionOrderId"`
	ApplicationID          string         `json:"applicationId"`
	SubmittedBy            string         `json:"submittedBy"`
	ActualInspectionDate   time.Time      `json:"actualInspectionDate"`
	RoomCountVerified      bool           `json:"roomCountVerified"`
	CategoryMeetsStandards bool           `json:"categoryMeetsStandards"`
	OverallSatisfactory    bool           `json:"overallSatisfactory"`
	Recommendation         Recommendation `json:"recommendation"`
	DetailedFindings       string         `json:"detailedFindings,omitempty"`
	CreatedAt              time.Time      `json:"createdAt"`
}

// Findings lists the failed checks, used as issuesFound when objections are raised.
func (r *InspectionReport) Findings() []string {
	var out []string
	if !r.RoomCountVerified {
		out = append(out, "room count could not be verified")
	}
	if !r.CategoryMeetsStandards {
		out = append(out, "category does not meet standards")
	}
	if !r.OverallSatisfactory {
		out = append(out, "overall inspection not satisfactory")
	}
	return out
}

// CorrectionNotes is the text copied onto the application when objections are raised.
func (r *InspectionReport) CorrectionNotes() string {
	if r.DetailedFindings != "" {
		return r.DetailedFindings
	}
	if f := r.Findings(); len(f) > 0 {
		return f[0]
	}
	return "objections raised during site inspection"
}
