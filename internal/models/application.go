// internal/models/application.go
package models

import "time"

// Application is the registration record driven through the lifecycle.
type Application struct {
	ID                  string `json:"id"`
	ApplicationNumber   string `json:"applicationNumber"`
	Serial              int64  `json:"serial"`
	Kind                Kind   `json:"kind"`
	ParentApplicationID string `json:"parentApplicationId,omitempty"`
	OwnerUserID         string `json:"ownerUserId"`
	District            string `json:"district"`
	Tehsil              string `json:"tehsil,omitempty"`

	PropertyFacts

	Status            Status `json:"status"`
	RevertedFromState Status `json:"revertedFromState,omitempty"`
	CurrentPage       int    `json:"currentPage"`

	AssignedDealingAssistantID string   `json:"assignedDealingAssistantId,omitempty"`
	DTDOID                     string   `json:"dtdoId,omitempty"`
	CorrectionNotes            string   `json:"correctionNotes,omitempty"`
	CorrectionIssues           []string `json:"correctionIssues,omitempty"`

	InspectionDate        *time.Time `json:"inspectionDate,omitempty"`
	SubmittedAt           *time.Time `json:"submittedAt,omitempty"`
	CertificateIssuedDate *time.Time `json:"certificateIssuedDate,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PropertyFacts are the owner-editable facts snapshotted onto a certificate.
type PropertyFacts struct {
	PropertyName string `json:"propertyName,omitempty"`
	OwnerName    string `json:"ownerName,omitempty"`
	Address      string `json:"address,omitempty"`
	RoomCount    int    `json:"roomCount,omitempty"`
	Category     string `json:"category,omitempty"`
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	if a.CorrectionIssues != nil {
		c.CorrectionIssues = append([]string(nil), a.CorrectionIssues...)
	}
	c.InspectionDate = cloneTime(a.InspectionDate)
	c.SubmittedAt = cloneTime(a.SubmittedAt)
	c.CertificateIssuedDate = cloneTime(a.CertificateIssuedDate)
	return &c
}

// ActiveKey identifies the (owner, kind, parent) slot that may hold at most
// one non-terminal application.
type ActiveKey struct {
	OwnerUserID         string
	Kind                Kind
	ParentApplicationID string
}

func (a *Application) ActiveKey() ActiveKey {
	return ActiveKey{
		OwnerUserID:         a.OwnerUserID,
		Kind:                a.Kind,
		ParentApplicationID: a.ParentApplicationID,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
