// internal/models/certificate.go
package models

import "time"

// Certificate is the immutable registration certificate issued on approval.
type Certificate struct {
	ID                string `json:"id"`
	CertificateNumber string `json:"certificateNumber"`
	Serial            int64  `json:"serial"`
	ApplicationID     string `json:"applicationId"`
	IssuedBy          string `json:"issuedBy"`
	District          string `json:"district"`

	// Snapshot at issuance.
	PropertyFacts

	ValidFrom time.Time `json:"validFrom"`
	ValidUpto time.Time `json:"validUpto"`
	IssuedAt  time.Time `json:"issuedAt"`
}
