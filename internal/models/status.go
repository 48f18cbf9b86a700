// internal/models/status.go
package models

import (
	"database/sql/driver"
	"fmt"
)

// Status is the closed set of application lifecycle states. Values outside
// the set can neither be parsed nor written to the database.
type Status string

const (
	StatusDraft                  Status = "draft"
	StatusSubmitted              Status = "submitted"
	StatusUnderScrutiny          Status = "under_scrutiny"
	StatusForwardedToDTDO        Status = "forwarded_to_dtdo"
	StatusInspectionScheduled    Status = "inspection_scheduled"
	StatusInspectionCompleted    Status = "inspection_completed"
	StatusVerifiedForPayment     Status = "verified_for_payment"
	StatusApproved               Status = "approved"
	StatusRejected               Status = "rejected"
	StatusSentBackForCorrections Status = "sent_back_for_corrections"
	StatusRevertedByDTDO         Status = "reverted_by_dtdo"
	StatusSuperseded             Status = "superseded"
	StatusCertificateCancelled   Status = "certificate_cancelled"
)

var allStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderScrutiny,
	StatusForwardedToDTDO,
	StatusInspectionScheduled,
	StatusInspectionCompleted,
	StatusVerifiedForPayment,
	StatusApproved,
	StatusRejected,
	StatusSentBackForCorrections,
	StatusRevertedByDTDO,
	StatusSuperseded,
	StatusCertificateCancelled,
}

// AllStatuses returns every lifecycle state.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further transition can leave s. A terminal
// application no longer counts toward the one-active-per-owner rule.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusSuperseded, StatusCertificateCancelled:
		return true
	}
	return false
}

// IsCorrection reports whether the owner is expected to fix and resubmit.
func (s Status) IsCorrection() bool {
	return s == StatusSentBackForCorrections || s == StatusRevertedByDTDO
}

// OwnerEditable reports whether the owner may change application content.
func (s Status) OwnerEditable() bool {
	return s == StatusDraft || s.IsCorrection()
}

func (s Status) String() string { return string(s) }

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("refusing to persist invalid status %q", string(s))
	}
	return string(s), nil
}

func (s *Status) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NullableStatus scans the optional reverted_from_state column, where the
// empty string means unset.
type NullableStatus struct {
	Status Status
}

func (n NullableStatus) Value() (driver.Value, error) {
	if n.Status == "" {
		return "", nil
	}
	return n.Status.Value()
}

func (n *NullableStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		n.Status = ""
		return nil
	case string:
		if v == "" {
			n.Status = ""
			return nil
		}
	case []byte:
		if len(v) == 0 {
			n.Status = ""
			return nil
		}
	}
	return n.Status.Scan(src)
}
