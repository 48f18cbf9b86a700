// internal/models/kind.go
package models

import (
	"database/sql/driver"
	"fmt"
)

// Kind classifies an application.
type Kind string

const (
	KindNewRegistration Kind = "new_registration"
	KindAddRooms        Kind = "add_rooms"
	KindDeleteRooms     Kind = "delete_rooms"
	KindRenewal         Kind = "renewal"
	KindCancellation    Kind = "cancellation"
	KindLegacyRC        Kind = "legacy_rc"
)

var kindCodes = map[Kind]string{
	KindNewRegistration: "NR",
	KindAddRooms:        "AR",
	KindDeleteRooms:     "DR",
	KindRenewal:         "RN",
	KindCancellation:    "CN",
	KindLegacyRC:        "LR",
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindCodes[k]; !ok {
		return "", fmt.Errorf("unknown application kind %q", s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := kindCodes[k]
	return ok
}

// Code is the kind token embedded in application numbers.
func (k Kind) Code() string {
	return kindCodes[k]
}

// RequiresParent reports whether the kind amends an approved application.
func (k Kind) RequiresParent() bool {
	switch k {
	case KindAddRooms, KindDeleteRooms, KindRenewal, KindCancellation:
		return true
	}
	return false
}

// RequiresInspection reports whether a site visit precedes payment.
func (k Kind) RequiresInspection() bool {
	return k == KindNewRegistration || k == KindAddRooms
}

// IssuesCertificate reports whether approval produces a new certificate.
func (k Kind) IssuesCertificate() bool {
	return k != KindCancellation
}

// SettledParentStatus is the status the parent moves to when a child of this
// kind is approved.
func (k Kind) SettledParentStatus() (Status, bool) {
	switch k {
	case KindAddRooms, KindDeleteRooms, KindRenewal:
		return StatusSuperseded, true
	case KindCancellation:
		return StatusCertificateCancelled, true
	}
	return "", false
}

func (k Kind) String() string { return string(k) }

func (k Kind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("refusing to persist invalid kind %q", string(k))
	}
	return string(k), nil
}

func (k *Kind) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Kind", src)
	}
	parsed, err := ParseKind(raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
