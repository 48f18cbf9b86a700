// internal/models/role.go
package models

import "fmt"

type Role string

const (
	RoleOwner                  Role = "owner"
	RoleDealingAssistant       Role = "dealing_assistant"
	RoleDistrictTourismOfficer Role = "district_tourism_officer"
	RoleStateAdmin             Role = "state_admin"
)

type Capability string

const (
	CapEditOwnApplication Capability = "edit_own_application"
	CapScrutinize         Capability = "scrutinize"
	CapDistrictDecision   Capability = "district_decision"
	CapInspect            Capability = "inspect"
	CapOverrideInspection Capability = "override_inspection"
	CapCrossDistrict      Capability = "cross_district"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleOwner: {
		CapEditOwnApplication: true,
	},
	RoleDealingAssistant: {
		CapScrutinize: true,
	},
	RoleDistrictTourismOfficer: {
		CapDistrictDecision:   true,
		CapInspect:            true,
		CapOverrideInspection: true,
	},
	RoleStateAdmin: {
		CapScrutinize:         true,
		CapDistrictDecision:   true,
		CapInspect:            true,
		CapOverrideInspection: true,
		CapCrossDistrict:      true,
	},
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleCapabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Can reports whether the role holds the capability.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

func (r Role) IsOfficer() bool {
	return r != RoleOwner && r.Valid()
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Actor is whoever issues an action.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	District string `json:"district,omitempty"`
}

func (a Actor) Can(c Capability) bool {
	return a.Role.Can(c)
}

// CoversDistrict reports whether an officer may act on applications routed
// to district.
func (a Actor) CoversDistrict(district string) bool {
	return a.Can(CapCrossDistrict) || a.District == district
}
