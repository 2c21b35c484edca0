// Package rbac maps member roles to capabilities and guards routes with them.
package rbac

import "github.com/clubroster/clubroster/internal/members"

// Capabilities checked by handlers.
const (
	// CapEditUsers allows viewing and editing other members' profiles and exporting the roster.
	CapEditUsers = "edit_users"
	// CapManageOptions allows changing plugin options.
	CapManageOptions = "manage_options"
)

// roleCapabilities lists the capabilities granted to each role.
var roleCapabilities = map[string][]string{
	members.RoleAdministrator: {CapEditUsers, CapManageOptions},
	members.RoleBoard:         {CapEditUsers},
	members.RoleMember:        {},
}

// CapabilitiesForRole returns the capabilities of role. Unknown roles have none.
func CapabilitiesForRole(role string) []string {
	caps := roleCapabilities[role]
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

// Principal describes the authenticated actor.
type Principal struct {
	MemberID     int64    `json:"member_id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
}

// Has reports whether the principal holds capability.
func (p Principal) Has(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
