package models

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleAdmin   Role = "admin"   // global administrator, crosses tenants
	RoleManager Role = "manager" // full control inside one tenant
	RoleAgent   Role = "agent"   // works only on resources assigned to them
	RoleViewer  Role = "viewer"  // read-only inside one tenant
)

// DefaultRole is assigned at registration.
const DefaultRole = RoleViewer

// Roles lists every valid role from most to least privileged.
var Roles = []Role{RoleAdmin, RoleManager, RoleAgent, RoleViewer}

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleAgent, RoleViewer:
		return true
	default:
		return false
	}
}

// Rank orders roles by privilege; higher is more privileged.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 4
	case RoleManager:
		return 3
	case RoleAgent:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}
