package auth

import (
	"fmt"
	"strings"
)

// Role is a named authority bundle ordered by an integer level.
type Role string

const (
	RoleOwner        Role = "OWNER"
	RoleAdmin        Role = "ADMIN"
	RoleFleetManager Role = "FLEET_MANAGER"
	RoleAccountant   Role = "ACCOUNTANT"
	RoleDriver       Role = "DRIVER"
)

// roleLevels orders roles for escalation checks. FLEET_MANAGER and ACCOUNTANT
// share level 3 on purpose: they are peers, neither higher nor lower, and the
// escalation rules depend on that.
var roleLevels = map[Role]int{
	RoleOwner:        5,
	RoleAdmin:        4,
	RoleFleetManager: 3,
	RoleAccountant:   3,
	RoleDriver:       1,
}

// Level returns the ordering level for the role, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether the role is one of the known authorities.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Higher reports whether r outranks other. Equal levels are peers.
func (r Role) Higher(other Role) bool {
	return r.Level() > other.Level()
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return role, nil
}
