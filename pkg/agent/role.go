// Package agent defines the closed set of agent roles and the values that
// flow between the router, the handoff protocol and the feedback loop.
package agent

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// AgentRole identifies one of the fixed specialists or the orchestrator.
// The zero value is not a valid role.
type AgentRole uint8

const (
	Orchestrator AgentRole = iota + 1
	Coder
	Finance
	Home
	Health
	Travel
	Research

	// roleCount must stay last.
	roleCount
)

// RoleTableSize is the length of a role-indexed array. Index 0 is unused.
// Packages that keep their own per-role tables guard them with
//
//	_ = [1]struct{}{}[len(table)-agent.RoleTableSize]
//
// so that adding a role breaks the build until every table covers it.
const RoleTableSize = int(roleCount)

// Every role-indexed table below is an array literal keyed by role. The
// blank guards fail to compile when a table and the enum disagree in size,
// so a new role cannot be added without touching each table.
var roleNames = [...]string{
	Orchestrator: "orchestrator",
	Coder:        "coder",
	Finance:      "finance",
	Home:         "home",
	Health:       "health",
	Travel:       "travel",
	Research:     "research",
}

var roleDescriptions = [...]string{
	Orchestrator: "General coordinator. Handles chit-chat, ambiguous requests and anything no specialist owns.",
	Coder:        "Software engineering: writing, reviewing and debugging code, pull requests, builds and deployments.",
	Finance:      "Personal finance: budgets, spending, bank accounts, invoices, taxes and investments.",
	Home:         "Smart home and household: lights, thermostat, devices, chores, groceries and maintenance.",
	Health:       "Health and fitness: workouts, sleep, nutrition, medication reminders and symptoms.",
	Travel:       "Travel planning: flights, hotels, itineraries, visas and bookings.",
	Research:     "Research and analysis: finding sources, summarising papers and comparing options.",
}

var (
	_ = [1]struct{}{}[len(roleNames)-int(roleCount)]
	_ = [1]struct{}{}[len(roleDescriptions)-int(roleCount)]
)

// AllRoles returns every valid role in declaration order.
func AllRoles() []AgentRole {
	roles := make([]AgentRole, 0, int(roleCount)-1)
	for r := Orchestrator; r < roleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

// Specialists returns every role except the orchestrator.
func Specialists() []AgentRole {
	roles := make([]AgentRole, 0, int(roleCount)-2)
	for r := Orchestrator + 1; r < roleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

// Valid reports whether r belongs to the closed role set.
func (r AgentRole) Valid() bool {
	return r >= Orchestrator && r < roleCount
}

// IsSpecialist reports whether r is a valid non-orchestrator role.
func (r AgentRole) IsSpecialist() bool {
	return r.Valid() && r != Orchestrator
}

func (r AgentRole) String() string {
	if !r.Valid() {
		return fmt.Sprintf("AgentRole(%d)", uint8(r))
	}
	return roleNames[r]
}

// Description is the one-line capability summary shown to the classifier.
func (r AgentRole) Description() string {
	if !r.Valid() {
		return ""
	}
	return roleDescriptions[r]
}

// ParseAgentRole resolves a role name. Unknown names are a validation error.
func ParseAgentRole(name string) (AgentRole, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for r := Orchestrator; r < roleCount; r++ {
		if roleNames[r] == key {
			return r, nil
		}
	}
	return 0, &ValidationError{Field: "agent", Message: fmt.Sprintf("unknown agent role %q", name)}
}

// MustParseAgentRole is ParseAgentRole for static inputs.
func MustParseAgentRole(name string) AgentRole {
	r, err := ParseAgentRole(name)
	if err != nil {
		panic(err)
	}
	return r
}

func (r AgentRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, &ValidationError{Field: "agent", Message: fmt.Sprintf("invalid agent role %d", uint8(r))}
	}
	return []byte(roleNames[r]), nil
}

func (r *AgentRole) UnmarshalText(text []byte) error {
	parsed, err := ParseAgentRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores roles by name so rows stay readable and survive enum reordering.
func (r AgentRole) Value() (driver.Value, error) {
	if r == 0 {
		return nil, nil
	}
	if !r.Valid() {
		return nil, &ValidationError{Field: "agent", Message: fmt.Sprintf("invalid agent role %d", uint8(r))}
	}
	return roleNames[r], nil
}

func (r *AgentRole) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = 0
		return nil
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("agent role: unsupported scan type %T", src)
	}
}
