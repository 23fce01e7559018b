// Package authz answers role-derived capability questions about the signed in
// user. Every function is pure and does no I/O.
package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/users"
)

// ErrRoleInsufficient is an authorization denial: the identity is valid but
// its role does not grant the capability. Unlike session.ErrAccessDenied it
// never comes from the identity service.
var ErrRoleInsufficient = errors.New("role insufficient")

// Well-known role names, matched case-insensitively.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// RolelessDefaultGrant controls whether an authenticated user without a role
// (or with an unnamed role) is granted viewer, edit and delete capabilities.
// The grant is deliberate and applies to all three capabilities alike.
var RolelessDefaultGrant = true

// Capability names a gated capability.
type Capability string

const (
	CapabilityAdmin    Capability = "admin"
	CapabilityOperator Capability = "operator"
	CapabilityViewer   Capability = "viewer"
	CapabilityEdit     Capability = "edit"
	CapabilityDelete   Capability = "delete"
)

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CapabilityAdmin, CapabilityOperator, CapabilityViewer, CapabilityEdit, CapabilityDelete:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// HasRole reports an exact, case-sensitive match of the role name.
func HasRole(u *users.User, name string) bool {
	return u != nil && u.Role != nil && u.Role.Name == name
}

func roleIs(u *users.User, name string) bool {
	return u != nil && u.Role != nil && strings.EqualFold(u.Role.Name, name)
}

func rolelessGrant(u *users.User) bool {
	return RolelessDefaultGrant && u.Roleless()
}

// IsAdmin holds when the role carries admin_access or is named admin.
func IsAdmin(u *users.User) bool {
	return u != nil && (u.Role.HasAdminAccess() || roleIs(u, RoleAdmin))
}

// IsOperator holds for operators and admins.
func IsOperator(u *users.User) bool {
	return roleIs(u, RoleOperator) || IsAdmin(u)
}

// IsViewer holds for viewers, operators and admins, and for roleless users.
func IsViewer(u *users.User) bool {
	if rolelessGrant(u) {
		return true
	}
	return roleIs(u, RoleViewer) || IsOperator(u)
}

// CanEdit holds for operators and admins, and for roleless users.
func CanEdit(u *users.User) bool {
	if rolelessGrant(u) {
		return true
	}
	return IsOperator(u)
}

// CanDelete holds for admins, and for roleless users.
func CanDelete(u *users.User) bool {
	if rolelessGrant(u) {
		return true
	}
	return IsAdmin(u)
}

// Allows reports whether u holds capability c. Unknown capabilities are denied.
func Allows(u *users.User, c Capability) bool {
	switch c {
	case CapabilityAdmin:
		return IsAdmin(u)
	case CapabilityOperator:
		return IsOperator(u)
	case CapabilityViewer:
		return IsViewer(u)
	case CapabilityEdit:
		return CanEdit(u)
	case CapabilityDelete:
		return CanDelete(u)
	}
	return false
}

// Evaluator answers capability questions about the current session user.
type Evaluator struct {
	view session.View
}

// NewEvaluator binds an Evaluator to a session view.
func NewEvaluator(view session.View) *Evaluator {
	return &Evaluator{view: view}
}

func (e *Evaluator) HasRole(name string) bool { return HasRole(e.view.User(), name) }
func (e *Evaluator) IsAdmin() bool            { return IsAdmin(e.view.User()) }
func (e *Evaluator) IsOperator() bool         { return IsOperator(e.view.User()) }
func (e *Evaluator) IsViewer() bool           { return IsViewer(e.view.User()) }
func (e *Evaluator) CanEdit() bool            { return CanEdit(e.view.User()) }
func (e *Evaluator) CanDelete() bool          { return CanDelete(e.view.User()) }

// Require returns nil when the current user holds c, otherwise an error that
// matches ErrRoleInsufficient.
func (e *Evaluator) Require(c Capability) error {
	if Allows(e.view.User(), c) {
		return nil
	}
	return &DeniedError{Capability: c}
}

// DeniedError reports which capability was missing.
type DeniedError struct {
	Capability Capability
}

func (e *DeniedError) Error() string {
	switch e.Capability {
	case CapabilityAdmin:
		return "Access denied. Admin role required."
	case CapabilityOperator:
		return "Access denied. Operator role or higher required."
	}
	return fmt.Sprintf("Access denied. %s capability required.", e.Capability)
}

func (e *DeniedError) Unwrap() error {
	return ErrRoleInsufficient
}
