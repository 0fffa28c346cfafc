package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wildcard grants every permission to the role that holds it.
const Wildcard = "*"

// RoleTable maps role names to their permissions. It is read-only after
// construction and safe for concurrent use.
type RoleTable struct {
	roles map[string]map[string]struct{}
}

// NewRoleTable copies def into an immutable table.
func NewRoleTable(def map[string][]string) (*RoleTable, error) {
	if len(def) == 0 {
		return nil, errors.New("permission: role table is empty")
	}

	t := &RoleTable{roles: make(map[string]map[string]struct{}, len(def))}
	for role, perms := range def {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, errors.New("permission: empty role name")
		}
		if _, dup := t.roles[role]; dup {
			return nil, fmt.Errorf("permission: duplicate role %q", role)
		}
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			if p == "" {
				return nil, fmt.Errorf("permission: empty permission on role %q", role)
			}
			set[p] = struct{}{}
		}
		t.roles[role] = set
	}
	return t, nil
}

// DefaultRoles is the built-in role table definition.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"admin":   {Wildcard},
		"manager": {"users:read", "users:write"},
		"user":    {"profile:read"},
		"guest":   {},
	}
}

// DefaultRoleTable returns a table built from DefaultRoles.
func DefaultRoleTable() *RoleTable {
	t, err := NewRoleTable(DefaultRoles())
	if err != nil {
		panic(err)
	}
	return t
}

// Decide allows when nothing is required, when role is itself one of the
// required roles, or when role holds the wildcard.
func (t *RoleTable) Decide(role string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return t.HasPermission(role, Wildcard)
}

// HasPermission reports whether role grants perm, directly or by wildcard.
func (t *RoleTable) HasPermission(role, perm string) bool {
	perms, ok := t.roles[role]
	if !ok {
		return false
	}
	if _, ok := perms[Wildcard]; ok {
		return true
	}
	_, ok = perms[perm]
	return ok
}

// Known reports whether role is defined.
func (t *RoleTable) Known(role string) bool {
	_, ok := t.roles[role]
	return ok
}

// Roles lists the defined roles in sorted order.
func (t *RoleTable) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
