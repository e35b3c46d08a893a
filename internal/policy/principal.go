package policy

import "strings"

// Role names seeded at startup.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Principal is an authenticated caller: a user id plus the role names the
// credential service vouched for.
type Principal struct {
	ID    uint64
	Roles []string
}

// NewPrincipal builds a Principal with normalized, de-duplicated role names.
func NewPrincipal(id uint64, roles ...string) Principal {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = NormalizeRole(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return Principal{ID: id, Roles: out}
}

// NormalizeRole trims and upper-cases a role name.
func NormalizeRole(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	role = NormalizeRole(role)
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (p Principal) IsAdmin() bool { return p.HasRole(RoleAdmin) }
