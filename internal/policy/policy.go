// Package policy decides whether a principal may perform an operation.
// Each operation maps to a list of rules; role-gated rules are evaluated
// before ownership rules and the first denial wins. Unknown operations are
// denied.
package policy

import (
	"context"

	"github.com/iliyamo/library-reservation/internal/apperr"
)

// Operation names an action guarded by the policy.
type Operation string

const (
	OpBrowseBooks        Operation = "book.browse"
	OpViewBook           Operation = "book.view"
	OpPublicAvailability Operation = "book.availability"
	OpCreateBook         Operation = "book.create"
	OpUpdateBook         Operation = "book.update"
	OpDeleteBook         Operation = "book.delete"

	OpCreateReservation    Operation = "reservation.create"
	OpViewReservation      Operation = "reservation.view"
	OpUpdateReservation    Operation = "reservation.update"
	OpDeleteReservation    Operation = "reservation.delete"
	OpListUserReservations Operation = "reservation.list_user"
	OpListBookReservations Operation = "reservation.list_book"
	OpListAllReservations  Operation = "reservation.list_all"

	OpViewUser   Operation = "user.view"
	OpUpdateUser Operation = "user.update"
	OpDeleteUser Operation = "user.delete"
	OpListUsers  Operation = "user.list"

	OpAddRole    Operation = "role.add"
	OpRemoveRole Operation = "role.remove"
	OpListRoles  Operation = "role.list"
)

// RuleKind tags the variants of Rule.
type RuleKind uint8

const (
	// RulePublic always allows.
	RulePublic RuleKind = iota
	// RuleRoleGated allows principals holding one of Rule.Roles.
	RuleRoleGated
	// RuleSelfOrAdmin allows admins and the owner of the target resource.
	RuleSelfOrAdmin
)

// Rule is one authorization requirement.
type Rule struct {
	Kind  RuleKind
	Roles []string
}

func Public() Rule                   { return Rule{Kind: RulePublic} }
func RoleGated(roles ...string) Rule { return Rule{Kind: RuleRoleGated, Roles: roles} }
func SelfOrAdmin() Rule              { return Rule{Kind: RuleSelfOrAdmin} }

// Reason explains a denial. It is logged, not shown to clients verbatim.
type Reason string

const (
	ReasonMissingRole      Reason = "missing role"
	ReasonNotOwner         Reason = "not resource owner"
	ReasonUnknownOperation Reason = "unknown operation"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// Err returns nil for an allow and a Forbidden error otherwise.
func (d Decision) Err(op Operation) error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden(string(op), string(d.Reason))
}

// Policy holds the operation-to-rules table.
type Policy struct {
	rules map[Operation][]Rule
}

// New builds a Policy from an explicit table.
func New(rules map[Operation][]Rule) *Policy {
	cp := make(map[Operation][]Rule, len(rules))
	for op, rs := range rules {
		cp[op] = append([]Rule(nil), rs...)
	}
	return &Policy{rules: cp}
}

// Default returns the table used by the service.
func Default() *Policy {
	member := RoleGated(RoleUser, RoleAdmin)
	admin := RoleGated(RoleAdmin)
	return New(map[Operation][]Rule{
		OpBrowseBooks:        {Public()},
		OpViewBook:           {Public()},
		OpPublicAvailability: {Public()},
		OpCreateBook:         {admin},
		OpUpdateBook:         {admin},
		OpDeleteBook:         {admin},

		OpCreateReservation:    {member, SelfOrAdmin()},
		OpViewReservation:      {member, SelfOrAdmin()},
		OpUpdateReservation:    {member, SelfOrAdmin()},
		OpDeleteReservation:    {member, SelfOrAdmin()},
		OpListUserReservations: {member, SelfOrAdmin()},
		OpListBookReservations: {admin},
		OpListAllReservations:  {admin},

		OpViewUser:   {member, SelfOrAdmin()},
		OpUpdateUser: {member, SelfOrAdmin()},
		OpDeleteUser: {member, SelfOrAdmin()},
		OpListUsers:  {admin},

		OpAddRole:    {admin},
		OpRemoveRole: {admin},
		OpListRoles:  {admin},
	})
}

// Rules returns the rules declared for op.
func (p *Policy) Rules(op Operation) ([]Rule, bool) {
	rs, ok := p.rules[op]
	return rs, ok
}

// NeedsOwner reports whether deciding op requires the target owner id.
func (p *Policy) NeedsOwner(op Operation) bool {
	for _, r := range p.rules[op] {
		if r.Kind == RuleSelfOrAdmin {
			return true
		}
	}
	return false
}

// CanAct decides whether principal may perform op on a resource owned by
// targetOwnerID. targetOwnerID is ignored by operations without an
// ownership rule.
func (p *Policy) CanAct(principal Principal, op Operation, targetOwnerID uint64) Decision {
	rules, ok := p.rules[op]
	if !ok {
		return deny(ReasonUnknownOperation)
	}
	if d := evalRoles(principal, rules); !d.Allowed {
		return d
	}
	return evalOwnership(principal, rules, targetOwnerID)
}

// OwnerLookup resolves the owner of the target resource. It may hit storage.
type OwnerLookup func(ctx context.Context) (uint64, error)

// Authorize evaluates role rules first and calls lookup only when an
// ownership rule applies and the role rules passed. Lookup errors are
// returned as is.
func (p *Policy) Authorize(ctx context.Context, principal Principal, op Operation, lookup OwnerLookup) error {
	rules, ok := p.rules[op]
	if !ok {
		return deny(ReasonUnknownOperation).Err(op)
	}
	if d := evalRoles(principal, rules); !d.Allowed {
		return d.Err(op)
	}
	if !p.NeedsOwner(op) {
		return nil
	}
	var owner uint64
	if !principal.IsAdmin() {
		if lookup == nil {
			return deny(ReasonNotOwner).Err(op)
		}
		var err error
		if owner, err = lookup(ctx); err != nil {
			return err
		}
	}
	return evalOwnership(principal, rules, owner).Err(op)
}

func evalRoles(principal Principal, rules []Rule) Decision {
	for _, r := range rules {
		if r.Kind == RuleRoleGated && !principal.HasAnyRole(r.Roles) {
			return deny(ReasonMissingRole)
		}
	}
	return allow()
}

func evalOwnership(principal Principal, rules []Rule, owner uint64) Decision {
	for _, r := range rules {
		if r.Kind != RuleSelfOrAdmin {
			continue
		}
		if !principal.IsAdmin() && principal.ID != owner {
			return deny(ReasonNotOwner)
		}
	}
	return allow()
}
