package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
)

const msgLastRole = "at least one role required"

// RoleService mutates role memberships while keeping every user's role set
// non-empty and free of duplicates. Both mutations lock the user row so two
// concurrent removals cannot each see the other's role and empty the set.
type RoleService struct {
	tx     TxRunner
	users  UserStore
	roles  RoleStore
	policy *policy.Policy
	log    *zap.Logger
}

func NewRoleService(tx TxRunner, users UserStore, roles RoleStore, pol *policy.Policy, log *zap.Logger) *RoleService {
	if pol == nil {
		pol = policy.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{tx: tx, users: users, roles: roles, policy: pol, log: log.Named("roles")}
}

// AddRole grants roleName to username and returns the user with its new
// role set.
func (s *RoleService) AddRole(ctx context.Context, p policy.Principal, username, roleName string) (*model.User, error) {
	const op = policy.OpAddRole
	target := []zap.Field{zap.String("username", username), zap.String("role", roleName)}
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err, target...)
	}
	name := policy.NormalizeRole(roleName)
	if name == "" {
		return nil, apperr.Invalid(string(op), "role name required")
	}

	var out *model.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.users.LockByUsername(ctx, username)
		if err != nil {
			return err
		}
		role, err := s.roles.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if hasRole(u.Roles, role.Name) {
			return apperr.Conflict(string(op), "user already has role")
		}
		if err := s.roles.AddMembership(ctx, u.ID, role.ID); err != nil {
			return err
		}
		if u.Roles, err = s.roles.ListForUser(ctx, u.ID); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, fail(s.log, op, p, err, target...)
	}
	s.log.Info("role added", zap.Uint64("principal_id", p.ID), zap.Uint64("user_id", out.ID), zap.String("role", name))
	return out, nil
}

// RemoveRole revokes roleName from username unless it is the user's last
// role.
func (s *RoleService) RemoveRole(ctx context.Context, p policy.Principal, username, roleName string) (*model.User, error) {
	const op = policy.OpRemoveRole
	target := []zap.Field{zap.String("username", username), zap.String("role", roleName)}
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err, target...)
	}
	name := policy.NormalizeRole(roleName)
	if name == "" {
		return nil, apperr.Invalid(string(op), "role name required")
	}

	var out *model.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.users.LockByUsername(ctx, username)
		if err != nil {
			return err
		}
		role, err := s.roles.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if !hasRole(u.Roles, role.Name) {
			return apperr.NotFound(string(op), "user does not have role")
		}
		n, err := s.roles.CountForUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return apperr.Conflict(string(op), msgLastRole)
		}
		if err := s.roles.RemoveMembership(ctx, u.ID, role.ID); err != nil {
			return err
		}
		if u.Roles, err = s.roles.ListForUser(ctx, u.ID); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, fail(s.log, op, p, err, target...)
	}
	s.log.Info("role removed", zap.Uint64("principal_id", p.ID), zap.Uint64("user_id", out.ID), zap.String("role", name))
	return out, nil
}

// ListRoles returns every known role. Admin only.
func (s *RoleService) ListRoles(ctx context.Context, p policy.Principal) ([]model.Role, error) {
	const op = policy.OpListRoles
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err)
	}
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fail(s.log, op, p, err)
	}
	return roles, nil
}
