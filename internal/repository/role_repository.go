package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
)

const (
	msgRoleNotFound       = "role not found"
	msgRoleAlreadyHeld    = "user already has role"
	msgMembershipNotFound = "user does not have role"
)

// RoleRepo manages `roles` and the `user_roles` join table. Role names are
// stored upper case; callers normalize before calling.
type RoleRepo struct{ db *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{db: db} }

// GetByName looks a role up by its exact name.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := conn(ctx, r.db).QueryRowContext(ctx, "SELECT id, name FROM roles WHERE name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		return nil, translate("role.get", err, msgRoleNotFound, "")
	}
	return &role, nil
}

// List returns all roles ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	const op = "role.list"
	rows, err := conn(ctx, r.db).QueryContext(ctx, "SELECT id, name FROM roles ORDER BY name")
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	defer rows.Close()
	roles := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, apperr.Classify(op, err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Classify(op, err)
	}
	return roles, nil
}

// ListForUser returns the role names held by userID.
func (r *RoleRepo) ListForUser(ctx context.Context, userID uint64) ([]string, error) {
	names, err := roleNamesForUser(ctx, conn(ctx, r.db), userID)
	if err != nil {
		return nil, apperr.Classify("role.list_for_user", err)
	}
	return names, nil
}

// CountForUser returns the size of userID's role set.
func (r *RoleRepo) CountForUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, "SELECT COUNT(*) FROM user_roles WHERE user_id=?", userID).Scan(&n)
	if err != nil {
		return 0, apperr.Classify("role.count_for_user", err)
	}
	return n, nil
}

// AddMembership grants roleID to userID. A second grant hits the unique
// key on (user_id, role_id) and comes back as Conflict.
func (r *RoleRepo) AddMembership(ctx context.Context, userID, roleID uint64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, "INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID)
	return translate("role.add_membership", err, msgRoleNotFound, msgRoleAlreadyHeld)
}

// RemoveMembership revokes roleID from userID, or returns NotFound when the
// user does not hold it.
func (r *RoleRepo) RemoveMembership(ctx context.Context, userID, roleID uint64) error {
	const op = "role.remove_membership"
	res, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=? AND role_id=?", userID, roleID)
	if err != nil {
		return apperr.Classify(op, err)
	}
	return rowsAffectedOrNotFound(op, res, msgMembershipNotFound)
}

// Ensure creates the role when missing and returns it either way.
func (r *RoleRepo) Ensure(ctx context.Context, name string) (*model.Role, error) {
	if _, err := conn(ctx, r.db).ExecContext(ctx, "INSERT IGNORE INTO roles (name) VALUES (?)", name); err != nil {
		return nil, apperr.Classify("role.ensure", err)
	}
	return r.GetByName(ctx, name)
}
