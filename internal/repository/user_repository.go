package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
)

const userColumns = "id, username, email, password_hash, name, last_name, created_at, updated_at"

const (
	msgUserNotFound  = "user not found"
	msgUserDuplicate = "username or email already taken"
)

// UserRepo persists rows of `users` and reads their role names.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

type scanner interface{ Scan(dest ...any) error }

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts u and assigns the generated id. Role memberships are
// written separately through RoleRepo.AddMembership.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const op = "user.create"
	u.Email = NormalizeEmail(u.Email)
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, name, last_name) VALUES (?,?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, u.Name, u.LastName)
	if err != nil {
		return translate(op, err, msgUserNotFound, msgUserDuplicate)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.Classify(op, err)
	}
	u.ID = uint64(id)
	return nil
}

// getOne reads a single user matching where. With lock set the row is read
// FOR UPDATE, which MySQL only accepts after LIMIT.
func (r *UserRepo) getOne(ctx context.Context, op, where string, lock bool, arg any) (*model.User, error) {
	db := conn(ctx, r.db)
	q := "SELECT " + userColumns + " FROM users WHERE " + where + " LIMIT 1"
	if lock {
		q += " FOR UPDATE"
	}
	u, err := scanUser(db.QueryRowContext(ctx, q, arg))
	if err != nil {
		return nil, translate(op, err, msgUserNotFound, msgUserDuplicate)
	}
	if u.Roles, err = roleNamesForUser(ctx, db, u.ID); err != nil {
		return nil, apperr.Classify(op, err)
	}
	return u, nil
}

// GetByID fetches a user and its roles.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "user.get", "id=?", false, id)
}

// GetByUsername fetches a user by its login name.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "user.get_by_username", "username=?", false, strings.TrimSpace(username))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "user.get_by_email", "email=?", false, NormalizeEmail(email))
}

// LockByID reads the user row with SELECT ... FOR UPDATE. It must run
// inside RunInTx; the lock is held until the transaction ends.
func (r *UserRepo) LockByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "user.lock", "id=?", true, id)
}

// LockByUsername is LockByID keyed by username.
func (r *UserRepo) LockByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "user.lock", "username=?", true, strings.TrimSpace(username))
}

// Update writes the mutable columns of u. Username never changes.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	const op = "user.update"
	u.Email = NormalizeEmail(u.Email)
	// MySQL reports zero affected rows for an unchanged row, so existence is
	// checked by the caller before updating.
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE users SET email=?, password_hash=?, name=?, last_name=? WHERE id=?",
		u.Email, u.PasswordHash, u.Name, u.LastName, u.ID)
	return translate(op, err, msgUserNotFound, msgUserDuplicate)
}

// Delete removes the user together with its role memberships and refresh
// tokens. Run it inside RunInTx.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	const op = "user.delete"
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", id); err != nil {
		return apperr.Classify(op, err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", id); err != nil {
		return apperr.Classify(op, err)
	}
	res, err := db.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return apperr.Classify(op, err)
	}
	return rowsAffectedOrNotFound(op, res, msgUserNotFound)
}

// List returns every user ordered by id, roles included.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const op = "user.list"
	db := conn(ctx, r.db)
	rows, err := db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	defer rows.Close()

	users := []model.User{}
	index := map[uint64]int{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Classify(op, err)
		}
		u.Roles = []string{}
		index[u.ID] = len(users)
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Classify(op, err)
	}

	mrows, err := db.QueryContext(ctx,
		"SELECT ur.user_id, r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id ORDER BY ur.user_id, r.name")
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var (
			userID uint64
			name   string
		)
		if err := mrows.Scan(&userID, &name); err != nil {
			return nil, apperr.Classify(op, err)
		}
		if i, ok := index[userID]; ok {
			users[i].Roles = append(users[i].Roles, name)
		}
	}
	if err := mrows.Err(); err != nil {
		return nil, apperr.Classify(op, err)
	}
	return users, nil
}

// CountReservations returns how many reservations the user owns.
func (r *UserRepo) CountReservations(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE user_id=?", userID).Scan(&n)
	if err != nil {
		return 0, apperr.Classify("user.count_reservations", err)
	}
	return n, nil
}

func roleNamesForUser(ctx context.Context, db DBTX, userID uint64) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id=? ORDER BY r.name", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
