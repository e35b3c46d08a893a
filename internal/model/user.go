package model

import "time"

// User represents an application user record as stored in the
// `users` table. Role memberships live in `user_roles`; Roles is
// filled by the repository when the caller asks for it.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Username     – unique login name. Never changes after signup.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Name         – given name.
//	LastName     – family name.
//	Roles        – upper-case role names held by the user.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`         // users.id
	Username     string    `json:"username"`   // users.username
	Email        string    `json:"email"`      // users.email
	PasswordHash string    `json:"-"`          // users.password_hash
	Name         string    `json:"name"`       // users.name
	LastName     string    `json:"last_name"`  // users.last_name
	Roles        []string  `json:"roles"`      // user_roles -> roles.name
	CreatedAt    time.Time `json:"created_at"` // users.created_at
	UpdatedAt    time.Time `json:"updated_at"` // users.updated_at
}

// Role represents a row in the `roles` table.
//
// Fields:
//
//	ID   – numeric identifier of the role.
//	Name – unique role name (ADMIN, USER).
type Role struct {
	ID   uint64 `json:"id"`   // roles.id
	Name string `json:"name"` // roles.name
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is not stored, only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
