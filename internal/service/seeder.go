package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/policy"
)

// AdminAccount is the bootstrap administrator created when missing.
type AdminAccount struct {
	Username string
	Email    string
	Password string
	Name     string
	LastName string
}

// Seeder creates the roles every user needs and the first administrator.
// It is idempotent and runs at startup.
type Seeder struct {
	roles RoleStore
	users *UserService
	store UserStore
	log   *zap.Logger
}

func NewSeeder(roles RoleStore, users *UserService, store UserStore, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{roles: roles, users: users, store: store, log: log.Named("seeder")}
}

// Seed ensures ADMIN and USER exist, then creates admin when its username
// is free. An admin without email or password is skipped.
func (s *Seeder) Seed(ctx context.Context, admin AdminAccount) error {
	for _, name := range []string{policy.RoleAdmin, policy.RoleUser} {
		if _, err := s.roles.Ensure(ctx, name); err != nil {
			return err
		}
	}
	if admin.Username == "" {
		admin.Username = "admin"
	}
	if admin.Email == "" || admin.Password == "" {
		s.log.Warn("admin account not configured, skipping")
		return nil
	}

	_, err := s.store.GetByUsername(ctx, admin.Username)
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.KindNotFound:
		return err
	}

	u, err := s.users.Register(ctx, Registration{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
		Name:     admin.Name,
		LastName: admin.LastName,
	}, policy.RoleAdmin)
	if err != nil {
		return err
	}
	s.log.Info("admin user created", zap.Uint64("user_id", u.ID), zap.String("username", u.Username))
	return nil
}
