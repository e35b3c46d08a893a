package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/utils"
)

// UserService handles signup and account management. A user is created
// with the USER role and cannot be deleted while it owns reservations.
type UserService struct {
	tx         TxRunner
	users      UserStore
	roles      RoleStore
	policy     *policy.Policy
	log        *zap.Logger
	bcryptCost int
}

func NewUserService(tx TxRunner, users UserStore, roles RoleStore, pol *policy.Policy, bcryptCost int, log *zap.Logger) *UserService {
	if pol == nil {
		pol = policy.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{tx: tx, users: users, roles: roles, policy: pol, log: log.Named("users"), bcryptCost: bcryptCost}
}

// Registration is the signup payload.
type Registration struct {
	Username string
	Email    string
	Password string
	Name     string
	LastName string
}

// UserPatch holds the mutable fields of a user; nil keeps the current
// value. Username is absent on purpose: it never changes.
type UserPatch struct {
	Email    *string
	Password *string
	Name     *string
	LastName *string
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Register creates a user holding the given roles, USER when none are
// given.
func (s *UserService) Register(ctx context.Context, in Registration, roles ...string) (*model.User, error) {
	const op = "user.register"
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case in.Username == "":
		return nil, apperr.Invalid(op, "username required")
	case !validEmail(in.Email):
		return nil, apperr.Invalid(op, "valid email required")
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return nil, apperr.Invalid(op, err.Error())
	}
	if len(roles) == 0 {
		roles = []string{policy.RoleUser}
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	u := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		LastName:     strings.TrimSpace(in.LastName),
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		for _, name := range roles {
			role, err := s.roles.GetByName(ctx, policy.NormalizeRole(name))
			if err != nil {
				return err
			}
			if err := s.roles.AddMembership(ctx, u.ID, role.ID); err != nil {
				return err
			}
		}
		created, err := s.users.GetByID(ctx, u.ID)
		if err != nil {
			return err
		}
		u = created
		return nil
	})
	if err != nil {
		return nil, fail(s.log, op, policy.Principal{}, err, zap.String("username", in.Username))
	}
	s.log.Info("user registered", zap.Uint64("user_id", u.ID), zap.Strings("roles", u.Roles))
	return u, nil
}

// Authenticate checks username and password and returns the user. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	const op = "user.authenticate"
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Forbidden(op, "invalid credentials")
		}
		return nil, fail(s.log, op, policy.Principal{}, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, apperr.Forbidden(op, "invalid credentials")
	}
	return u, nil
}

// Get returns user id to itself or an admin.
func (s *UserService) Get(ctx context.Context, p policy.Principal, id uint64) (*model.User, error) {
	const op = policy.OpViewUser
	u, err := s.authorized(ctx, p, op, id)
	if err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("user_id", id))
	}
	return u, nil
}

// Update applies patch to user id.
func (s *UserService) Update(ctx context.Context, p policy.Principal, id uint64, patch UserPatch) (*model.User, error) {
	const op = policy.OpUpdateUser
	u, err := s.authorized(ctx, p, op, id)
	if err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("user_id", id))
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if !validEmail(email) {
			return nil, apperr.Invalid(string(op), "valid email required")
		}
		u.Email = email
	}
	if patch.Name != nil {
		u.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.LastName != nil {
		u.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Password != nil {
		if err := utils.ValidatePassword(*patch.Password); err != nil {
			return nil, apperr.Invalid(string(op), err.Error())
		}
		hash, err := utils.HashPassword(*patch.Password, s.bcryptCost)
		if err != nil {
			return nil, fail(s.log, op, p, err, zap.Uint64("user_id", id))
		}
		u.PasswordHash = hash
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("user_id", id))
	}
	return u, nil
}

// List returns all users. Admin only.
func (s *UserService) List(ctx context.Context, p policy.Principal) ([]model.User, error) {
	const op = policy.OpListUsers
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fail(s.log, op, p, err)
	}
	return users, nil
}

// Delete removes user id. It fails with Conflict while the user still owns
// reservations; the count and the delete share one transaction holding the
// user row lock.
func (s *UserService) Delete(ctx context.Context, p policy.Principal, id uint64) error {
	const op = policy.OpDeleteUser
	if _, err := s.authorized(ctx, p, op, id); err != nil {
		return fail(s.log, op, p, err, zap.Uint64("user_id", id))
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.LockByID(ctx, id); err != nil {
			return err
		}
		n, err := s.users.CountReservations(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict(string(op), "user still owns reservations")
		}
		return s.users.Delete(ctx, id)
	})
	if err != nil {
		return fail(s.log, op, p, err, zap.Uint64("user_id", id))
	}
	s.log.Info("user deleted", zap.Uint64("principal_id", p.ID), zap.Uint64("user_id", id))
	return nil
}

func (s *UserService) authorized(ctx context.Context, p policy.Principal, op policy.Operation, id uint64) (*model.User, error) {
	var u *model.User
	lookup := func(ctx context.Context) (uint64, error) {
		got, err := s.users.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		u = got
		return got.ID, nil
	}
	if err := s.policy.Authorize(ctx, p, op, lookup); err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}
	return s.users.GetByID(ctx, id)
}
