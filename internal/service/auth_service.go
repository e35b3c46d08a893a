package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/utils"
)

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// TokenSettings configures issued credentials.
type TokenSettings struct {
	Secret         string
	AccessTTLMin   int
	RefreshTTLDays int
}

// Session is what a successful login or refresh returns.
type Session struct {
	User    *model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// AuthService issues and rotates credentials. Access tokens carry the
// user's role names at issue time; refresh tokens are opaque and stored
// hashed.
type AuthService struct {
	users    *UserService
	store    UserStore
	tokens   TokenStore
	settings TokenSettings
	log      *zap.Logger
}

func NewAuthService(users *UserService, store UserStore, tokens TokenStore, settings TokenSettings, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{users: users, store: store, tokens: tokens, settings: settings, log: log.Named("auth")}
}

// Register signs a user up and logs it in.
func (s *AuthService) Register(ctx context.Context, in Registration) (*Session, error) {
	u, err := s.users.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Login checks credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Refresh revokes raw and returns a new session for its owner, with roles
// re-read from storage.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	const op = "auth.refresh"
	hash := utils.HashRefreshRaw(strings.TrimSpace(raw))
	userID, err := s.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Forbidden(op, "invalid refresh token")
		}
		return nil, fail(s.log, op, policy.Principal{}, err)
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return nil, fail(s.log, op, policy.Principal{ID: userID}, err)
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Forbidden(op, "invalid refresh token")
		}
		return nil, fail(s.log, op, policy.Principal{ID: userID}, err)
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token when raw is set, or every token of
// userID otherwise.
func (s *AuthService) Logout(ctx context.Context, userID uint64, raw string) error {
	const op = "auth.logout"
	raw = strings.TrimSpace(raw)
	switch {
	case raw != "":
		hash := utils.HashRefreshRaw(raw)
		if _, err := s.tokens.ValidateRefresh(ctx, hash); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return apperr.Forbidden(op, "invalid refresh token")
			}
			return fail(s.log, op, policy.Principal{ID: userID}, err)
		}
		if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
			return fail(s.log, op, policy.Principal{ID: userID}, err)
		}
	case userID != 0:
		if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
			return fail(s.log, op, policy.Principal{ID: userID}, err)
		}
	default:
		return apperr.Invalid(op, "provide Authorization header or refresh_token")
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, u *model.User) (*Session, error) {
	const op = "auth.issue"
	access, err := utils.NewAccessToken(s.settings.Secret, u.ID, u.Roles, s.settings.AccessTTLMin)
	if err != nil {
		return nil, fail(s.log, op, policy.Principal{ID: u.ID}, err)
	}
	refresh, err := utils.NewRefreshToken(s.settings.RefreshTTLDays)
	if err != nil {
		return nil, fail(s.log, op, policy.Principal{ID: u.ID}, err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, fail(s.log, op, policy.Principal{ID: u.ID}, err)
	}
	return &Session{User: u, Access: access, Refresh: refresh}, nil
}
