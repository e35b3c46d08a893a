package handler

import (
	"context"
	"time"

	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/service"
)

// The interfaces below are the slices of the service layer each handler
// calls. *service.XService values satisfy them.

type AuthAPI interface {
	Register(ctx context.Context, in service.Registration) (*service.Session, error)
	Login(ctx context.Context, username, password string) (*service.Session, error)
	Refresh(ctx context.Context, raw string) (*service.Session, error)
	Logout(ctx context.Context, userID uint64, raw string) error
}

type BookAPI interface {
	Create(ctx context.Context, p policy.Principal, b model.Book) (*model.Book, error)
	Update(ctx context.Context, p policy.Principal, id uint64, patch service.BookPatch) (*model.Book, error)
	Get(ctx context.Context, id uint64) (*model.Book, error)
	List(ctx context.Context) ([]model.Book, error)
	Delete(ctx context.Context, p policy.Principal, id uint64) error
}

type ReservationAPI interface {
	Create(ctx context.Context, p policy.Principal, ownerID, bookID uint64, start, end time.Time) (*model.Reservation, error)
	Update(ctx context.Context, p policy.Principal, id uint64, patch service.DatePatch) (*model.Reservation, error)
	Delete(ctx context.Context, p policy.Principal, id uint64) error
	Get(ctx context.Context, p policy.Principal, id uint64) (*model.Reservation, error)
	ListByUser(ctx context.Context, p policy.Principal, userID uint64) ([]model.Reservation, error)
	ListByBook(ctx context.Context, p policy.Principal, bookID uint64) ([]model.Reservation, error)
	ListAll(ctx context.Context, p policy.Principal) ([]model.Reservation, error)
	PublicAvailability(ctx context.Context, bookID uint64) ([]model.DateRange, error)
}

type UserAPI interface {
	Get(ctx context.Context, p policy.Principal, id uint64) (*model.User, error)
	Update(ctx context.Context, p policy.Principal, id uint64, patch service.UserPatch) (*model.User, error)
	Delete(ctx context.Context, p policy.Principal, id uint64) error
	List(ctx context.Context, p policy.Principal) ([]model.User, error)
}

type RoleAPI interface {
	AddRole(ctx context.Context, p policy.Principal, username, roleName string) (*model.User, error)
	RemoveRole(ctx context.Context, p policy.Principal, username, roleName string) (*model.User, error)
	ListRoles(ctx context.Context, p policy.Principal) ([]model.Role, error)
}

var (
	_ AuthAPI        = (*service.AuthService)(nil)
	_ BookAPI        = (*service.BookService)(nil)
	_ ReservationAPI = (*service.ReservationService)(nil)
	_ UserAPI        = (*service.UserService)(nil)
	_ RoleAPI        = (*service.RoleService)(nil)
)
