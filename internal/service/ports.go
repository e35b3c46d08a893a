// Package service holds the reservation lifecycle, the role invariant
// manager and the book and user management built on top of them. Every
// exported method takes the calling Principal explicitly, asks the
// authorization policy first and returns *apperr.Error values only.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/queue"
)

// TxRunner scopes a unit of work to one transaction carried in ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore is the persistence the services need for users.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	LockByID(ctx context.Context, id uint64) (*model.User, error)
	LockByUsername(ctx context.Context, username string) (*model.User, error)
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]model.User, error)
	CountReservations(ctx context.Context, userID uint64) (int, error)
}

// RoleStore is the persistence for roles and memberships.
type RoleStore interface {
	GetByName(ctx context.Context, name string) (*model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	ListForUser(ctx context.Context, userID uint64) ([]string, error)
	CountForUser(ctx context.Context, userID uint64) (int, error)
	AddMembership(ctx context.Context, userID, roleID uint64) error
	RemoveMembership(ctx context.Context, userID, roleID uint64) error
	Ensure(ctx context.Context, name string) (*model.Role, error)
}

// BookStore is the persistence for books. LockByID holds the per-book
// row lock until the surrounding transaction ends.
type BookStore interface {
	Create(ctx context.Context, b *model.Book) error
	GetByID(ctx context.Context, id uint64) (*model.Book, error)
	LockByID(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]model.Book, error)
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id uint64) error
}

// ReservationStore is the persistence for reservations.
type ReservationStore interface {
	booking.OverlapCounter
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	UpdateDates(ctx context.Context, id uint64, r booking.Range) error
	Delete(ctx context.Context, id uint64) error
	DeleteByBook(ctx context.Context, bookID uint64) (int64, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	ListByBook(ctx context.Context, bookID uint64) ([]model.Reservation, error)
	ListAll(ctx context.Context) ([]model.Reservation, error)
	RangesByBook(ctx context.Context, bookID uint64) ([]booking.Range, error)
}

// AvailabilityCache caches the public availability of a book.
type AvailabilityCache interface {
	Get(ctx context.Context, bookID uint64) ([]model.DateRange, bool, error)
	Set(ctx context.Context, bookID uint64, ranges []model.DateRange) error
	Invalidate(ctx context.Context, bookID uint64) error
}

// EventPublisher forwards lifecycle events. Failures are logged and never
// fail the request that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
