package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/queue"
)

const msgBookUnavailable = "book is already reserved for some of these dates"

// ReservationService runs the reservation lifecycle. A reservation exists
// only once it has passed authorization, the date rules and the conflict
// check inside one transaction holding the book's row lock.
type ReservationService struct {
	tx           TxRunner
	users        UserStore
	books        BookStore
	reservations ReservationStore
	detector     *booking.Detector
	policy       *policy.Policy
	cache        AvailabilityCache
	events       EventPublisher
	log          *zap.Logger

	// Now is the clock used for the start-in-past rule.
	Now Clock
}

// ReservationDeps groups the collaborators of ReservationService. Cache and
// Events may be nil.
type ReservationDeps struct {
	Tx           TxRunner
	Users        UserStore
	Books        BookStore
	Reservations ReservationStore
	Policy       *policy.Policy
	Cache        AvailabilityCache
	Events       EventPublisher
	Log          *zap.Logger
}

func NewReservationService(d ReservationDeps) *ReservationService {
	if d.Policy == nil {
		d.Policy = policy.Default()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &ReservationService{
		tx:           d.Tx,
		users:        d.Users,
		books:        d.Books,
		reservations: d.Reservations,
		detector:     booking.NewDetector(d.Reservations),
		policy:       d.Policy,
		cache:        d.Cache,
		events:       d.Events,
		log:          d.Log.Named("reservations"),
		Now:          systemClock,
	}
}

// DatePatch carries the optional new dates of an update. A nil field keeps
// the current value.
type DatePatch struct {
	Start *time.Time
	End   *time.Time
}

// Create books bookID for ownerID over [start, end].
func (s *ReservationService) Create(ctx context.Context, p policy.Principal, ownerID, bookID uint64, start, end time.Time) (*model.Reservation, error) {
	const op = policy.OpCreateReservation
	target := []zap.Field{zap.Uint64("owner_id", ownerID), zap.Uint64("book_id", bookID)}

	lookup := func(context.Context) (uint64, error) { return ownerID, nil }
	if err := s.policy.Authorize(ctx, p, op, lookup); err != nil {
		return nil, fail(s.log, op, p, err, target...)
	}

	rng := booking.NewRange(start, end)
	var created *model.Reservation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// User then book, the order user deletion and book deletion use.
		if _, err := s.users.LockByID(ctx, ownerID); err != nil {
			return err
		}
		if err := s.books.LockByID(ctx, bookID); err != nil {
			return err
		}
		if err := booking.ValidateRange(string(op), rng, s.Now()); err != nil {
			return err
		}
		free, err := s.detector.IsAvailable(ctx, bookID, rng, 0)
		if err != nil {
			return err
		}
		if !free {
			return apperr.Conflict(string(op), msgBookUnavailable)
		}
		res := &model.Reservation{UserID: ownerID, BookID: bookID, StartDate: rng.Start, EndDate: rng.End}
		if err := s.reservations.Create(ctx, res); err != nil {
			return err
		}
		created, err = s.reservations.GetByID(ctx, res.ID)
		return err
	})
	if err != nil {
		return nil, fail(s.log, op, p, err, target...)
	}

	s.afterWrite(ctx, queue.EventReservationCreated, p, *created)
	return created, nil
}

// Update moves reservation id to new dates, checking conflicts against
// every other reservation of the same book.
func (s *ReservationService) Update(ctx context.Context, p policy.Principal, id uint64, patch DatePatch) (*model.Reservation, error) {
	const op = policy.OpUpdateReservation
	target := zap.Uint64("reservation_id", id)

	if patch.Start == nil && patch.End == nil {
		return nil, apperr.Invalid(string(op), "start_date or end_date required")
	}
	current, err := s.authorized(ctx, p, op, id)
	if err != nil {
		return nil, fail(s.log, op, p, err, target)
	}

	var updated *model.Reservation
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.books.LockByID(ctx, current.BookID); err != nil {
			return err
		}
		// Re-read under the lock; the row may have changed since authorization.
		res, err := s.reservations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		rng := booking.Range{Start: res.StartDate, End: res.EndDate}
		if patch.Start != nil {
			rng.Start = booking.Day(*patch.Start)
		}
		if patch.End != nil {
			rng.End = booking.Day(*patch.End)
		}
		if err := booking.ValidateRange(string(op), rng, s.Now()); err != nil {
			return err
		}
		free, err := s.detector.IsAvailable(ctx, res.BookID, rng, res.ID)
		if err != nil {
			return err
		}
		if !free {
			return apperr.Conflict(string(op), msgBookUnavailable)
		}
		if err := s.reservations.UpdateDates(ctx, res.ID, rng); err != nil {
			return err
		}
		updated, err = s.reservations.GetByID(ctx, res.ID)
		return err
	})
	if err != nil {
		return nil, fail(s.log, op, p, err, target, zap.Uint64("book_id", current.BookID))
	}

	s.afterWrite(ctx, queue.EventReservationUpdated, p, *updated)
	return updated, nil
}

// Delete removes reservation id.
func (s *ReservationService) Delete(ctx context.Context, p policy.Principal, id uint64) error {
	const op = policy.OpDeleteReservation
	res, err := s.authorized(ctx, p, op, id)
	if err != nil {
		return fail(s.log, op, p, err, zap.Uint64("reservation_id", id))
	}
	if err := s.reservations.Delete(ctx, id); err != nil {
		return fail(s.log, op, p, err, zap.Uint64("reservation_id", id))
	}
	s.afterWrite(ctx, queue.EventReservationDeleted, p, *res)
	return nil
}

// Get returns reservation id to its owner or an admin.
func (s *ReservationService) Get(ctx context.Context, p policy.Principal, id uint64) (*model.Reservation, error) {
	const op = policy.OpViewReservation
	res, err := s.authorized(ctx, p, op, id)
	if err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("reservation_id", id))
	}
	return res, nil
}

// ListByUser returns the reservations owned by userID.
func (s *ReservationService) ListByUser(ctx context.Context, p policy.Principal, userID uint64) ([]model.Reservation, error) {
	const op = policy.OpListUserReservations
	lookup := func(context.Context) (uint64, error) { return userID, nil }
	if err := s.policy.Authorize(ctx, p, op, lookup); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("user_id", userID))
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("user_id", userID))
	}
	out, err := s.reservations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("user_id", userID))
	}
	return out, nil
}

// ListByBook returns every reservation of bookID with owners. Admin only.
func (s *ReservationService) ListByBook(ctx context.Context, p policy.Principal, bookID uint64) ([]model.Reservation, error) {
	const op = policy.OpListBookReservations
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("book_id", bookID))
	}
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("book_id", bookID))
	}
	out, err := s.reservations.ListByBook(ctx, bookID)
	if err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("book_id", bookID))
	}
	return out, nil
}

// ListAll returns every reservation. Admin only.
func (s *ReservationService) ListAll(ctx context.Context, p policy.Principal) ([]model.Reservation, error) {
	const op = policy.OpListAllReservations
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err)
	}
	out, err := s.reservations.ListAll(ctx)
	if err != nil {
		return nil, fail(s.log, op, p, err)
	}
	return out, nil
}

// PublicAvailability lists the booked intervals of bookID without saying
// who booked them. Results are served from the availability cache when
// possible; a cache failure falls back to storage.
func (s *ReservationService) PublicAvailability(ctx context.Context, bookID uint64) ([]model.DateRange, error) {
	const op = policy.OpPublicAvailability
	anon := policy.Principal{}
	if err := s.policy.Authorize(ctx, anon, op, nil); err != nil {
		return nil, fail(s.log, op, anon, err)
	}

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, bookID)
		if err != nil {
			s.log.Warn("availability cache read failed", zap.Uint64("book_id", bookID), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, fail(s.log, op, anon, err, zap.Uint64("book_id", bookID))
	}
	ranges, err := s.reservations.RangesByBook(ctx, bookID)
	if err != nil {
		return nil, fail(s.log, op, anon, err, zap.Uint64("book_id", bookID))
	}
	out := make([]model.DateRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, model.DateRange{
			StartDate: r.Start.Format(booking.DateLayout),
			EndDate:   r.End.Format(booking.DateLayout),
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, bookID, out); err != nil {
			s.log.Warn("availability cache write failed", zap.Uint64("book_id", bookID), zap.Error(err))
		}
	}
	return out, nil
}

// authorized loads reservation id and checks op against its owner. The
// row is loaded by the ownership lookup, or afterwards for admins who
// skip it.
func (s *ReservationService) authorized(ctx context.Context, p policy.Principal, op policy.Operation, id uint64) (*model.Reservation, error) {
	var res *model.Reservation
	lookup := func(ctx context.Context) (uint64, error) {
		r, err := s.reservations.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		res = r
		return r.UserID, nil
	}
	if err := s.policy.Authorize(ctx, p, op, lookup); err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}
	return s.reservations.GetByID(ctx, id)
}

// afterWrite drops the cached availability of the book and publishes the
// event. Neither can fail the request.
func (s *ReservationService) afterWrite(ctx context.Context, typ queue.EventType, p policy.Principal, res model.Reservation) {
	invalidate(ctx, s.log, s.cache, res.BookID)
	publish(ctx, s.log, s.events, queue.NewReservationEvent(typ, p.ID, res, s.Now()))
}

func invalidate(ctx context.Context, log *zap.Logger, c AvailabilityCache, bookID uint64) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, bookID); err != nil {
		log.Warn("availability cache invalidation failed", zap.Uint64("book_id", bookID), zap.Error(err))
	}
}

func publish(ctx context.Context, log *zap.Logger, p EventPublisher, ev queue.ReservationEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn("event publish failed", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
