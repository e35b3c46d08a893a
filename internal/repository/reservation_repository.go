package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/model"
)

const reservationColumns = "id, user_id, book_id, start_date, end_date, created_at, updated_at"

const msgReservationNotFound = "reservation not found"

// ReservationRepo persists rows of `reservations`. start_date and end_date
// are DATE columns; the DSN's parseTime=true&loc=UTC makes them scan as
// midnight UTC.
type ReservationRepo struct{ db *sql.DB }

func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func scanReservation(s scanner) (*model.Reservation, error) {
	var res model.Reservation
	if err := s.Scan(&res.ID, &res.UserID, &res.BookID, &res.StartDate, &res.EndDate, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.StartDate = booking.Day(res.StartDate)
	res.EndDate = booking.Day(res.EndDate)
	return &res, nil
}

func dateArg(t time.Time) string { return t.Format(booking.DateLayout) }

// Create inserts res and assigns the generated id. Callers hold the book
// lock and have checked availability in the same transaction.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const op = "reservation.create"
	result, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO reservations (user_id, book_id, start_date, end_date) VALUES (?,?,?,?)",
		res.UserID, res.BookID, dateArg(res.StartDate), dateArg(res.EndDate))
	if err != nil {
		return translate(op, err, msgReservationNotFound, "reservation already exists")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return apperr.Classify(op, err)
	}
	res.ID = uint64(id)
	return nil
}

// GetByID fetches one reservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id=?", id))
	if err != nil {
		return nil, translate("reservation.get", err, msgReservationNotFound, "")
	}
	return res, nil
}

// UpdateDates rewrites the interval of reservation id.
func (r *ReservationRepo) UpdateDates(ctx context.Context, id uint64, rng booking.Range) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE reservations SET start_date=?, end_date=? WHERE id=?",
		dateArg(rng.Start), dateArg(rng.End), id)
	return translate("reservation.update", err, msgReservationNotFound, "")
}

// Delete removes reservation id.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	const op = "reservation.delete"
	res, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM reservations WHERE id=?", id)
	if err != nil {
		return apperr.Classify(op, err)
	}
	return rowsAffectedOrNotFound(op, res, msgReservationNotFound)
}

// DeleteByBook removes every reservation of bookID and returns how many
// went away.
func (r *ReservationRepo) DeleteByBook(ctx context.Context, bookID uint64) (int64, error) {
	const op = "reservation.delete_by_book"
	res, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM reservations WHERE book_id=?", bookID)
	if err != nil {
		return 0, apperr.Classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Classify(op, err)
	}
	return n, nil
}

// CountOverlapping counts reservations of bookID sharing at least one day
// with rng, skipping excludeID. It is the storage side of
// booking.Detector.
func (r *ReservationRepo) CountOverlapping(ctx context.Context, bookID uint64, rng booking.Range, excludeID uint64) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE book_id=? AND start_date<=? AND end_date>=? AND id<>?",
		bookID, dateArg(rng.End), dateArg(rng.Start), excludeID).Scan(&n)
	if err != nil {
		return 0, apperr.Classify("reservation.count_overlapping", err)
	}
	return n, nil
}

func (r *ReservationRepo) list(ctx context.Context, op, where string, args ...any) ([]model.Reservation, error) {
	q := "SELECT " + reservationColumns + " FROM reservations"
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY start_date, id"
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, apperr.Classify(op, err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Classify(op, err)
	}
	return out, nil
}

// ListByUser returns userID's reservations by start date.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return r.list(ctx, "reservation.list_by_user", "user_id=?", userID)
}

// ListByBook returns bookID's reservations by start date.
func (r *ReservationRepo) ListByBook(ctx context.Context, bookID uint64) ([]model.Reservation, error) {
	return r.list(ctx, "reservation.list_by_book", "book_id=?", bookID)
}

// ListAll returns every reservation by start date.
func (r *ReservationRepo) ListAll(ctx context.Context) ([]model.Reservation, error) {
	return r.list(ctx, "reservation.list_all", "")
}

// RangesByBook returns only the intervals booked for bookID, for the public
// availability view.
func (r *ReservationRepo) RangesByBook(ctx context.Context, bookID uint64) ([]booking.Range, error) {
	const op = "reservation.ranges_by_book"
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		"SELECT start_date, end_date FROM reservations WHERE book_id=? ORDER BY start_date", bookID)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	defer rows.Close()
	out := []booking.Range{}
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, apperr.Classify(op, err)
		}
		out = append(out, booking.NewRange(start, end))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Classify(op, err)
	}
	return out, nil
}
