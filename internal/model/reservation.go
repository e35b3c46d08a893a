package model

import "time"

// Reservation records that a user holds a book for a closed interval of
// calendar days. StartDate and EndDate are midnight UTC and both days are
// part of the reservation.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – user who owns the reservation.
//	BookID    – reserved book.
//	StartDate – first reserved day.
//	EndDate   – last reserved day.
//	CreatedAt – creation timestamp.
//	UpdatedAt – last update timestamp.
type Reservation struct {
	ID        uint64    // reservations.id
	UserID    uint64    // reservations.user_id
	BookID    uint64    // reservations.book_id
	StartDate time.Time // reservations.start_date
	EndDate   time.Time // reservations.end_date
	CreatedAt time.Time // reservations.created_at
	UpdatedAt time.Time // reservations.updated_at
}

// DateRange is the public view of a reservation: who and what are hidden.
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}
