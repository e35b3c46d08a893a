// Package queue carries reservation lifecycle events over RabbitMQ: a
// Publisher used by the services and a Consumer that appends every event to
// the audit log.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/library-reservation/internal/model"
)

// QueueName is the durable queue events are routed to.
const QueueName = "reservation.events"

// EventType names what happened.
type EventType string

const (
	EventReservationCreated EventType = "reservation.created"
	EventReservationUpdated EventType = "reservation.updated"
	EventReservationDeleted EventType = "reservation.deleted"
	EventBookDeleted        EventType = "book.deleted"
)

// ReservationEvent is the message body. It carries enough for the audit
// trail without querying the database. Removed is only set for
// book.deleted and counts the cascaded reservations.
type ReservationEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	ActorID       uint64    `json:"actor_id"`
	ReservationID uint64    `json:"reservation_id,omitempty"`
	UserID        uint64    `json:"user_id,omitempty"`
	BookID        uint64    `json:"book_id"`
	StartDate     string    `json:"start_date,omitempty"`
	EndDate       string    `json:"end_date,omitempty"`
	Removed       int64     `json:"removed,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewReservationEvent describes a change to res made by actorID.
func NewReservationEvent(typ EventType, actorID uint64, res model.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		ID:            uuid.NewString(),
		Type:          typ,
		ActorID:       actorID,
		ReservationID: res.ID,
		UserID:        res.UserID,
		BookID:        res.BookID,
		StartDate:     res.StartDate.Format("2006-01-02"),
		EndDate:       res.EndDate.Format("2006-01-02"),
		OccurredAt:    at.UTC(),
	}
}

// NewBookDeletedEvent records a book removal and how many reservations went
// with it.
func NewBookDeletedEvent(actorID, bookID uint64, removed int64, at time.Time) ReservationEvent {
	return ReservationEvent{
		ID:         uuid.NewString(),
		Type:       EventBookDeleted,
		ActorID:    actorID,
		BookID:     bookID,
		Removed:    removed,
		OccurredAt: at.UTC(),
	}
}
