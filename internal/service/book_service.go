package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/queue"
)

// BookService manages the catalogue. Deleting a book takes the same row
// lock reservations use and removes the book's reservations in the same
// transaction.
type BookService struct {
	tx           TxRunner
	books        BookStore
	reservations ReservationStore
	policy       *policy.Policy
	cache        AvailabilityCache
	events       EventPublisher
	log          *zap.Logger
	Now          Clock
}

func NewBookService(tx TxRunner, books BookStore, reservations ReservationStore, pol *policy.Policy, cache AvailabilityCache, events EventPublisher, log *zap.Logger) *BookService {
	if pol == nil {
		pol = policy.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookService{
		tx:           tx,
		books:        books,
		reservations: reservations,
		policy:       pol,
		cache:        cache,
		events:       events,
		log:          log.Named("books"),
		Now:          systemClock,
	}
}

// BookPatch holds the fields of an update; nil keeps the current value.
type BookPatch struct {
	Title       *string
	Author      *string
	Genre       *string
	Description *string
	Publisher   *string
	Pages       *uint32
	ImageURL    *string
}

func validateBook(op policy.Operation, b *model.Book) error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.Genre = strings.TrimSpace(b.Genre)
	var missing []string
	if b.Title == "" {
		missing = append(missing, "title")
	}
	if b.Author == "" {
		missing = append(missing, "author")
	}
	if b.Genre == "" {
		missing = append(missing, "genre")
	}
	if len(missing) > 0 {
		return apperr.Invalid(string(op), strings.Join(missing, ", ")+" required")
	}
	return nil
}

// Create adds a book. Titles are unique.
func (s *BookService) Create(ctx context.Context, p policy.Principal, b model.Book) (*model.Book, error) {
	const op = policy.OpCreateBook
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err)
	}
	if err := validateBook(op, &b); err != nil {
		return nil, err
	}
	if err := s.books.Create(ctx, &b); err != nil {
		return nil, fail(s.log, op, p, err, zap.String("title", b.Title))
	}
	return &b, nil
}

// Update applies patch to book id.
func (s *BookService) Update(ctx context.Context, p policy.Principal, id uint64, patch BookPatch) (*model.Book, error) {
	const op = policy.OpUpdateBook
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("book_id", id))
	}
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("book_id", id))
	}
	setIf(&b.Title, patch.Title)
	setIf(&b.Author, patch.Author)
	setIf(&b.Genre, patch.Genre)
	setIf(&b.Description, patch.Description)
	setIf(&b.Publisher, patch.Publisher)
	setIf(&b.ImageURL, patch.ImageURL)
	if patch.Pages != nil {
		b.Pages = *patch.Pages
	}
	if err := validateBook(op, b); err != nil {
		return nil, err
	}
	if err := s.books.Update(ctx, b); err != nil {
		return nil, fail(s.log, op, p, err, zap.Uint64("book_id", id))
	}
	return b, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Get returns one book. Public.
func (s *BookService) Get(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, fail(s.log, policy.OpViewBook, policy.Principal{}, err, zap.Uint64("book_id", id))
	}
	return b, nil
}

// List returns the catalogue. Public.
func (s *BookService) List(ctx context.Context) ([]model.Book, error) {
	books, err := s.books.List(ctx)
	if err != nil {
		return nil, fail(s.log, policy.OpBrowseBooks, policy.Principal{}, err)
	}
	return books, nil
}

// Delete removes book id and all of its reservations atomically.
func (s *BookService) Delete(ctx context.Context, p policy.Principal, id uint64) error {
	const op = policy.OpDeleteBook
	if err := s.policy.Authorize(ctx, p, op, nil); err != nil {
		return fail(s.log, op, p, err, zap.Uint64("book_id", id))
	}
	var removed int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.books.LockByID(ctx, id); err != nil {
			return err
		}
		n, err := s.reservations.DeleteByBook(ctx, id)
		if err != nil {
			return err
		}
		removed = n
		return s.books.Delete(ctx, id)
	})
	if err != nil {
		return fail(s.log, op, p, err, zap.Uint64("book_id", id))
	}
	s.log.Info("book deleted", zap.Uint64("principal_id", p.ID), zap.Uint64("book_id", id), zap.Int64("reservations_removed", removed))
	invalidate(ctx, s.log, s.cache, id)
	publish(ctx, s.log, s.events, queue.NewBookDeletedEvent(p.ID, id, removed, s.Now()))
	return nil
}
