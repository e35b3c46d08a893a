package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/model"
)

const bookColumns = "id, title, author, genre, description, publisher, pages, image_url"

const (
	msgBookNotFound  = "book not found"
	msgBookDuplicate = "a book with this title already exists"
)

// BookRepo persists rows of `books`.
type BookRepo struct{ db *sql.DB }

func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

func scanBook(s scanner) (*model.Book, error) {
	var b model.Book
	var desc, publisher, image sql.NullString
	if err := s.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &desc, &publisher, &b.Pages, &image); err != nil {
		return nil, err
	}
	b.Description = desc.String
	b.Publisher = publisher.String
	b.ImageURL = image.String
	return &b, nil
}

// Create inserts b and assigns the generated id.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	const op = "book.create"
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO books (title, author, genre, description, publisher, pages, image_url) VALUES (?,?,?,?,?,?,?)",
		b.Title, b.Author, b.Genre, b.Description, b.Publisher, b.Pages, b.ImageURL)
	if err != nil {
		return translate(op, err, msgBookNotFound, msgBookDuplicate)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.Classify(op, err)
	}
	b.ID = uint64(id)
	return nil
}

// GetByID fetches one book.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := scanBook(conn(ctx, r.db).QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id=?", id))
	if err != nil {
		return nil, translate("book.get", err, msgBookNotFound, "")
	}
	return b, nil
}

// LockByID takes the per-book row lock that serializes availability
// checks and writes for one book. It must run inside RunInTx.
func (r *BookRepo) LockByID(ctx context.Context, id uint64) error {
	var got uint64
	err := conn(ctx, r.db).QueryRowContext(ctx, "SELECT id FROM books WHERE id=? FOR UPDATE", id).Scan(&got)
	return translate("book.lock", err, msgBookNotFound, "")
}

// List returns all books ordered by title.
func (r *BookRepo) List(ctx context.Context) ([]model.Book, error) {
	const op = "book.list"
	rows, err := conn(ctx, r.db).QueryContext(ctx, "SELECT "+bookColumns+" FROM books ORDER BY title")
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	defer rows.Close()
	books := []model.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, apperr.Classify(op, err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Classify(op, err)
	}
	return books, nil
}

// Update overwrites every column of b.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE books SET title=?, author=?, genre=?, description=?, publisher=?, pages=?, image_url=? WHERE id=?",
		b.Title, b.Author, b.Genre, b.Description, b.Publisher, b.Pages, b.ImageURL, b.ID)
	return translate("book.update", err, msgBookNotFound, msgBookDuplicate)
}

// Delete removes the book row. Reservations must be gone already; see
// ReservationRepo.DeleteByBook.
func (r *BookRepo) Delete(ctx context.Context, id uint64) error {
	const op = "book.delete"
	res, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM books WHERE id=?", id)
	if err != nil {
		return apperr.Classify(op, err)
	}
	return rowsAffectedOrNotFound(op, res, msgBookNotFound)
}
