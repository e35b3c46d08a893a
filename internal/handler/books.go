package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/service"
)

// BookHandler serves the catalogue. Reads are public; writes need ADMIN.
type BookHandler struct {
	Books        BookAPI
	Reservations ReservationAPI
}

func NewBookHandler(books BookAPI, reservations ReservationAPI) *BookHandler {
	return &BookHandler{Books: books, Reservations: reservations}
}

type bookReq struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *string `json:"genre"`
	Description *string `json:"description"`
	Publisher   *string `json:"publisher"`
	Pages       *uint32 `json:"pages"`
	ImageURL    *string `json:"image_url"`
}

func (r bookReq) patch() service.BookPatch {
	return service.BookPatch{
		Title:       r.Title,
		Author:      r.Author,
		Genre:       r.Genre,
		Description: r.Description,
		Publisher:   r.Publisher,
		Pages:       r.Pages,
		ImageURL:    r.ImageURL,
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// List handles GET /v1/books.
func (h *BookHandler) List(c echo.Context) error {
	books, err := h.Books.List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": books})
}

// Get handles GET /v1/books/:id.
func (h *BookHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	b, err := h.Books.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Availability handles GET /v1/books/:id/availability. It lists the booked
// intervals without owners.
func (h *BookHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	ranges, err := h.Reservations.PublicAvailability(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"book_id": id, "reserved": ranges})
}

// Create handles POST /v1/books.
func (h *BookHandler) Create(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	b, err := h.Books.Create(c.Request().Context(), p, model.Book{
		Title:       deref(req.Title),
		Author:      deref(req.Author),
		Genre:       deref(req.Genre),
		Description: deref(req.Description),
		Publisher:   deref(req.Publisher),
		Pages:       deref(req.Pages),
		ImageURL:    deref(req.ImageURL),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Update handles PUT /v1/books/:id. Omitted fields keep their value.
func (h *BookHandler) Update(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	b, err := h.Books.Update(c.Request().Context(), p, id, req.patch())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Delete handles DELETE /v1/books/:id, removing its reservations too.
func (h *BookHandler) Delete(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	if err := h.Books.Delete(c.Request().Context(), p, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListReservations handles GET /v1/books/:id/reservations (admin).
func (h *BookHandler) ListReservations(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid book id")
	}
	list, err := h.Reservations.ListByBook(c.Request().Context(), p, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": reservationList(list)})
}
