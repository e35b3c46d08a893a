package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/service"
)

// ReservationHandler exposes the reservation lifecycle. Ownership checks
// happen in the service; the handler only supplies the principal.
type ReservationHandler struct {
	Reservations ReservationAPI
}

func NewReservationHandler(r ReservationAPI) *ReservationHandler {
	return &ReservationHandler{Reservations: r}
}

type createReservationReq struct {
	BookID    uint64 `json:"book_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type updateReservationReq struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type reservationResp struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	BookID    uint64    `json:"book_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	return reservationResp{
		ID:        r.ID,
		UserID:    r.UserID,
		BookID:    r.BookID,
		StartDate: r.StartDate.Format(booking.DateLayout),
		EndDate:   r.EndDate.Format(booking.DateLayout),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func reservationList(list []model.Reservation) []reservationResp {
	out := make([]reservationResp, 0, len(list))
	for i := range list {
		out = append(out, toReservationResp(&list[i]))
	}
	return out
}

// Create handles POST /v1/users/:userId/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	ownerID, ok := pathID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.BookID == 0 {
		return badRequest(c, "book_id required")
	}
	start, err := parseDay("start_date", req.StartDate)
	if err != nil {
		return fail(c, err)
	}
	end, err := parseDay("end_date", req.EndDate)
	if err != nil {
		return fail(c, err)
	}
	if start == nil || end == nil {
		return badRequest(c, "start_date and end_date required")
	}
	res, err := h.Reservations.Create(c.Request().Context(), p, ownerID, req.BookID, *start, *end)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

// ListByUser handles GET /v1/users/:userId/reservations.
func (h *ReservationHandler) ListByUser(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	list, err := h.Reservations.ListByUser(c.Request().Context(), p, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": reservationList(list)})
}

// ListAll handles GET /v1/reservations (admin).
func (h *ReservationHandler) ListAll(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	list, err := h.Reservations.ListAll(c.Request().Context(), p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": reservationList(list)})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	res, err := h.Reservations.Get(c.Request().Context(), p, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Update handles PATCH /v1/reservations/:id. Either date may be omitted.
func (h *ReservationHandler) Update(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req updateReservationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	var patch service.DatePatch
	if patch.Start, err = parseDay("start_date", req.StartDate); err != nil {
		return fail(c, err)
	}
	if patch.End, err = parseDay("end_date", req.EndDate); err != nil {
		return fail(c, err)
	}
	res, err := h.Reservations.Update(c.Request().Context(), p, id, patch)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Delete handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Reservations.Delete(c.Request().Context(), p, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
