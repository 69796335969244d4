package handler

import (
	"encoding/json"
	"net/http"
	"reservo/internal/bookings/service"
	"reservo/pkg/config"
	apperrors "reservo/pkg/errors"
	pkghttp "reservo/pkg/http"
	"reservo/pkg/model"
	"time"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	cfg     *config.Config
}

func NewBookingHandler(svc service.BookingService, cfg *config.Config) *BookingHandler {
	return &BookingHandler{
		service: svc,
		cfg:     cfg,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/availability", h.CheckAvailability)
	router.POST("/api/v1/bookings/prebook", h.PreBook)
	router.POST("/api/v1/bookings/id/:id/confirm", h.Confirm)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.PATCH("/api/v1/bookings/id/:id/dates", h.ChangeDates)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.GET("/api/v1/bookings", h.ListByBookable)
	router.GET("/api/v1/bookings/by-booker", h.ListByBooker)
	router.GET("/api/v1/bookings/options", h.Options)
}

type preBookRequest struct {
	BookableType string    `json:"bookable_type"`
	BookableID   string    `json:"bookable_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	BookedByType string    `json:"booked_by_type,omitempty"`
	BookedByID   string    `json:"booked_by_id,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

type changeDatesRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type availabilityResponse struct {
	Available    bool      `json:"available"`
	BookableType string    `json:"bookable_type"`
	BookableID   string    `json:"bookable_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
}

type optionsResponse struct {
	StatusOptions            map[string]string `json:"status_options"`
	BookableKinds            []string          `json:"bookable_kinds"`
	BookerKinds              []string          `json:"booker_kinds"`
	PendingExpirationMinutes int               `json:"pending_expiration_minutes"`
	DefaultRangeType         string            `json:"default_range_type"`
}

// CheckAvailability reports whether a subject is free for a requested range.
// GET /api/v1/availability?bookable_type=room&bookable_id=conf-a&from=...&to=...
func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subject, err := extractSubject(r)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	from, to, err := extractRequiredRange(r)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	available, err := h.service.CheckAvailability(r.Context(), subject, from, to)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	pkghttp.WriteSuccess(w, availabilityResponse{
		Available:    available,
		BookableType: subject.Kind,
		BookableID:   subject.ID,
		From:         from,
		To:           to,
	})
}

// PreBook places a pending hold that expires unless confirmed in time.
func (h *BookingHandler) PreBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req preBookRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	subject := model.EntityRef{Kind: req.BookableType, ID: req.BookableID}

	var bookedBy *model.EntityRef
	switch {
	case req.BookedByType != "" && req.BookedByID != "":
		bookedBy = &model.EntityRef{Kind: req.BookedByType, ID: req.BookedByID}
	case req.BookedByType != "" || req.BookedByID != "":
		pkghttp.WriteError(w, apperrors.InvalidInput("booked_by_type and booked_by_id must be provided together"))
		return
	}

	booking, err := h.service.PreBook(r.Context(), subject, req.StartTime, req.EndTime, bookedBy, req.Notes)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	pkghttp.WriteCreated(w, booking)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Confirm(r.Context(), ps.ByName("id")); err != nil {
		pkghttp.WriteError(w, err)
		return
	}
	pkghttp.WriteSuccess(w, map[string]string{"status": model.StatusConfirmed})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Cancel(r.Context(), ps.ByName("id")); err != nil {
		pkghttp.WriteError(w, err)
		return
	}
	pkghttp.WriteSuccess(w, map[string]string{"status": model.StatusCancelled})
}

func (h *BookingHandler) ChangeDates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req changeDatesRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	id := ps.ByName("id")
	if err := h.service.Change(r.Context(), id, req.StartTime, req.EndTime); err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	booking, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}
	pkghttp.WriteSuccess(w, booking)
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}
	pkghttp.WriteSuccess(w, booking)
}

// ListByBookable returns the bookings of one subject, newest window filters
// applied, paginated.
func (h *BookingHandler) ListByBookable(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subject, err := extractSubject(r)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	filter, limit, offset, err := extractListParams(r)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	bookings, total, err := h.service.ListBookings(r.Context(), subject, filter, limit, offset)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	pkghttp.WritePaginated(w, bookings, total, limit, offset)
}

func (h *BookingHandler) ListByBooker(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	actor := model.EntityRef{
		Kind: query.Get("booked_by_type"),
		ID:   query.Get("booked_by_id"),
	}
	if actor.Kind == "" || actor.ID == "" {
		pkghttp.WriteError(w, apperrors.InvalidInput("booked_by_type and booked_by_id query parameters are required"))
		return
	}

	filter, limit, offset, err := extractListParams(r)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	bookings, total, err := h.service.ListMyBookings(r.Context(), actor, filter, limit, offset)
	if err != nil {
		pkghttp.WriteError(w, err)
		return
	}

	pkghttp.WritePaginated(w, bookings, total, limit, offset)
}

// Options exposes the booking vocabulary so clients render labels and pickers
// without hardcoding them.
func (h *BookingHandler) Options(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pkghttp.WriteSuccess(w, optionsResponse{
		StatusOptions:            h.cfg.StatusLabels,
		BookableKinds:            h.cfg.BookableKinds.Kinds(),
		BookerKinds:              h.cfg.BookerKinds.Kinds(),
		PendingExpirationMinutes: int(h.cfg.PendingExpiration.Minutes()),
		DefaultRangeType:         h.cfg.DefaultRangeType,
	})
}

func (h *BookingHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxRequestSize))
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidInput("Invalid JSON request body")
	}
	return nil
}

func extractSubject(r *http.Request) (model.EntityRef, error) {
	query := r.URL.Query()
	subject := model.EntityRef{
		Kind: query.Get("bookable_type"),
		ID:   query.Get("bookable_id"),
	}
	if subject.Kind == "" || subject.ID == "" {
		return model.EntityRef{}, apperrors.InvalidInput("bookable_type and bookable_id query parameters are required")
	}
	return subject, nil
}

func extractRequiredRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := pkghttp.ExtractTimeParam(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := pkghttp.ExtractTimeParam(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == nil || to == nil {
		return time.Time{}, time.Time{}, apperrors.InvalidInput("from and to query parameters are required")
	}
	return *from, *to, nil
}

func extractListParams(r *http.Request) (model.ListFilter, int, int64, error) {
	from, err := pkghttp.ExtractTimeParam(r, "from")
	if err != nil {
		return model.ListFilter{}, 0, 0, err
	}
	to, err := pkghttp.ExtractTimeParam(r, "to")
	if err != nil {
		return model.ListFilter{}, 0, 0, err
	}

	limit, offset, err := pkghttp.ExtractLimitOffset(r)
	if err != nil {
		return model.ListFilter{}, 0, 0, err
	}

	filter := model.ListFilter{
		From:   from,
		To:     to,
		Status: r.URL.Query().Get("status"),
	}
	return filter, limit, offset, nil
}
