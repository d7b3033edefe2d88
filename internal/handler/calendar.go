package handler

import (
	"net/http"
	"time"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/middleware"
	"github.com/teknolabs/vocameet-server/internal/service"
)

type CalendarHandler struct {
	calendarService *service.CalendarService
}

func NewCalendarHandler(calendarService *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarService: calendarService}
}

// GET /api/google/events
func (h *CalendarHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, apperrors.Unauthorized("Not signed in"))
		return
	}

	events, err := h.calendarService.Upcoming(r.Context(), caller.SessionGUID, caller.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GET /calendar/events?start=&end=&timezone=
func (h *CalendarHandler) Availability(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, apperrors.Unauthorized("Not signed in"))
		return
	}

	q := r.URL.Query()
	start, err := parseQueryTime(q.Get("start"), "start")
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseQueryTime(q.Get("end"), "end")
	if err != nil {
		writeError(w, err)
		return
	}
	if !end.After(start) {
		writeError(w, apperrors.InvalidInput("end", "must be after start"))
		return
	}
	timezone := q.Get("timezone")
	if timezone == "" {
		writeError(w, apperrors.MissingRequired("timezone"))
		return
	}

	events, err := h.calendarService.Availability(r.Context(), caller.SessionGUID, caller.Email, start, end, timezone)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"availability": events,
		"user":         caller.Identity(),
	})
}

func parseQueryTime(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperrors.MissingRequired(field)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(field, "must be an RFC 3339 timestamp")
	}
	return t, nil
}
