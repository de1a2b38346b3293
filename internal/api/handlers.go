package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tablebook/internal/capacity"
	"tablebook/internal/models"
	"tablebook/internal/service"
	"tablebook/internal/slots"
	"tablebook/shared/export"
)

// RuleResponse is the effective opening rule of a date.
type RuleResponse struct {
	Date             string     `json:"date"`
	IsOpen           bool       `json:"is_open"`
	Open             string     `json:"open,omitempty"`
	Close            string     `json:"close,omitempty"`
	LastReservation  string     `json:"last_reservation,omitempty"`
	BookingsOpenFrom *time.Time `json:"bookings_open_from,omitempty"`
	Message          string     `json:"message,omitempty"`
	Special          bool       `json:"special"`
}

// AvailabilityResponse lists the slots of one date for a party.
type AvailabilityResponse struct {
	Date      string             `json:"date"`
	PartySize int                `json:"party_size"`
	Area      models.Area        `json:"area"`
	Open      bool               `json:"open"`
	Reason    slots.ClosedReason `json:"reason,omitempty"`
	Message   string             `json:"message,omitempty"`
	Slots     []slots.SlotInfo   `json:"slots"`
}

// CreateReservationRequest is the body of POST /api/v1/reservations.
type CreateReservationRequest struct {
	Name       string  `json:"name"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Date       string  `json:"date"`  // YYYY-MM-DD
	Start      string  `json:"start"` // HH:MM
	PartySize  int     `json:"party_size"`
	Preference string  `json:"area,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	Status     string  `json:"status,omitempty"` // staff only
	Source     string  `json:"source,omitempty"` // staff only
	TableIDs   []int64 `json:"table_ids,omitempty"`
}

// RejectionResponse is returned with 409 when the capacity check fails.
type RejectionResponse struct {
	Reason   capacity.Reason   `json:"reason"`
	Message  string            `json:"message"`
	Decision capacity.Decision `json:"decision"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type tablesRequest struct {
	TableIDs []int64 `json:"table_ids"`
}

// handleRules returns the effective rule of a date.
// GET /api/v1/rules?date=YYYY-MM-DD
func (s *HTTPServer) handleRules(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r)
	if !ok {
		return
	}
	rule, err := s.bookings.Rules(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := RuleResponse{
		Date:    rule.Date.Format(models.DateLayout),
		IsOpen:  rule.IsOpen,
		Message: rule.PublicMessage,
		Special: rule.Special,
	}
	if rule.IsOpen {
		resp.Open = rule.Open.String()
		resp.Close = rule.Close.String()
		resp.LastReservation = rule.LastReservation.String()
	}
	if !rule.BookingsOpenFrom.IsZero() {
		t := rule.BookingsOpenFrom
		resp.BookingsOpenFrom = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAvailability lists bookable slots.
// GET /api/v1/availability?date=YYYY-MM-DD&party_size=4&area=indoor
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	party, err := strconv.Atoi(q.Get("party_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "party_size must be a number")
		return
	}
	area, err := parseArea(q.Get("area"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.bookings.Availability(r.Context(), date, party, area)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if a.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	infos := slots.ToSlotInfo(a.Slots)
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Date:      a.Date.Format(models.DateLayout),
		PartySize: party,
		Area:      area,
		Open:      a.Reason == slots.ReasonOpen,
		Reason:    a.Reason,
		Message:   a.Message,
		Slots:     infos,
	})
}

// handleCreateReservation books a table. Requests carrying a valid staff key
// may set status, source and tables and skip the online booking window.
// POST /api/v1/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var body CreateReservationRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req, err := s.toCreateRequest(body, s.isStaff(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, decision, err := s.bookings.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !decision.Accepted {
		writeJSON(w, http.StatusConflict, RejectionResponse{
			Reason:   decision.Reason,
			Message:  decision.Reason.Message(),
			Decision: decision,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reservation": res})
}

func (s *HTTPServer) toCreateRequest(body CreateReservationRequest, staff bool) (service.CreateRequest, error) {
	if body.Date == "" || body.Start == "" {
		return service.CreateRequest{}, fmt.Errorf("date and start are required")
	}
	date, err := models.ParseDate(body.Date, s.cfg.Location)
	if err != nil {
		return service.CreateRequest{}, err
	}
	start, err := models.ParseTimeOfDay(body.Start)
	if err != nil {
		return service.CreateRequest{}, err
	}
	area, err := parseArea(body.Preference)
	if err != nil {
		return service.CreateRequest{}, err
	}

	req := service.CreateRequest{
		Name:       body.Name,
		Email:      body.Email,
		Phone:      body.Phone,
		Date:       date,
		Start:      start,
		PartySize:  body.PartySize,
		Preference: area,
		Notes:      body.Notes,
		Staff:      staff,
	}
	if !staff {
		return req, nil
	}

	if body.Status != "" {
		if req.Status, err = models.ParseStatus(body.Status); err != nil {
			return req, err
		}
	}
	if body.Source != "" {
		if req.Source, err = models.ParseSource(body.Source); err != nil {
			return req, err
		}
	}
	req.TableIDs = body.TableIDs
	return req, nil
}

// handleLookup lets a guest check a reservation by its reference.
// GET /api/v1/bookings/{reference}
func (s *HTTPServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	res, err := s.bookings.GetByReference(r.Context(), r.PathValue("reference"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reference":  res.Reference,
		"date":       res.Date.Format(models.DateLayout),
		"start":      res.Start,
		"party_size": res.PartySize,
		"area":       res.Area,
		"status":     res.Status,
	})
}

// handleListReservations returns every reservation of a date.
// GET /api/v1/reservations?date=YYYY-MM-DD
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r)
	if !ok {
		return
	}
	list, err := s.bookings.ListByDate(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

// handleUpdateStatus changes a reservation's status.
// PATCH /api/v1/reservations/{id}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body statusRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	status, err := models.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.bookings.UpdateStatus(r.Context(), id, status)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation": res})
}

// handleAvailableTables lists the tables that can be assigned to a reservation.
// GET /api/v1/reservations/{id}/tables
func (s *HTTPServer) handleAvailableTables(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := s.bookings.AvailableTables(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": list})
}

// handleAssignTables replaces a reservation's tables.
// PUT /api/v1/reservations/{id}/tables
func (s *HTTPServer) handleAssignTables(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body tablesRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := s.bookings.AssignTables(r.Context(), id, body.TableIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation": res})
}

// handleLoad returns the dashboard report of a date.
// GET /api/v1/load?date=YYYY-MM-DD
func (s *HTTPServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r)
	if !ok {
		return
	}
	report, err := s.bookings.DayLoad(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleLoadExport downloads the dashboard report as XLSX.
// GET /api/v1/load/export?date=YYYY-MM-DD
func (s *HTTPServer) handleLoadExport(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r)
	if !ok {
		return
	}
	report, err := s.bookings.DayLoad(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	list, err := s.bookings.ListByDate(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteLoadReport(&buf, report, list); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render load report")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.LoadReportFilename(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) queryDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return time.Time{}, false
	}
	date, err := models.ParseDate(raw, s.cfg.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return date, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return 0, false
	}
	return id, true
}

func parseArea(raw string) (models.Area, error) {
	if strings.TrimSpace(raw) == "" {
		return models.AreaNone, nil
	}
	return models.ParseArea(strings.ToLower(strings.TrimSpace(raw)))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, service.ErrTerminalStatus), errors.Is(err, service.ErrTablesUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "service is starting")
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
