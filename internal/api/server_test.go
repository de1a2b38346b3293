package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "valid-key"

const restaurantYAML = `
settings:
  indoor: { capacity: 20, max_party_size: 10, max_large_groups: 1, max_very_large_groups: 1 }
  outdoor: { capacity: 10, max_party_size: 6, max_large_groups: 0, max_very_large_groups: 0 }
  dwell_minutes: 90
  min_lead_minutes: 30
opening_hours:
  - { weekday: monday, is_open: false }
  - { weekday: tuesday, is_open: true, open: "17:00", close: "22:00", last_reservation: "21:00" }
  - { weekday: wednesday, is_open: true, open: "17:00", close: "22:00", last_reservation: "21:00" }
  - { weekday: thursday, is_open: true, open: "17:00", close: "22:00", last_reservation: "21:00" }
  - { weekday: friday, is_open: true, open: "17:00", close: "23:00", last_reservation: "21:30" }
  - { weekday: saturday, is_open: true, open: "17:00", close: "23:00", last_reservation: "21:30" }
  - { weekday: sunday, is_open: true, open: "12:00", close: "20:00", last_reservation: "19:00" }
special_days:
  - { date: "2026-03-17", is_open: false, public_message: "Closed for a private party" }
tables:
  - { id: 1, number: "1", area: indoor, seats: 4 }
  - { id: 2, number: "2", area: indoor, seats: 6 }
  - { id: 3, number: "T1", area: outdoor, seats: 4 }
`

// Friday 2026-03-13 at noon.
var testNow = time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	handler http.Handler
	db      *database.DB
}

func setupTestServer(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	db.UseLocation(time.UTC)
	t.Cleanup(func() { _ = db.Close() })

	rc, err := config.ParseRestaurantConfig([]byte(restaurantYAML))
	require.NoError(t, err)
	require.NoError(t, db.SyncFromConfig(ctx, rc, time.UTC))

	logger := zerolog.New(io.Discard)
	svc := service.NewBookingService(db, nil, nil, service.Config{
		Location:   time.UTC,
		MaxAdvance: 90 * 24 * time.Hour,
		Now:        func() time.Time { return testNow },
	}, logger)
	require.NoError(t, svc.Reload(ctx))

	cfg := Config{StaffAPIKey: testAPIKey, RatePerSecond: 100, RateBurst: 100, Location: time.UTC}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testEnv{handler: NewHTTPServer(cfg, svc, logger).Handler(), db: db}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, staff bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.Header.Set(apiKeyHeader, testAPIKey)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

type reservationEnvelope struct {
	Reservation struct {
		ID        int64   `json:"id"`
		Reference string  `json:"reference"`
		Area      string  `json:"area"`
		Status    string  `json:"status"`
		Source    string  `json:"source"`
		Start     string  `json:"start"`
		TableIDs  []int64 `json:"table_ids"`
	} `json:"reservation"`
}

func booking(date, start string, party int, area string) CreateReservationRequest {
	return CreateReservationRequest{
		Name: "Guest", Email: "guest@example.com", Date: date, Start: start, PartySize: party, Preference: area,
	}
}

func TestAvailability(t *testing.T) {
	env := setupTestServer(t, nil)

	t.Run("open day", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-14&party_size=4", nil, false)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

		resp := decode[AvailabilityResponse](t, rec)
		assert.True(t, resp.Open)
		assert.Equal(t, "none", string(resp.Area))
		// Saturday 17:00 through 21:30.
		require.Len(t, resp.Slots, 19)
		assert.Equal(t, "17:00", resp.Slots[0].Start)
		assert.Equal(t, "21:30", resp.Slots[18].Start)
		assert.True(t, resp.Slots[0].Available)
	})

	t.Run("special closed day", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-17&party_size=2", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[AvailabilityResponse](t, rec)
		assert.False(t, resp.Open)
		assert.Equal(t, "closed_day", string(resp.Reason))
		assert.Equal(t, "Closed for a private party", resp.Message)
		assert.Empty(t, resp.Slots)
	})

	t.Run("today respects the lead time", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-13&party_size=2&area=indoor", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[AvailabilityResponse](t, rec)
		require.NotEmpty(t, resp.Slots)
		assert.Equal(t, "17:00", resp.Slots[0].Start)
	})

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing date", "party_size=2", "date is required"},
		{"bad date", "date=14-03-2026&party_size=2", `invalid date "14-03-2026", expected YYYY-MM-DD`},
		{"bad party", "date=2026-03-14&party_size=x", "party_size must be a number"},
		{"bad area", "date=2026-03-14&party_size=2&area=roof", `unknown area "roof"`},
		{"zero party", "date=2026-03-14&party_size=0", "party_size: must be at least 1"},
		{"past date", "date=2026-03-01&party_size=2", "date: is in the past"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/availability?"+tt.query, nil, false)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestAvailability_RateLimited(t *testing.T) {
	env := setupTestServer(t, func(c *Config) {
		c.RatePerSecond = 0.001
		c.RateBurst = 2
	})
	path := "/api/v1/availability?date=2026-03-14&party_size=2"

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, false).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, false).Code)
	rec := env.do(t, http.MethodGet, path, nil, false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, true).Code, "staff bypass the limiter")
}

func TestCreateReservation(t *testing.T) {
	env := setupTestServer(t, nil)

	t.Run("online booking", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-14", "19:00", 4, "indoor"), false)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		res := decode[reservationEnvelope](t, rec).Reservation
		assert.NotZero(t, res.ID)
		assert.NotEmpty(t, res.Reference)
		assert.Equal(t, "indoor", res.Area)
		assert.Equal(t, "confirmed", res.Status)
		assert.Equal(t, "online", res.Source)
		assert.Equal(t, "19:00", res.Start)

		lookup := env.do(t, http.MethodGet, "/api/v1/bookings/"+res.Reference, nil, false)
		require.Equal(t, http.StatusOK, lookup.Code)
		assert.Equal(t, "confirmed", decode[map[string]any](t, lookup)["status"])
	})

	t.Run("capacity rejection", func(t *testing.T) {
		// Indoor holds 20; 4 are booked at 19:00.
		rec := env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-14", "19:30", 10, "indoor"), false)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-14", "19:15", 8, "indoor"), false)
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		resp := decode[RejectionResponse](t, rec)
		assert.Equal(t, "capacity_exceeded", string(resp.Reason))
		assert.NotEmpty(t, resp.Message)
		assert.Equal(t, 14, resp.Decision.Occupied)
	})

	t.Run("validation", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-17", "19:00", 2, ""), false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[errorResponse](t, rec)
		assert.Equal(t, "date", resp.Field)
		assert.Contains(t, resp.Error, "private party")

		rec = env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-14", "16:00", 2, ""), false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "start", decode[errorResponse](t, rec).Field)

		noContact := booking("2026-03-14", "19:00", 2, "")
		noContact.Email = ""
		rec = env.do(t, http.MethodPost, "/api/v1/reservations", noContact, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "contact", decode[errorResponse](t, rec).Field)

		rec = env.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{"unknown": 1}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid JSON body", decode[errorResponse](t, rec).Error)
	})

	t.Run("staff walk-in with table", func(t *testing.T) {
		body := booking("2026-03-14", "22:05", 3, "outdoor")
		body.Status = "seated"
		body.Source = "walk_in"
		body.TableIDs = []int64{3}

		rec := env.do(t, http.MethodPost, "/api/v1/reservations", body, true)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[reservationEnvelope](t, rec).Reservation
		assert.Equal(t, "seated", res.Status)
		assert.Equal(t, "walk_in", res.Source)
		assert.Equal(t, []int64{3}, res.TableIDs)
	})

	t.Run("staff fields ignored without key", func(t *testing.T) {
		body := booking("2026-03-14", "18:00", 2, "outdoor")
		body.Status = "seated"
		rec := env.do(t, http.MethodPost, "/api/v1/reservations", body, false)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "confirmed", decode[reservationEnvelope](t, rec).Reservation.Status)
	})
}

func TestStaffAuth(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/reservations?date=2026-03-14", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	disabled := setupTestServer(t, func(c *Config) { c.StaffAPIKey = "" })
	rec = disabled.do(t, http.MethodGet, "/api/v1/rules?date=2026-03-14", nil, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRules(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/rules?date=2026-03-14", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rule := decode[RuleResponse](t, rec)
	assert.True(t, rule.IsOpen)
	assert.Equal(t, "17:00", rule.Open)
	assert.Equal(t, "21:30", rule.LastReservation)
	assert.False(t, rule.Special)

	rec = env.do(t, http.MethodGet, "/api/v1/rules?date=2026-03-17", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rule = decode[RuleResponse](t, rec)
	assert.False(t, rule.IsOpen)
	assert.True(t, rule.Special)
	assert.Empty(t, rule.Open)
}

func TestReservationLifecycle(t *testing.T) {
	env := setupTestServer(t, nil)

	create := func(start string, party int) int64 {
		rec := env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-14", start, party, "indoor"), false)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[reservationEnvelope](t, rec).Reservation.ID
	}
	first := create("19:00", 4)
	second := create("19:30", 5)

	// Tables
	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/reservations/%d/tables", first), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decode[struct {
		Tables []struct {
			ID int64 `json:"id"`
		} `json:"tables"`
	}](t, rec).Tables
	assert.Len(t, tables, 2, "both indoor tables are free")

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/reservations/%d/tables", first), tablesRequest{TableIDs: []int64{1}}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{1}, decode[reservationEnvelope](t, rec).Reservation.TableIDs)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/reservations/%d/tables", second), tablesRequest{TableIDs: []int64{1}}, true)
	assert.Equal(t, http.StatusConflict, rec.Code, "table 1 is held by an overlapping reservation")

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/reservations/%d/tables", second), tablesRequest{TableIDs: []int64{3}}, true)
	assert.Equal(t, http.StatusConflict, rec.Code, "outdoor table for an indoor reservation")

	// Status
	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/status", first), statusRequest{Status: "cancelled"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[reservationEnvelope](t, rec).Reservation.Status)

	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/status", first), statusRequest{Status: "confirmed"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/status", second), statusRequest{Status: "gone"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/reservations/999/status", statusRequest{Status: "seated"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The cancelled reservation frees table 1.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/reservations/%d/tables", second), tablesRequest{TableIDs: []int64{1}}, true)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Listing
	rec = env.do(t, http.MethodGet, "/api/v1/reservations?date=2026-03-14", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Reservations []json.RawMessage `json:"reservations"`
	}](t, rec).Reservations
	assert.Len(t, list, 2)
}

func TestLoad(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/reservations", booking("2026-03-14", "18:00", 6, "indoor"), false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/load?date=2026-03-14", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[struct {
		Open   bool `json:"open"`
		Guests int  `json:"guests"`
		Hours  []struct {
			Peak struct {
				Total int `json:"total"`
			} `json:"peak"`
			Level string `json:"level"`
		} `json:"hours"`
	}](t, rec)
	assert.True(t, report.Open)
	assert.Equal(t, 6, report.Guests)
	require.Len(t, report.Hours, 6)
	assert.Equal(t, 6, report.Hours[1].Peak.Total)
	assert.Equal(t, 6, report.Hours[2].Peak.Total)
	assert.Equal(t, 0, report.Hours[3].Peak.Total)

	rec = env.do(t, http.MethodGet, "/api/v1/load/export?date=2026-03-14", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "load_2026-03-14.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t, func(c *Config) { c.CORSOrigins = []string{"https://book.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/availability", http.NoBody)
	req.Header.Set("Origin", "https://book.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://book.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
