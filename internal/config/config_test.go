package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tablebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restaurantYAML = `
settings:
  indoor: { capacity: 30, max_party_size: 10, max_large_groups: 1, max_very_large_groups: 1 }
  dwell_minutes: 120
  min_lead_minutes: 0
  reservations_enabled: false
  closed_message: "Renovation"
opening_hours:
  - { weekday: monday, is_open: false }
  - { weekday: friday, is_open: true, open: "17:00", close: "22:00" }
special_days:
  - { date: "2025-12-25", is_open: false, public_message: "Christmas" }
  - date: "2025-12-31"
    is_open: true
    open: "18:00"
    close: "23:30"
    last_reservation: "21:00"
    bookings_open_from: "2025-11-01 09:00"
tables:
  - { id: 1, number: "1", area: indoor, seats: 4 }
  - { id: 2, number: "T1", area: outdoor, seats: 2, is_active: false }
load:
  calm_below: 0.4
  busy_below: 0.8
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TB_TEST_KEY", "secret-key")

	path := writeFile(t, dir, "config.yaml", `
database:
  path: "`+filepath.Join(dir, "db", "test.db")+`"
api:
  staff_api_key: "${TB_TEST_KEY}"
restaurant:
  timezone: "UTC"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.API.StaffAPIKey)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Second, cfg.WatchInterval())
	assert.DirExists(t, filepath.Join(dir, "db"))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_BadTimezone(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  path: "`+filepath.Join(dir, "x.db")+`"
restaurant:
  timezone: "Mars/Olympus"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseRestaurantConfig(t *testing.T) {
	cfg, err := ParseRestaurantConfig([]byte(restaurantYAML))
	require.NoError(t, err)

	s, err := cfg.ToSettings()
	require.NoError(t, err)
	assert.Equal(t, 30, s.Indoor.Capacity)
	assert.Equal(t, 54, s.Outdoor.Capacity, "omitted area keeps defaults")
	assert.Equal(t, 2*time.Hour, s.Dwell)
	assert.Zero(t, s.MinLeadTime)
	assert.False(t, s.ReservationsEnabled)
	assert.Equal(t, "Renovation", s.ClosedMessage)
	assert.Equal(t, models.GroupThresholds{MediumMin: 5, LargeMin: 7, VeryLargeMin: 9}, s.Groups)

	hours, err := cfg.OpeningHours()
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, time.Friday, hours[1].Weekday)
	assert.Equal(t, models.Clock(22, 0), hours[1].EffectiveLastReservation())

	days, err := cfg.SpecialOpeningDays(time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.False(t, days[0].IsOpen)
	assert.Equal(t, time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC), days[1].BookingsOpenFrom)

	tables, err := cfg.TableModels()
	require.NoError(t, err)
	assert.True(t, tables[0].IsActive)
	assert.False(t, tables[1].IsActive)

	snap, err := cfg.Snapshot(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0.4, snap.Load.CalmBelow)
	assert.Len(t, snap.Tables, 2)

	assert.Len(t, cfg.MissingWeekdays(), 5)
	assert.Contains(t, cfg.String(), "2 tables (1 active)")
}

func TestRestaurantConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate weekday", `
opening_hours:
  - { weekday: friday, is_open: false }
  - { weekday: fri, is_open: false }`},
		{"last reservation after close", `
opening_hours:
  - { weekday: friday, is_open: true, open: "17:00", close: "22:00", last_reservation: "22:30" }`},
		{"bad time", `
opening_hours:
  - { weekday: friday, is_open: true, open: "5pm", close: "22:00" }`},
		{"duplicate special day", `
special_days:
  - { date: "2025-12-25", is_open: false }
  - { date: "2025-12-25", is_open: false }`},
		{"bad bookings_open_from", `
special_days:
  - { date: "2025-12-31", is_open: true, open: "18:00", close: "23:00", bookings_open_from: "soon" }`},
		{"table without area", `
tables:
  - { id: 1, number: "1", seats: 4 }`},
		{"duplicate table number", `
tables:
  - { id: 1, number: "1", area: indoor, seats: 4 }
  - { id: 2, number: "1", area: outdoor, seats: 4 }`},
		{"thresholds not increasing", `
settings:
  groups: { medium_min: 5, large_min: 5, very_large_min: 9 }`},
		{"unknown unassigned area", `
settings:
  unassigned_area: patio`},
		{"load fractions inverted", `
load: { calm_below: 0.9, busy_below: 0.5 }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRestaurantConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2025-11-01T09:00:00+01:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 8, ts.UTC().Hour())

	loc := time.FixedZone("X", 2*3600)
	ts, err = ParseTimestamp("2025-11-01 09:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 7, ts.UTC().Hour())
}

func TestWatchRestaurant(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "restaurant.yaml", restaurantYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates atomic.Int32
	var lastDwell atomic.Int64
	err := WatchRestaurant(ctx, path, 10*time.Millisecond, zerolog.New(io.Discard), func(c *RestaurantConfig) {
		updates.Add(1)
		lastDwell.Store(int64(c.Settings.DwellMinutes))
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), updates.Load())

	// An invalid edit is skipped.
	writeFile(t, dir, "restaurant.yaml", "settings: { dwell_minutes: -5 }")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), updates.Load())

	writeFile(t, dir, "restaurant.yaml", "settings: { dwell_minutes: 75 }")
	future = future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(75), lastDwell.Load())
}
