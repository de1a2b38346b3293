package database

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/engine"
	"tablebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.UseLocation(time.UTC)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const restaurantYAML = `
settings:
  indoor: { capacity: 30, max_party_size: 10, max_large_groups: 1, max_very_large_groups: 1 }
  dwell_minutes: 120
  closed_message: "See you soon"
opening_hours:
  - { weekday: monday, is_open: false }
  - { weekday: friday, is_open: true, open: "17:00", close: "22:00", last_reservation: "21:00" }
special_days:
  - { date: "2025-12-25", is_open: false, public_message: "Christmas" }
  - { date: "2025-12-31", is_open: true, open: "18:00", close: "23:30", bookings_open_from: "2025-11-01 09:00" }
tables:
  - { id: 1, number: "1", area: indoor, seats: 4 }
  - { id: 2, number: "2", area: indoor, seats: 2 }
  - { id: 3, number: "T1", area: outdoor, seats: 6 }
load: { calm_below: 0.4, busy_below: 0.8 }
`

func TestSyncFromConfig_LoadSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg, err := config.ParseRestaurantConfig([]byte(restaurantYAML))
	require.NoError(t, err)
	require.NoError(t, db.SyncFromConfig(ctx, cfg, time.UTC))

	snap, err := db.LoadSnapshot(ctx, time.UTC)
	require.NoError(t, err)

	want, err := cfg.Snapshot(time.UTC)
	require.NoError(t, err)

	assert.Equal(t, want.Settings, snap.Settings)
	assert.Equal(t, want.Load, snap.Load)
	assert.ElementsMatch(t, want.Weekly, snap.Weekly)
	assert.Equal(t, want.Tables, snap.Tables)
	require.Len(t, snap.Special, 2)
	assert.Equal(t, "Christmas", snap.Special[0].PublicMessage)
	assert.True(t, want.Special[1].BookingsOpenFrom.Equal(snap.Special[1].BookingsOpenFrom))

	// Re-sync without table 2 and the Christmas override.
	cfg.Tables = cfg.Tables[:1]
	cfg.SpecialDays = cfg.SpecialDays[1:]
	require.NoError(t, db.SyncFromConfig(ctx, cfg, time.UTC))

	snap, err = db.LoadSnapshot(ctx, time.UTC)
	require.NoError(t, err)
	assert.Len(t, snap.Special, 1)
	require.Len(t, snap.Tables, 3)
	assert.True(t, snap.Tables[0].IsActive)
	assert.False(t, snap.Tables[1].IsActive, "removed tables are deactivated, not deleted")
	assert.False(t, snap.Tables[2].IsActive)
}

func TestGetSettings_Defaults(t *testing.T) {
	db := newTestDB(t)

	s, load, err := db.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), s)
	assert.Equal(t, engine.LoadConfig{}, load)
}

func TestSaveSettings_RejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	s := models.DefaultSettings()
	s.Dwell = 0
	assert.Error(t, db.SaveSettings(context.Background(), s, engine.LoadConfig{}))
}

func seedTables(t *testing.T, db *DB) {
	t.Helper()
	for _, tbl := range []models.Table{
		{ID: 1, Number: "1", Area: models.AreaIndoor, Seats: 4, IsActive: true},
		{ID: 2, Number: "2", Area: models.AreaIndoor, Seats: 2, IsActive: true},
	} {
		require.NoError(t, db.UpsertTable(context.Background(), tbl))
	}
}

func TestReservations_CRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTables(t, db)

	day := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	r := &models.Reservation{
		Reference:    "abc-123",
		Name:         "Ada",
		Email:        "ada@example.com",
		Date:         day,
		Start:        models.Clock(19, 0),
		PartySize:    4,
		Preference:   models.AreaNone,
		Area:         models.AreaIndoor,
		Status:       models.StatusConfirmed,
		Source:       models.SourceOnline,
		DwellMinutes: 90,
		TableIDs:     []int64{2, 1},
	}
	require.NoError(t, db.CreateReservation(ctx, r))
	require.NotZero(t, r.ID)

	other := &models.Reservation{
		Reference: "def-456", Name: "Bob", Date: day, Start: models.Clock(18, 0), PartySize: 2,
		Preference: models.AreaOutdoor, Area: models.AreaOutdoor, Status: models.StatusPending, Source: models.SourcePhone,
	}
	require.NoError(t, db.CreateReservation(ctx, other))

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, day, got.Date)
	assert.Equal(t, models.Clock(19, 0), got.Start)
	assert.Equal(t, []int64{1, 2}, got.TableIDs)
	assert.Equal(t, 90, got.DwellMinutes)

	byRef, err := db.GetReservationByReference(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byRef.ID)

	list, err := db.ListReservationsByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bob", list[0].Name, "ordered by start")
	assert.Equal(t, []int64{1, 2}, list[1].TableIDs)

	require.NoError(t, db.UpdateReservationStatus(ctx, other.ID, models.StatusCancelled))
	got, err = db.GetReservation(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	require.NoError(t, db.SetReservationTables(ctx, r.ID, []int64{2}))
	got, err = db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, got.TableIDs)

	empty, err := db.ListReservationsByDate(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReservations_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetReservation(ctx, 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(db.UpdateReservationStatus(ctx, 42, models.StatusSeated), ErrNotFound))
	assert.True(t, errors.Is(db.SetReservationTables(ctx, 42, nil), ErrNotFound))
	assert.True(t, errors.Is(db.DeleteTable(ctx, 42), ErrNotFound))
}

func TestDeleteTable_KeepsReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTables(t, db)

	r := &models.Reservation{
		Reference: "ref", Name: "Cy", Date: time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), Start: models.Clock(18, 0),
		PartySize: 2, Preference: models.AreaIndoor, Area: models.AreaIndoor, Status: models.StatusConfirmed,
		Source: models.SourceOnline, TableIDs: []int64{1, 2},
	}
	require.NoError(t, db.CreateReservation(ctx, r))
	require.NoError(t, db.DeleteTable(ctx, 1))

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, got.TableIDs)

	_, err = db.GetTable(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSpecialDayUpsertAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertSpecialDay(ctx, models.SpecialOpeningDay{Date: date, IsOpen: false, PublicMessage: "Easter"}))
	require.NoError(t, db.UpsertSpecialDay(ctx, models.SpecialOpeningDay{
		Date: date, IsOpen: true, Open: models.Clock(12, 0), Close: models.Clock(16, 0), PublicMessage: "Easter brunch",
	}))

	days, err := db.ListSpecialDays(ctx, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.True(t, days[0].IsOpen)
	assert.Equal(t, models.Clock(16, 0), days[0].EffectiveLastReservation())

	require.NoError(t, db.DeleteSpecialDay(ctx, date))
	days, err = db.ListSpecialDays(ctx, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(db, BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, zerolog.New(io.Discard))
	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := filepath.Join(dir, "backup_old.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}

func TestBackupService_Disabled(t *testing.T) {
	db := newTestDB(t)
	svc := NewBackupService(db, BackupConfig{}, zerolog.New(io.Discard))
	assert.NoError(t, svc.Start(context.Background()))
}
