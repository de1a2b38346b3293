package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/engine"
	"tablebook/internal/models"
)

// LoadSnapshot reads settings, opening rules and tables into an engine snapshot.
// Without a settings row the defaults apply.
func (db *DB) LoadSnapshot(ctx context.Context, loc *time.Location) (engine.Snapshot, error) {
	settings, load, err := db.GetSettings(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	weekly, err := db.ListOpeningHours(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("load opening hours: %w", err)
	}
	special, err := db.ListSpecialDays(ctx, loc)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("load special days: %w", err)
	}
	tables, err := db.ListTables(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("load tables: %w", err)
	}

	return engine.Snapshot{
		Settings: settings,
		Weekly:   weekly,
		Special:  special,
		Tables:   tables,
		Location: loc,
		Load:     load,
	}, nil
}

// GetSettings returns the settings row, or the defaults when none was saved.
func (db *DB) GetSettings(ctx context.Context) (models.Settings, engine.LoadConfig, error) {
	s := models.DefaultSettings()
	var load engine.LoadConfig
	var dwell, lead int
	var closedMessage sql.NullString
	var unassigned string

	err := db.QueryRowContext(ctx, `
		SELECT indoor_capacity, indoor_max_party, indoor_max_large, indoor_max_very_large,
		       outdoor_capacity, outdoor_max_party, outdoor_max_large, outdoor_max_very_large,
		       medium_min, large_min, very_large_min, dwell_minutes, reservations_enabled,
		       closed_message, min_lead_minutes, unassigned_area, calm_below, busy_below
		FROM settings WHERE id = 1`,
	).Scan(
		&s.Indoor.Capacity, &s.Indoor.MaxPartySize, &s.Indoor.MaxLargeGroups, &s.Indoor.MaxVeryLargeGroups,
		&s.Outdoor.Capacity, &s.Outdoor.MaxPartySize, &s.Outdoor.MaxLargeGroups, &s.Outdoor.MaxVeryLargeGroups,
		&s.Groups.MediumMin, &s.Groups.LargeMin, &s.Groups.VeryLargeMin, &dwell, &s.ReservationsEnabled,
		&closedMessage, &lead, &unassigned, &load.CalmBelow, &load.BusyBelow,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(), load, nil
	}
	if err != nil {
		return s, load, err
	}

	s.Dwell = time.Duration(dwell) * time.Minute
	s.MinLeadTime = time.Duration(lead) * time.Minute
	s.ClosedMessage = closedMessage.String
	s.UnassignedArea = models.Area(unassigned)
	return s, load, nil
}

// SaveSettings upserts the singleton settings row.
func (db *DB) SaveSettings(ctx context.Context, s models.Settings, load engine.LoadConfig) error {
	return saveSettings(ctx, db.DB, s, load)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSettings(ctx context.Context, ex execer, s models.Settings, load engine.LoadConfig) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO settings (
			id, indoor_capacity, indoor_max_party, indoor_max_large, indoor_max_very_large,
			outdoor_capacity, outdoor_max_party, outdoor_max_large, outdoor_max_very_large,
			medium_min, large_min, very_large_min, dwell_minutes, reservations_enabled,
			closed_message, min_lead_minutes, unassigned_area, calm_below, busy_below, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			indoor_capacity = excluded.indoor_capacity,
			indoor_max_party = excluded.indoor_max_party,
			indoor_max_large = excluded.indoor_max_large,
			indoor_max_very_large = excluded.indoor_max_very_large,
			outdoor_capacity = excluded.outdoor_capacity,
			outdoor_max_party = excluded.outdoor_max_party,
			outdoor_max_large = excluded.outdoor_max_large,
			outdoor_max_very_large = excluded.outdoor_max_very_large,
			medium_min = excluded.medium_min,
			large_min = excluded.large_min,
			very_large_min = excluded.very_large_min,
			dwell_minutes = excluded.dwell_minutes,
			reservations_enabled = excluded.reservations_enabled,
			closed_message = excluded.closed_message,
			min_lead_minutes = excluded.min_lead_minutes,
			unassigned_area = excluded.unassigned_area,
			calm_below = excluded.calm_below,
			busy_below = excluded.busy_below,
			updated_at = excluded.updated_at`,
		s.Indoor.Capacity, s.Indoor.MaxPartySize, s.Indoor.MaxLargeGroups, s.Indoor.MaxVeryLargeGroups,
		s.Outdoor.Capacity, s.Outdoor.MaxPartySize, s.Outdoor.MaxLargeGroups, s.Outdoor.MaxVeryLargeGroups,
		s.Groups.MediumMin, s.Groups.LargeMin, s.Groups.VeryLargeMin, int(s.Dwell/time.Minute), s.ReservationsEnabled,
		s.ClosedMessage, int(s.MinLeadTime/time.Minute), string(s.EffectiveArea(s.UnassignedArea)),
		load.CalmBelow, load.BusyBelow, time.Now(),
	)
	return err
}

// ListOpeningHours returns the weekly rules ordered by weekday.
func (db *DB) ListOpeningHours(ctx context.Context) ([]models.OpeningHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT weekday, is_open, open_time, close_time, last_reservation
		FROM opening_hours ORDER BY weekday`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OpeningHours
	for rows.Next() {
		var h models.OpeningHours
		var weekday int
		var open, closeAt, last sql.NullString
		if err := rows.Scan(&weekday, &h.IsOpen, &open, &closeAt, &last); err != nil {
			return nil, err
		}
		h.Weekday = time.Weekday(weekday)
		if h.Open, h.Close, h.LastReservation, err = scanWindow(open, closeAt, last); err != nil {
			return nil, fmt.Errorf("weekday %d: %w", weekday, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertOpeningHours stores one weekday rule.
func (db *DB) UpsertOpeningHours(ctx context.Context, h models.OpeningHours) error {
	return upsertOpeningHours(ctx, db.DB, h)
}

func upsertOpeningHours(ctx context.Context, ex execer, h models.OpeningHours) error {
	if err := h.Validate(); err != nil {
		return err
	}
	open, closeAt, last := windowArgs(h.IsOpen, h.Open, h.Close, h.LastReservation)
	_, err := ex.ExecContext(ctx, `
		INSERT INTO opening_hours (weekday, is_open, open_time, close_time, last_reservation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(weekday) DO UPDATE SET
			is_open = excluded.is_open,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			last_reservation = excluded.last_reservation,
			updated_at = excluded.updated_at`,
		int(h.Weekday), h.IsOpen, open, closeAt, last, time.Now(),
	)
	return err
}

// ListSpecialDays returns all special days; dates are placed in loc.
func (db *DB) ListSpecialDays(ctx context.Context, loc *time.Location) ([]models.SpecialOpeningDay, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, is_open, open_time, close_time, last_reservation, bookings_open_from, public_message
		FROM special_days ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SpecialOpeningDay
	for rows.Next() {
		var d models.SpecialOpeningDay
		var date string
		var open, closeAt, last, openFrom, message sql.NullString
		if err := rows.Scan(&date, &d.IsOpen, &open, &closeAt, &last, &openFrom, &message); err != nil {
			return nil, err
		}
		if d.Date, err = models.ParseDate(date, loc); err != nil {
			return nil, err
		}
		if d.Open, d.Close, d.LastReservation, err = scanWindow(open, closeAt, last); err != nil {
			return nil, fmt.Errorf("special day %s: %w", date, err)
		}
		if openFrom.Valid && openFrom.String != "" {
			if d.BookingsOpenFrom, err = time.Parse(time.RFC3339, openFrom.String); err != nil {
				return nil, fmt.Errorf("special day %s bookings_open_from: %w", date, err)
			}
		}
		d.PublicMessage = message.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertSpecialDay stores one special day keyed by its date.
func (db *DB) UpsertSpecialDay(ctx context.Context, d models.SpecialOpeningDay) error {
	return upsertSpecialDay(ctx, db.DB, d)
}

func upsertSpecialDay(ctx context.Context, ex execer, d models.SpecialOpeningDay) error {
	if err := d.Validate(); err != nil {
		return err
	}
	open, closeAt, last := windowArgs(d.IsOpen, d.Open, d.Close, d.LastReservation)
	var openFrom any
	if !d.BookingsOpenFrom.IsZero() {
		openFrom = d.BookingsOpenFrom.UTC().Format(time.RFC3339)
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO special_days (date, is_open, open_time, close_time, last_reservation, bookings_open_from, public_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			is_open = excluded.is_open,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			last_reservation = excluded.last_reservation,
			bookings_open_from = excluded.bookings_open_from,
			public_message = excluded.public_message,
			updated_at = excluded.updated_at`,
		d.Date.Format(models.DateLayout), d.IsOpen, open, closeAt, last, openFrom, d.PublicMessage, time.Now(),
	)
	return err
}

// DeleteSpecialDay removes the override for a date.
func (db *DB) DeleteSpecialDay(ctx context.Context, date time.Time) error {
	_, err := db.ExecContext(ctx, "DELETE FROM special_days WHERE date = ?", date.Format(models.DateLayout))
	return err
}

func windowArgs(isOpen bool, open, closeAt, last models.TimeOfDay) (any, any, any) {
	if !isOpen {
		return nil, nil, nil
	}
	var lastArg any
	if last != 0 {
		lastArg = last.String()
	}
	return open.String(), closeAt.String(), lastArg
}

func scanWindow(open, closeAt, last sql.NullString) (o, c, l models.TimeOfDay, err error) {
	if open.Valid && open.String != "" {
		if o, err = models.ParseTimeOfDay(open.String); err != nil {
			return 0, 0, 0, err
		}
	}
	if closeAt.Valid && closeAt.String != "" {
		if c, err = models.ParseTimeOfDay(closeAt.String); err != nil {
			return 0, 0, 0, err
		}
	}
	if last.Valid && last.String != "" {
		if l, err = models.ParseTimeOfDay(last.String); err != nil {
			return 0, 0, 0, err
		}
	}
	return o, c, l, nil
}
