package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tablebook/internal/models"
)

const reservationColumns = `id, reference, name, email, phone, date, start_minute, party_size,
	preference, area, status, notes, source, dwell_minutes, created_at, updated_at`

// UseLocation sets the time zone reservation dates are read into.
func (db *DB) UseLocation(loc *time.Location) {
	db.loc = loc
}

func (db *DB) location() *time.Location {
	if db.loc == nil {
		return time.Local
	}
	return db.loc
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanReservation(s rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var date, preference, area, status, source string
	var email, phone, notes sql.NullString
	var start int

	if err := s.Scan(
		&r.ID, &r.Reference, &r.Name, &email, &phone, &date, &start, &r.PartySize,
		&preference, &area, &status, &notes, &source, &r.DwellMinutes, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d, err := models.ParseDate(date, db.location())
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	r.Date = d
	r.Start = models.TimeOfDay(start)
	r.Email = email.String
	r.Phone = phone.String
	r.Notes = notes.String
	r.Preference = models.Area(preference)
	r.Area = models.Area(area)
	r.Status = models.Status(status)
	r.Source = models.Source(source)
	return &r, nil
}

// CreateReservation inserts r with its table links and fills ID and timestamps.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (
				reference, name, email, phone, date, start_minute, party_size,
				preference, area, status, notes, source, dwell_minutes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Reference, r.Name, r.Email, r.Phone, r.Date.Format(models.DateLayout), int(r.Start), r.PartySize,
			string(r.Preference), string(r.Area), string(r.Status), r.Notes, string(r.Source), r.DwellMinutes, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := replaceTables(ctx, tx, id, r.TableIDs); err != nil {
			return err
		}
		r.ID = id
		r.CreatedAt = now
		r.UpdatedAt = now
		return nil
	})
}

// GetReservation returns a reservation by ID with its tables.
func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	return db.oneReservation(ctx, row)
}

// GetReservationByReference returns a reservation by its public reference.
func (db *DB) GetReservationByReference(ctx context.Context, ref string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE reference = ?`, ref)
	return db.oneReservation(ctx, row)
}

func (db *DB) oneReservation(ctx context.Context, row *sql.Row) (*models.Reservation, error) {
	r, err := db.scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT table_id FROM reservation_tables WHERE reservation_id = ? ORDER BY table_id`, r.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tid int64
		if err := rows.Scan(&tid); err != nil {
			return nil, err
		}
		r.TableIDs = append(r.TableIDs, tid)
	}
	return r, rows.Err()
}

// ListReservationsByDate returns every reservation of date regardless of
// status, ordered by start time.
func (db *DB) ListReservationsByDate(ctx context.Context, date time.Time) ([]models.Reservation, error) {
	day := date.Format(models.DateLayout)

	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE date = ?
		ORDER BY start_minute, id`, day)
	if err != nil {
		return nil, err
	}

	var out []models.Reservation
	index := make(map[int64]int)
	for rows.Next() {
		r, err := db.scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[r.ID] = len(out)
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	links, err := db.QueryContext(ctx, `
		SELECT rt.reservation_id, rt.table_id
		FROM reservation_tables rt
		JOIN reservations r ON r.id = rt.reservation_id
		WHERE r.date = ?
		ORDER BY rt.reservation_id, rt.table_id`, day)
	if err != nil {
		return nil, err
	}
	defer links.Close()

	for links.Next() {
		var rid, tid int64
		if err := links.Scan(&rid, &tid); err != nil {
			return nil, err
		}
		if i, ok := index[rid]; ok {
			out[i].TableIDs = append(out[i].TableIDs, tid)
		}
	}
	return out, links.Err()
}

// UpdateReservationStatus changes the status of a reservation.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, status models.Status) error {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReservationTables replaces the table links of a reservation.
func (db *DB) SetReservationTables(ctx context.Context, id int64, tableIDs []int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE reservations SET updated_at = ? WHERE id = ?`, time.Now(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return replaceTables(ctx, tx, id, tableIDs)
	})
}

func replaceTables(ctx context.Context, tx *sql.Tx, reservationID int64, tableIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservation_tables WHERE reservation_id = ?`, reservationID); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}
	if len(tableIDs) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(tableIDs))
	args := make([]any, 0, len(tableIDs)*2)
	for _, tid := range tableIDs {
		placeholders = append(placeholders, "(?, ?)")
		args = append(args, reservationID, tid)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO reservation_tables (reservation_id, table_id) VALUES `+strings.Join(placeholders, ", "),
		args...,
	)
	if err != nil {
		return fmt.Errorf("link tables: %w", err)
	}
	return nil
}
