package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tablebook/internal/models"
)

// ListTables returns all tables, active or not, ordered by ID.
func (db *DB) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, number, area, seats, is_active FROM dining_tables ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Table
	for rows.Next() {
		var t models.Table
		var area string
		if err := rows.Scan(&t.ID, &t.Number, &area, &t.Seats, &t.IsActive); err != nil {
			return nil, err
		}
		t.Area = models.Area(area)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTable returns a table by ID.
func (db *DB) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	var t models.Table
	var area string
	err := db.QueryRowContext(ctx,
		`SELECT id, number, area, seats, is_active FROM dining_tables WHERE id = ?`, id,
	).Scan(&t.ID, &t.Number, &area, &t.Seats, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Area = models.Area(area)
	return &t, nil
}

// UpsertTable creates or updates a table keyed by ID, preserving created_at.
func (db *DB) UpsertTable(ctx context.Context, t models.Table) error {
	return upsertTable(ctx, db.DB, t)
}

func upsertTable(ctx context.Context, ex execer, t models.Table) error {
	now := time.Now()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO dining_tables (id, number, area, seats, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			area = excluded.area,
			seats = excluded.seats,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		t.ID, t.Number, string(t.Area), t.Seats, t.IsActive, now, now,
	)
	return err
}

// DeleteTable removes a table. Reservations that held it keep existing and
// simply lose the link.
func (db *DB) DeleteTable(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM dining_tables WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
