package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/engine"
	"tablebook/internal/models"
)

// SyncFromConfig applies restaurant.yaml to the database.
// It upserts settings, weekly rules, special days and tables, removes rules
// and special days no longer present, and marks missing tables inactive so
// existing reservations keep their links.
func (db *DB) SyncFromConfig(ctx context.Context, cfg *config.RestaurantConfig, loc *time.Location) error {
	if cfg == nil {
		return fmt.Errorf("restaurant config is nil")
	}

	snap, err := cfg.Snapshot(loc)
	if err != nil {
		return err
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		return syncSnapshot(ctx, tx, snap)
	})
}

func syncSnapshot(ctx context.Context, tx *sql.Tx, snap engine.Snapshot) error {
	if err := saveSettings(ctx, tx, snap.Settings, snap.Load); err != nil {
		return fmt.Errorf("sync settings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM opening_hours`); err != nil {
		return fmt.Errorf("clear opening hours: %w", err)
	}
	for _, h := range snap.Weekly {
		if err := upsertOpeningHours(ctx, tx, h); err != nil {
			return fmt.Errorf("sync weekday %s: %w", h.Weekday, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM special_days`); err != nil {
		return fmt.Errorf("clear special days: %w", err)
	}
	for _, d := range snap.Special {
		if err := upsertSpecialDay(ctx, tx, d); err != nil {
			return fmt.Errorf("sync special day %s: %w", d.Date.Format(models.DateLayout), err)
		}
	}

	seen := make(map[int64]struct{}, len(snap.Tables))
	for _, t := range snap.Tables {
		// Free the number first in case two tables swapped numbers.
		if _, err := tx.ExecContext(ctx,
			`UPDATE dining_tables SET number = number || '#' || id WHERE number = ? AND id <> ?`, t.Number, t.ID,
		); err != nil {
			return fmt.Errorf("sync table %d: %w", t.ID, err)
		}
		if err := upsertTable(ctx, tx, t); err != nil {
			return fmt.Errorf("sync table %d: %w", t.ID, err)
		}
		seen[t.ID] = struct{}{}
	}

	// Deactivate tables that disappeared from config.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM dining_tables WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	now := time.Now()
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `UPDATE dining_tables SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate table %d: %w", id, err)
		}
	}

	return nil
}
