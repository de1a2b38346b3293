// Package tables finds tables free for a reservation interval.
package tables

import (
	"sort"
	"strconv"
	"time"

	"tablebook/internal/models"
	"tablebook/internal/overlap"
)

// Query selects tables for an interval.
type Query struct {
	Interval overlap.Interval
	// Area AreaNone matches tables in any area.
	Area models.Area
	// MinSeats filters out smaller tables; zero disables the filter.
	MinSeats int
	// ExcludeReservationID ignores the reservation being edited, so its own
	// tables are offered back.
	ExcludeReservationID int64
}

// Busy returns the tables held by active reservations overlapping the query
// interval, mapped to the holding reservation's ID.
func Busy(q Query, reservations []models.Reservation, dwell time.Duration) map[int64]int64 {
	date := models.DateOf(q.Interval.Start, nil)
	idx := overlap.NewIndex(date, models.AreaNone, reservations, overlap.Options{Dwell: dwell})

	busy := make(map[int64]int64)
	for _, e := range idx.Overlapping(q.Interval) {
		if q.ExcludeReservationID != 0 && e.Reservation.ID == q.ExcludeReservationID {
			continue
		}
		for _, id := range e.Reservation.TableIDs {
			busy[id] = e.Reservation.ID
		}
	}
	return busy
}

// Available returns the active tables matching q that no overlapping active
// reservation holds, ordered by table number.
func Available(q Query, all []models.Table, reservations []models.Reservation, dwell time.Duration) []models.Table {
	busy := Busy(q, reservations, dwell)

	var free []models.Table
	for _, t := range all {
		if !t.IsActive {
			continue
		}
		if q.Area.IsSeating() && t.Area != q.Area {
			continue
		}
		if q.MinSeats > 0 && t.Seats < q.MinSeats {
			continue
		}
		if _, taken := busy[t.ID]; taken {
			continue
		}
		free = append(free, t)
	}

	SortByNumber(free)
	return free
}

// SortByNumber orders tables by number, numerically when both numbers are integers.
func SortByNumber(ts []models.Table) {
	sort.SliceStable(ts, func(i, j int) bool {
		return lessNumber(ts[i], ts[j])
	})
}

func lessNumber(a, b models.Table) bool {
	an, aErr := strconv.Atoi(a.Number)
	bn, bErr := strconv.Atoi(b.Number)
	switch {
	case aErr == nil && bErr == nil && an != bn:
		return an < bn
	case aErr == nil && bErr != nil:
		return true
	case aErr != nil && bErr == nil:
		return false
	case a.Number != b.Number && (aErr != nil || bErr != nil):
		return a.Number < b.Number
	}
	return a.ID < b.ID
}

// Seats sums the seats of the given tables.
func Seats(ts []models.Table) int {
	total := 0
	for _, t := range ts {
		total += t.Seats
	}
	return total
}
