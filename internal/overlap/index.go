// Package overlap provides half-open dwell intervals and a per-area index
// answering which reservations overlap a given interval.
package overlap

import (
	"sort"
	"time"

	"tablebook/internal/models"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New returns [start, start+d).
func New(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Of returns the dwell interval of a reservation.
func Of(r *models.Reservation, fallback time.Duration) Interval {
	return New(r.StartTime(), r.Dwell(fallback))
}

// Overlaps reports whether two intervals intersect. Back-to-back intervals do not.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Entry is an indexed reservation with its resolved interval.
type Entry struct {
	Interval
	Reservation models.Reservation
}

// Index holds the active reservations of one date and area, sorted by start.
type Index struct {
	date     time.Time
	area     models.Area
	entries  []Entry
	maxDwell time.Duration
}

// Options controls which reservations enter an index.
type Options struct {
	// Dwell is used for reservations without a dwell snapshot.
	Dwell time.Duration
	// Unassigned is the area that reservations without an area count toward.
	Unassigned models.Area
}

// NewIndex builds an index for date and area. AreaNone builds an index over all
// areas. Inactive reservations and reservations on other dates are skipped.
func NewIndex(date time.Time, area models.Area, reservations []models.Reservation, opts Options) *Index {
	idx := &Index{date: date, area: area}

	for i := range reservations {
		r := reservations[i]
		if !r.Status.Active() || !models.SameDate(r.Date, date) {
			continue
		}
		if area.IsSeating() && effectiveArea(r.Area, opts.Unassigned) != area {
			continue
		}

		iv := Of(&r, opts.Dwell)
		if d := iv.Duration(); d > idx.maxDwell {
			idx.maxDwell = d
		}
		idx.entries = append(idx.entries, Entry{Interval: iv, Reservation: r})
	}

	sort.SliceStable(idx.entries, func(i, j int) bool {
		return idx.entries[i].Start.Before(idx.entries[j].Start)
	})
	return idx
}

func effectiveArea(area, unassigned models.Area) models.Area {
	if area.IsSeating() {
		return area
	}
	if unassigned.IsSeating() {
		return unassigned
	}
	return models.AreaIndoor
}

// Date returns the indexed date.
func (x *Index) Date() time.Time { return x.date }

// Area returns the indexed area, AreaNone for an all-area index.
func (x *Index) Area() models.Area { return x.area }

// Len returns the number of indexed reservations.
func (x *Index) Len() int { return len(x.entries) }

// Entries returns the indexed entries in start order. The slice must not be modified.
func (x *Index) Entries() []Entry { return x.entries }

// Overlapping returns the entries whose interval overlaps iv, in start order.
// Only entries starting in (iv.Start-maxDwell, iv.End) can overlap, so the
// candidates are found by binary search on start.
func (x *Index) Overlapping(iv Interval) []Entry {
	if x == nil || len(x.entries) == 0 {
		return nil
	}

	lowBound := iv.Start.Add(-x.maxDwell)
	lo := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Start.After(lowBound)
	})
	hi := sort.Search(len(x.entries), func(i int) bool {
		return !x.entries[i].Start.Before(iv.End)
	})

	var out []Entry
	for i := lo; i < hi; i++ {
		if x.entries[i].Overlaps(iv) {
			out = append(out, x.entries[i])
		}
	}
	return out
}

// Guests sums party sizes over the entries overlapping iv.
func (x *Index) Guests(iv Interval) int {
	total := 0
	for _, e := range x.Overlapping(iv) {
		total += e.Reservation.PartySize
	}
	return total
}
