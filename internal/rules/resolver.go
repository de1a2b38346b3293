// Package rules resolves the effective opening rule for a calendar date.
package rules

import (
	"errors"
	"fmt"
	"time"

	"tablebook/internal/models"
)

// ErrNotConfigured is returned when no weekday rule exists for a date.
// Callers treat the date as closed.
var ErrNotConfigured = errors.New("opening hours not configured")

// EffectiveRule is the opening rule for one date after special-day override.
type EffectiveRule struct {
	Date            time.Time
	IsOpen          bool
	Open            models.TimeOfDay
	Close           models.TimeOfDay
	LastReservation models.TimeOfDay
	// BookingsOpenFrom is zero for weekday rules (always bookable).
	BookingsOpenFrom time.Time
	PublicMessage    string
	Special          bool
}

// OpenAt returns the opening time on the rule's date.
func (r EffectiveRule) OpenAt() time.Time { return r.Open.On(r.Date) }

// CloseAt returns the closing time on the rule's date.
func (r EffectiveRule) CloseAt() time.Time { return r.Close.On(r.Date) }

// LastReservationAt returns the last bookable start on the rule's date.
func (r EffectiveRule) LastReservationAt() time.Time { return r.LastReservation.On(r.Date) }

// Closed is the rule used when nothing applies.
func Closed(date time.Time) EffectiveRule {
	return EffectiveRule{Date: date}
}

// Resolver answers rule lookups from a snapshot of the weekly and special-day tables.
type Resolver struct {
	weekly  map[time.Weekday]models.OpeningHours
	special map[string]models.SpecialOpeningDay
}

// NewResolver snapshots the given rules. Later entries win on duplicate keys.
func NewResolver(weekly []models.OpeningHours, special []models.SpecialOpeningDay) *Resolver {
	r := &Resolver{
		weekly:  make(map[time.Weekday]models.OpeningHours, len(weekly)),
		special: make(map[string]models.SpecialOpeningDay, len(special)),
	}
	for _, h := range weekly {
		r.weekly[h.Weekday] = h
	}
	for _, d := range special {
		r.special[d.Date.Format(models.DateLayout)] = d
	}
	return r
}

// Resolve returns the effective rule for date. The date must already be in the
// restaurant's location; only its calendar day is used.
func (r *Resolver) Resolve(date time.Time) (EffectiveRule, error) {
	date = models.DateOf(date, nil)

	if d, ok := r.special[date.Format(models.DateLayout)]; ok {
		return EffectiveRule{
			Date:             date,
			IsOpen:           d.IsOpen,
			Open:             d.Open,
			Close:            d.Close,
			LastReservation:  d.EffectiveLastReservation(),
			BookingsOpenFrom: d.BookingsOpenFrom,
			PublicMessage:    d.PublicMessage,
			Special:          true,
		}, nil
	}

	h, ok := r.weekly[date.Weekday()]
	if !ok {
		return Closed(date), fmt.Errorf("%s (%s): %w", date.Format(models.DateLayout), date.Weekday(), ErrNotConfigured)
	}

	return EffectiveRule{
		Date:            date,
		IsOpen:          h.IsOpen,
		Open:            h.Open,
		Close:           h.Close,
		LastReservation: h.EffectiveLastReservation(),
	}, nil
}

// ClosedWeekdays lists weekdays whose weekly rule is closed or missing.
func (r *Resolver) ClosedWeekdays() []time.Weekday {
	var closed []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if h, ok := r.weekly[d]; !ok || !h.IsOpen {
			closed = append(closed, d)
		}
	}
	return closed
}

// MissingWeekdays lists weekdays with no rule at all; these are configuration warnings.
func (r *Resolver) MissingWeekdays() []time.Weekday {
	var missing []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if _, ok := r.weekly[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}
