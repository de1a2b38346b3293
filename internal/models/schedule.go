package models

import (
	"fmt"
	"strings"
	"time"
)

// OpeningHours is the weekly rule for one weekday.
type OpeningHours struct {
	Weekday time.Weekday
	IsOpen  bool
	Open    TimeOfDay
	Close   TimeOfDay
	// LastReservation is the latest bookable start. Zero falls back to Close.
	LastReservation TimeOfDay
}

// EffectiveLastReservation returns LastReservation, or Close when unset.
func (h OpeningHours) EffectiveLastReservation() TimeOfDay {
	if h.LastReservation == 0 {
		return h.Close
	}
	return h.LastReservation
}

// Validate checks the open/close/last-reservation ordering of an open day.
func (h OpeningHours) Validate() error {
	if h.Weekday < time.Sunday || h.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", h.Weekday)
	}
	if !h.IsOpen {
		return nil
	}
	return validateWindow(h.Open, h.Close, h.EffectiveLastReservation())
}

// SpecialOpeningDay overrides the weekly rule for one calendar date.
type SpecialOpeningDay struct {
	Date            time.Time
	IsOpen          bool
	Open            TimeOfDay
	Close           TimeOfDay
	LastReservation TimeOfDay
	// BookingsOpenFrom is the earliest moment the day becomes bookable online.
	BookingsOpenFrom time.Time
	PublicMessage    string
}

// EffectiveLastReservation returns LastReservation, or Close when unset.
func (d SpecialOpeningDay) EffectiveLastReservation() TimeOfDay {
	if d.LastReservation == 0 {
		return d.Close
	}
	return d.LastReservation
}

// Validate checks the window of an open special day.
func (d SpecialOpeningDay) Validate() error {
	if d.Date.IsZero() {
		return fmt.Errorf("special day: date is required")
	}
	if !d.IsOpen {
		return nil
	}
	return validateWindow(d.Open, d.Close, d.EffectiveLastReservation())
}

func validateWindow(open, closeAt, last TimeOfDay) error {
	if closeAt <= open {
		return fmt.Errorf("close (%s) must be after open (%s)", closeAt, open)
	}
	if last > closeAt {
		return fmt.Errorf("last reservation (%s) must not be after close (%s)", last, closeAt)
	}
	if last < open {
		return fmt.Errorf("last reservation (%s) must not be before open (%s)", last, open)
	}
	return nil
}

// ParseWeekday accepts English weekday names ("monday", "Mon") or 0-6 with Sunday=0.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return time.Weekday(s[0] - '0'), nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
