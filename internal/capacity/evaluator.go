// Package capacity decides whether a candidate reservation fits an area.
package capacity

import (
	"time"

	"tablebook/internal/models"
	"tablebook/internal/overlap"
)

// Reason is a rejection code. The empty reason means accepted.
type Reason string

const (
	Accepted                    Reason = ""
	PartySizeExceeded           Reason = "party_size_exceeded"
	CapacityExceeded            Reason = "capacity_exceeded"
	LargeGroupLimitExceeded     Reason = "large_group_limit_exceeded"
	VeryLargeGroupLimitExceeded Reason = "very_large_group_limit_exceeded"
)

// Message is the customer-facing text for a rejection.
func (r Reason) Message() string {
	switch r {
	case Accepted:
		return ""
	case PartySizeExceeded:
		return "This party is larger than we can seat online. Please call us."
	case CapacityExceeded:
		return "We are fully booked at this time. Please try another time."
	case LargeGroupLimitExceeded:
		return "We already host several large groups at this time. Please try another time or call us."
	case VeryLargeGroupLimitExceeded:
		return "For groups of this size please call us so we can prepare."
	default:
		return "This time is not available."
	}
}

// Candidate is a reservation being considered.
type Candidate struct {
	Date      time.Time
	Start     models.TimeOfDay
	PartySize int
	// Area AreaNone evaluates both seating areas.
	Area models.Area
}

// Interval returns the candidate's dwell interval.
func (c Candidate) Interval(dwell time.Duration) overlap.Interval {
	return overlap.New(c.Start.On(c.Date), dwell)
}

// Decision is the outcome for one area, or the chosen area when the
// candidate had no preference.
type Decision struct {
	Accepted bool        `json:"accepted"`
	Reason   Reason      `json:"reason,omitempty"`
	Area     models.Area `json:"area"`
	Tier     models.Tier `json:"tier"`
	// Occupied is the sum of overlapping party sizes.
	Occupied int `json:"occupied"`
	// Headroom is capacity minus occupied minus the candidate; negative when over.
	Headroom int `json:"headroom"`
	// Alternatives holds the per-area decisions of a no-preference evaluation.
	Alternatives []Decision `json:"alternatives,omitempty"`
}

// Alternative returns the per-area decision for area, if evaluated.
func (d Decision) Alternative(area models.Area) (Decision, bool) {
	for _, alt := range d.Alternatives {
		if alt.Area == area {
			return alt, true
		}
	}
	return Decision{}, false
}

// Indexes maps each seating area to its overlap index for one date.
type Indexes map[models.Area]*overlap.Index

// BuildIndexes indexes the reservations of date for both seating areas.
func BuildIndexes(date time.Time, reservations []models.Reservation, s models.Settings) Indexes {
	opts := overlap.Options{Dwell: s.Dwell, Unassigned: s.UnassignedArea}
	idx := make(Indexes, len(models.SeatingAreas))
	for _, area := range models.SeatingAreas {
		idx[area] = overlap.NewIndex(date, area, reservations, opts)
	}
	return idx
}

// Evaluate checks the candidate against settings and the existing reservations.
// It has no side effects.
func Evaluate(c Candidate, s models.Settings, idx Indexes) Decision {
	if c.Area.IsSeating() {
		return evaluateArea(c, c.Area, s, idx[c.Area])
	}

	alts := make([]Decision, 0, len(models.SeatingAreas))
	for _, area := range models.SeatingAreas {
		alts = append(alts, evaluateArea(c, area, s, idx[area]))
	}

	chosen := -1
	for i, d := range alts {
		if !d.Accepted {
			continue
		}
		// SeatingAreas starts with indoor, so ties stay indoor.
		if chosen < 0 || d.Headroom > alts[chosen].Headroom {
			chosen = i
		}
	}
	if chosen < 0 {
		chosen = 0
	}

	d := alts[chosen]
	d.Alternatives = alts
	return d
}

func evaluateArea(c Candidate, area models.Area, s models.Settings, idx *overlap.Index) Decision {
	limits := s.Area(area)
	tier := s.Groups.Tier(c.PartySize)

	occupied, large, veryLarge := 0, 0, 0
	for _, e := range idx.Overlapping(c.Interval(s.Dwell)) {
		occupied += e.Reservation.PartySize
		switch s.Groups.Tier(e.Reservation.PartySize) {
		case models.TierLarge:
			large++
		case models.TierVeryLarge:
			veryLarge++
		}
	}

	d := Decision{
		Area:     area,
		Tier:     tier,
		Occupied: occupied,
		Headroom: limits.Capacity - occupied - c.PartySize,
	}

	switch {
	case c.PartySize > limits.MaxPartySize:
		d.Reason = PartySizeExceeded
	case occupied+c.PartySize > limits.Capacity:
		d.Reason = CapacityExceeded
	case tier == models.TierLarge && large+1 > limits.MaxLargeGroups:
		d.Reason = LargeGroupLimitExceeded
	case tier == models.TierVeryLarge && veryLarge+1 > limits.MaxVeryLargeGroups:
		d.Reason = VeryLargeGroupLimitExceeded
	default:
		d.Accepted = true
	}
	return d
}
