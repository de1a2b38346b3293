// Package load builds the service-load timeline shown on the staff dashboard.
package load

import (
	"math"
	"time"

	"tablebook/internal/models"
	"tablebook/internal/overlap"
	"tablebook/internal/rules"
)

// BlockSize is the timeline granularity.
const BlockSize = 15 * time.Minute

// Level classifies an hour.
type Level string

const (
	LevelCalm     Level = "calm"
	LevelBusy     Level = "busy"
	LevelVeryBusy Level = "very_busy"
)

// Default fractions of total capacity.
const (
	DefaultCalmBelow = 0.50
	DefaultBusyBelow = 0.85
)

// Thresholds are guest counts: calm up to Low, busy up to High, very busy above.
type Thresholds struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// ThresholdsFor derives thresholds from total capacity: calm while the load is
// below calmBelow of capacity, busy while below busyBelow.
func ThresholdsFor(capacity int, calmBelow, busyBelow float64) Thresholds {
	if capacity <= 0 {
		return Thresholds{}
	}
	low := int(math.Ceil(float64(capacity)*calmBelow)) - 1
	high := int(math.Ceil(float64(capacity)*busyBelow)) - 1
	if low < 0 {
		low = 0
	}
	if high < low {
		high = low
	}
	return Thresholds{Low: low, High: high}
}

// Classify returns the level of a guest count.
func (t Thresholds) Classify(total int) Level {
	switch {
	case total <= t.Low:
		return LevelCalm
	case total <= t.High:
		return LevelBusy
	default:
		return LevelVeryBusy
	}
}

// Counts are guests per bucket.
type Counts struct {
	Indoor     int `json:"indoor"`
	Outdoor    int `json:"outdoor"`
	Unassigned int `json:"unassigned"`
	Total      int `json:"total"`
}

func (c *Counts) add(area models.Area, guests int) {
	switch area {
	case models.AreaIndoor:
		c.Indoor += guests
	case models.AreaOutdoor:
		c.Outdoor += guests
	default:
		c.Unassigned += guests
	}
	c.Total += guests
}

func (c *Counts) peak(o Counts) {
	c.Indoor = max(c.Indoor, o.Indoor)
	c.Outdoor = max(c.Outdoor, o.Outdoor)
	c.Unassigned = max(c.Unassigned, o.Unassigned)
	c.Total = max(c.Total, o.Total)
}

// Block is one timeline slot.
type Block struct {
	Start time.Time `json:"start"`
	Counts
}

// HourLoad is the peak of the blocks within one clock hour.
type HourLoad struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Peak  Counts    `json:"peak"`
	Level Level     `json:"level"`
	Past  bool      `json:"past"`
}

// Report is the dashboard view of one date.
type Report struct {
	Date       time.Time  `json:"date"`
	Open       bool       `json:"open"`
	Blocks     []Block    `json:"blocks"`
	Hours      []HourLoad `json:"hours"`
	Thresholds Thresholds `json:"thresholds"`
	Guests     int        `json:"guests"`
	Bookings   int        `json:"bookings"`
}

// Input is everything Aggregate needs.
type Input struct {
	Rule         rules.EffectiveRule
	Reservations []models.Reservation
	Dwell        time.Duration
	Thresholds   Thresholds
	Now          time.Time
}

// Aggregate spreads each active reservation over the blocks its dwell interval
// touches and rolls the blocks up per hour.
func Aggregate(in Input) Report {
	rep := Report{Date: in.Rule.Date, Open: in.Rule.IsOpen, Thresholds: in.Thresholds}
	if !in.Rule.IsOpen {
		return rep
	}

	open, closeAt := in.Rule.OpenAt(), in.Rule.CloseAt()
	n := int((closeAt.Sub(open) + BlockSize - 1) / BlockSize)
	if n <= 0 {
		return rep
	}

	rep.Blocks = make([]Block, n)
	for i := range rep.Blocks {
		rep.Blocks[i].Start = open.Add(time.Duration(i) * BlockSize)
	}

	for i := range in.Reservations {
		r := &in.Reservations[i]
		if !r.Status.Active() || !models.SameDate(r.Date, in.Rule.Date) {
			continue
		}
		rep.Bookings++
		rep.Guests += r.PartySize

		iv := overlap.Of(r, in.Dwell)
		first := int(floorDiv(iv.Start.Sub(open), BlockSize))
		last := int(ceilDiv(iv.End.Sub(open), BlockSize))
		for b := max(first, 0); b < min(last, n); b++ {
			if overlap.New(rep.Blocks[b].Start, BlockSize).Overlaps(iv) {
				rep.Blocks[b].add(r.Area, r.PartySize)
			}
		}
	}

	rep.Hours = rollup(rep.Blocks, closeAt, in.Thresholds, in.Now)
	return rep
}

func rollup(blocks []Block, closeAt time.Time, th Thresholds, now time.Time) []HourLoad {
	var hours []HourLoad
	for _, b := range blocks {
		start := hourOf(b.Start)
		if len(hours) == 0 || !hours[len(hours)-1].Start.Equal(start) {
			end := start.Add(time.Hour)
			if end.After(closeAt) {
				end = closeAt
			}
			hours = append(hours, HourLoad{Start: start, End: end})
		}
		hours[len(hours)-1].Peak.peak(b.Counts)
	}

	for i := range hours {
		hours[i].Level = th.Classify(hours[i].Peak.Total)
		hours[i].Past = !now.IsZero() && !hours[i].End.After(now)
	}
	return hours
}

// hourOf truncates to the wall-clock hour in t's location.
func hourOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func floorDiv(d, unit time.Duration) time.Duration {
	q := d / unit
	if d%unit != 0 && d < 0 {
		q--
	}
	return q
}

func ceilDiv(d, unit time.Duration) time.Duration {
	q := d / unit
	if d%unit != 0 && d > 0 {
		q++
	}
	return q
}

// Peak returns the busiest hour, if any.
func (r Report) Peak() (HourLoad, bool) {
	if len(r.Hours) == 0 {
		return HourLoad{}, false
	}
	best := r.Hours[0]
	for _, h := range r.Hours[1:] {
		if h.Peak.Total > best.Peak.Total {
			best = h
		}
	}
	return best, true
}
