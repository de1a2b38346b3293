package slots

import (
	"iter"
	"slices"
	"time"

	"tablebook/internal/models"
	"tablebook/internal/rules"
)

// DefaultStep is the generation granularity.
const DefaultStep = 15 * time.Minute

// ClosedReason explains why a window yields no slots.
type ClosedReason string

const (
	ReasonOpen           ClosedReason = ""
	ReasonClosedGlobally ClosedReason = "closed_globally"
	ReasonClosedDay      ClosedReason = "closed_day"
	ReasonNotYetBookable ClosedReason = "not_yet_bookable"
	ReasonNotConfigured  ClosedReason = "not_configured"
)

// Policy carries the settings the generator needs.
type Policy struct {
	ReservationsEnabled bool
	ClosedMessage       string
	MinLead             time.Duration
}

// PolicyFrom extracts the generator policy from a settings snapshot.
func PolicyFrom(s models.Settings) Policy {
	return Policy{
		ReservationsEnabled: s.ReservationsEnabled,
		ClosedMessage:       s.ClosedMessage,
		MinLead:             s.MinLeadTime,
	}
}

// Slot is a candidate start after the capacity pass.
type Slot struct {
	StartTime time.Time
	Available bool
	Area      models.Area
	Reason    string
}

// SlotInfo is a simplified representation for the API.
type SlotInfo struct {
	Start     string      `json:"start"` // "18:15"
	Available bool        `json:"available"`
	Area      models.Area `json:"area,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// Window is the bookable range of one date. It is immutable; Slots can be
// iterated any number of times.
type Window struct {
	Reason  ClosedReason
	Message string
	first   time.Time
	last    time.Time
	step    time.Duration
}

// Closed builds an empty window with a reason.
func Closed(reason ClosedReason, message string) Window {
	return Window{Reason: reason, Message: message}
}

// Open reports whether the day accepts bookings at all.
func (w Window) Open() bool {
	return w.Reason == ReasonOpen
}

// Slots yields candidate start times in ascending order.
func (w Window) Slots() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !w.Open() || w.step <= 0 || w.first.IsZero() {
			return
		}
		for cursor := w.first; !cursor.After(w.last); cursor = cursor.Add(w.step) {
			if !yield(cursor) {
				return
			}
		}
	}
}

// List collects Slots.
func (w Window) List() []time.Time {
	return slices.Collect(w.Slots())
}

// Contains reports whether t is one of the window's slots.
func (w Window) Contains(t time.Time) bool {
	if !w.Open() || w.step <= 0 || w.first.IsZero() {
		return false
	}
	if t.Before(w.first) || t.After(w.last) {
		return false
	}
	return t.Sub(w.first)%w.step == 0
}

// Generator produces slot windows.
type Generator struct {
	step time.Duration
}

// NewGenerator creates a generator; a non-positive step uses DefaultStep.
func NewGenerator(step time.Duration) *Generator {
	if step <= 0 {
		step = DefaultStep
	}
	return &Generator{step: step}
}

// Step returns the granularity.
func (g *Generator) Step() time.Duration {
	return g.step
}

// Window computes the bookable window for the rule's date as seen at now.
// The global toggle wins over everything else.
func (g *Generator) Window(rule rules.EffectiveRule, policy Policy, now time.Time) Window {
	if !policy.ReservationsEnabled {
		return Closed(ReasonClosedGlobally, policy.ClosedMessage)
	}
	if !rule.IsOpen {
		return Closed(ReasonClosedDay, rule.PublicMessage)
	}
	if !rule.BookingsOpenFrom.IsZero() && now.Before(rule.BookingsOpenFrom) {
		return Closed(ReasonNotYetBookable, rule.PublicMessage)
	}

	open := rule.OpenAt()
	start := open
	if rule.BookingsOpenFrom.After(start) {
		start = alignUp(open, rule.BookingsOpenFrom, g.step)
	}
	if earliest := now.Add(policy.MinLead); earliest.After(start) {
		start = alignUp(open, earliest, g.step)
	}

	return Window{
		Message: rule.PublicMessage,
		first:   start,
		last:    rule.LastReservationAt(),
		step:    g.step,
	}
}

// alignUp rounds t up to the next anchor+n*step boundary.
func alignUp(anchor, t time.Time, step time.Duration) time.Time {
	if !t.After(anchor) {
		return anchor
	}
	n := t.Sub(anchor) / step
	aligned := anchor.Add(n * step)
	if aligned.Before(t) {
		aligned = aligned.Add(step)
	}
	return aligned
}

// ToSlotInfo converts slots to SlotInfo for the API.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.StartTime.Format("15:04"),
			Available: s.Available,
			Area:      s.Area,
			Reason:    s.Reason,
		}
	}
	return result
}

// GetAvailableSlots returns only available slots.
func GetAvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}
