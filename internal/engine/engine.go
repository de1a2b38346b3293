// Package engine ties the availability packages together over one
// configuration snapshot. All methods are pure given their inputs.
package engine

import (
	"errors"
	"time"

	"tablebook/internal/capacity"
	"tablebook/internal/load"
	"tablebook/internal/models"
	"tablebook/internal/rules"
	"tablebook/internal/slots"
	"tablebook/internal/tables"
)

// LoadConfig holds the dashboard classification fractions.
type LoadConfig struct {
	CalmBelow float64
	BusyBelow float64
}

// Snapshot is the immutable configuration an Engine evaluates against.
type Snapshot struct {
	Settings models.Settings
	Weekly   []models.OpeningHours
	Special  []models.SpecialOpeningDay
	Tables   []models.Table
	Location *time.Location
	Load     LoadConfig
}

// Engine answers availability questions for one snapshot.
type Engine struct {
	snap     Snapshot
	resolver *rules.Resolver
	gen      *slots.Generator
}

// New builds an engine. A non-positive step uses slots.DefaultStep.
func New(snap Snapshot, step time.Duration) *Engine {
	if snap.Location == nil {
		snap.Location = time.Local
	}
	if snap.Load.CalmBelow <= 0 {
		snap.Load.CalmBelow = load.DefaultCalmBelow
	}
	if snap.Load.BusyBelow <= 0 {
		snap.Load.BusyBelow = load.DefaultBusyBelow
	}
	return &Engine{
		snap:     snap,
		resolver: rules.NewResolver(snap.Weekly, snap.Special),
		gen:      slots.NewGenerator(step),
	}
}

// Snapshot returns the configuration in use.
func (e *Engine) Snapshot() Snapshot { return e.snap }

// Settings returns the settings snapshot.
func (e *Engine) Settings() models.Settings { return e.snap.Settings }

// Location returns the restaurant time zone.
func (e *Engine) Location() *time.Location { return e.snap.Location }

// Resolver exposes the rule resolver, e.g. for configuration warnings.
func (e *Engine) Resolver() *rules.Resolver { return e.resolver }

// Date normalises ts to the restaurant's calendar date.
func (e *Engine) Date(ts time.Time) time.Time {
	return models.DateOf(ts, e.snap.Location)
}

// ResolveRules returns the effective rule of date. A missing weekday rule
// yields a closed rule together with rules.ErrNotConfigured.
func (e *Engine) ResolveRules(date time.Time) (rules.EffectiveRule, error) {
	return e.resolver.Resolve(e.Date(date))
}

// GenerateSlots returns the bookable window of rule as seen at now.
func (e *Engine) GenerateSlots(rule rules.EffectiveRule, now time.Time) slots.Window {
	return e.gen.Window(rule, slots.PolicyFrom(e.snap.Settings), now.In(e.snap.Location))
}

// Window resolves date and generates its slots in one step.
func (e *Engine) Window(date, now time.Time) (slots.Window, rules.EffectiveRule) {
	rule, err := e.ResolveRules(date)
	if errors.Is(err, rules.ErrNotConfigured) && e.snap.Settings.ReservationsEnabled {
		return slots.Closed(slots.ReasonNotConfigured, ""), rule
	}
	return e.GenerateSlots(rule, now), rule
}

// EvaluateCapacity decides a candidate against the active reservations of its date.
func (e *Engine) EvaluateCapacity(c capacity.Candidate, reservations []models.Reservation) capacity.Decision {
	c.Date = e.Date(c.Date)
	idx := capacity.BuildIndexes(c.Date, reservations, e.snap.Settings)
	return capacity.Evaluate(c, e.snap.Settings, idx)
}

// AvailableTables returns the free tables for q.
func (e *Engine) AvailableTables(q tables.Query, reservations []models.Reservation) []models.Table {
	return tables.Available(q, e.snap.Tables, reservations, e.snap.Settings.Dwell)
}

// Thresholds returns the load thresholds for the configured capacity.
func (e *Engine) Thresholds() load.Thresholds {
	return load.ThresholdsFor(e.snap.Settings.TotalCapacity(), e.snap.Load.CalmBelow, e.snap.Load.BusyBelow)
}

// AggregateLoad builds the dashboard report for date.
func (e *Engine) AggregateLoad(date time.Time, reservations []models.Reservation, now time.Time) load.Report {
	rule, _ := e.ResolveRules(date)
	return load.Aggregate(load.Input{
		Rule:         rule,
		Reservations: reservations,
		Dwell:        e.snap.Settings.Dwell,
		Thresholds:   e.Thresholds(),
		Now:          now.In(e.snap.Location),
	})
}

// Availability is the customer-facing answer for one date and party.
type Availability struct {
	Date    time.Time           `json:"date"`
	Rule    rules.EffectiveRule `json:"-"`
	Reason  slots.ClosedReason  `json:"reason,omitempty"`
	Message string              `json:"message,omitempty"`
	Slots   []slots.Slot        `json:"-"`
}

// Bookable returns the slots that passed the capacity check.
func (a Availability) Bookable() []slots.Slot {
	return slots.GetAvailableSlots(a.Slots)
}

// Availability runs the capacity check for every slot of date.
func (e *Engine) Availability(date time.Time, partySize int, area models.Area, reservations []models.Reservation, now time.Time) Availability {
	date = e.Date(date)
	w, rule := e.Window(date, now)
	out := Availability{Date: date, Rule: rule, Reason: w.Reason, Message: w.Message}
	if !w.Open() {
		return out
	}

	idx := capacity.BuildIndexes(date, reservations, e.snap.Settings)
	for start := range w.Slots() {
		d := capacity.Evaluate(capacity.Candidate{
			Date:      date,
			Start:     models.TimeOfDayOf(start),
			PartySize: partySize,
			Area:      area,
		}, e.snap.Settings, idx)

		out.Slots = append(out.Slots, slots.Slot{
			StartTime: start,
			Available: d.Accepted,
			Area:      d.Area,
			Reason:    string(d.Reason),
		})
	}
	return out
}
