package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"tablebook/internal/cache"
	"tablebook/internal/capacity"
	"tablebook/internal/database"
	"tablebook/internal/engine"
	"tablebook/internal/events"
	"tablebook/internal/load"
	"tablebook/internal/metrics"
	"tablebook/internal/models"
	"tablebook/internal/overlap"
	"tablebook/internal/rules"
	"tablebook/internal/slots"
	"tablebook/internal/tables"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence the booking service needs.
type Store interface {
	LoadSnapshot(ctx context.Context, loc *time.Location) (engine.Snapshot, error)
	ListReservationsByDate(ctx context.Context, date time.Time) ([]models.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetReservationByReference(ctx context.Context, ref string) (*models.Reservation, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, id int64, status models.Status) error
	SetReservationTables(ctx context.Context, id int64, tableIDs []int64) error
}

var _ Store = (*database.DB)(nil)

// AvailabilityCache stores computed availability per date.
type AvailabilityCache interface {
	Get(ctx context.Context, date time.Time, partySize int, area models.Area) (cache.Entry, bool)
	Set(ctx context.Context, date time.Time, partySize int, area models.Area, e cache.Entry) error
	InvalidateDate(ctx context.Context, date time.Time) error
	InvalidateAll(ctx context.Context) error
}

// EventPublisher receives reservation lifecycle events.
type EventPublisher interface {
	Publish(event events.Event)
}

// Config tunes the booking service.
type Config struct {
	Location *time.Location
	// MaxAdvance limits how far ahead guests can book online.
	MaxAdvance time.Duration
	// Step is the slot granularity; zero uses slots.DefaultStep.
	Step time.Duration
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// BookingService serialises evaluate+commit per date and area and keeps the
// current configuration snapshot.
type BookingService struct {
	store  Store
	cache  AvailabilityCache
	events EventPublisher
	cfg    Config
	logger zerolog.Logger

	engine atomic.Pointer[engine.Engine]
	locks  *keyedLocker
}

func NewBookingService(store Store, availability AvailabilityCache, publisher EventPublisher, cfg Config, logger zerolog.Logger) *BookingService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BookingService{
		store:  store,
		cache:  availability,
		events: publisher,
		cfg:    cfg,
		logger: logger.With().Str("component", "booking").Logger(),
		locks:  newKeyedLocker(),
	}
}

// Reload rebuilds the engine from the store and drops cached availability.
func (s *BookingService) Reload(ctx context.Context) error {
	snap, err := s.store.LoadSnapshot(ctx, s.cfg.Location)
	if err != nil {
		metrics.IncConfigReload(false)
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := snap.Settings.Validate(); err != nil {
		metrics.IncConfigReload(false)
		return fmt.Errorf("invalid settings: %w", err)
	}

	eng := engine.New(snap, s.cfg.Step)
	if missing := eng.Resolver().MissingWeekdays(); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, d := range missing {
			names = append(names, d.String())
		}
		s.logger.Warn().
			Str("event", "config_warning").
			Strs("weekdays", names).
			Msg("No opening hours for some weekdays; they are treated as closed")
	}
	s.engine.Store(eng)

	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to invalidate availability cache")
		}
	}
	s.publish(events.Event{Type: events.ConfigReloaded})
	metrics.IncConfigReload(true)

	s.logger.Info().
		Int("tables", len(snap.Tables)).
		Int("special_days", len(snap.Special)).
		Bool("reservations_enabled", snap.Settings.ReservationsEnabled).
		Msg("Configuration loaded")
	return nil
}

// Engine returns the engine of the current snapshot.
func (s *BookingService) Engine() (*engine.Engine, error) {
	eng := s.engine.Load()
	if eng == nil {
		return nil, ErrNotLoaded
	}
	return eng, nil
}

// Ready reports whether a configuration has been loaded.
func (s *BookingService) Ready() bool {
	return s.engine.Load() != nil
}

// Rules returns the effective rule of date. A weekday without a rule is
// reported closed and logged.
func (s *BookingService) Rules(ctx context.Context, date time.Time) (rules.EffectiveRule, error) {
	eng, err := s.Engine()
	if err != nil {
		return rules.EffectiveRule{}, err
	}
	rule, err := eng.ResolveRules(date)
	if errors.Is(err, rules.ErrNotConfigured) {
		s.logger.Warn().
			Str("event", "config_warning").
			Str("date", rule.Date.Format(models.DateLayout)).
			Msg("Weekday has no opening hours")
		return rule, nil
	}
	return rule, err
}

// DayAvailability is the bookable-slot answer for one date and party.
type DayAvailability struct {
	Date    time.Time
	Reason  slots.ClosedReason
	Message string
	Slots   []slots.Slot
	Cached  bool
}

// Bookable returns the slots that passed the capacity check.
func (a DayAvailability) Bookable() []slots.Slot {
	return slots.GetAvailableSlots(a.Slots)
}

// Availability lists the slots of date and whether a party of partySize fits each.
func (s *BookingService) Availability(ctx context.Context, date time.Time, partySize int, area models.Area) (DayAvailability, error) {
	eng, err := s.Engine()
	if err != nil {
		return DayAvailability{}, err
	}
	now := s.cfg.Now()
	date = eng.Date(date)

	if err := s.validateParty(partySize, area); err != nil {
		return DayAvailability{}, err
	}
	if err := s.validateDate(eng, date, now); err != nil {
		return DayAvailability{}, err
	}

	cutoff := now.Add(eng.Settings().MinLeadTime)
	if s.cache != nil {
		if entry, ok := s.cache.Get(ctx, date, partySize, area); ok {
			metrics.IncCacheLookup(true)
			metrics.IncAvailabilityRequest(string(entry.Reason))
			entry = entry.From(cutoff)
			return DayAvailability{Date: date, Reason: entry.Reason, Message: entry.Message, Slots: entry.Slots, Cached: true}, nil
		}
		metrics.IncCacheLookup(false)
	}

	reservations, err := s.store.ListReservationsByDate(ctx, date)
	if err != nil {
		return DayAvailability{}, fmt.Errorf("list reservations: %w", err)
	}

	started := time.Now()
	a := eng.Availability(date, partySize, area, reservations, now)
	metrics.ObserveAvailability(started)
	metrics.IncAvailabilityRequest(string(a.Reason))

	if a.Reason == slots.ReasonNotConfigured {
		s.logger.Warn().
			Str("event", "config_warning").
			Str("date", date.Format(models.DateLayout)).
			Msg("Weekday has no opening hours")
	}

	// A not-yet-bookable answer changes by itself once bookings open.
	if s.cache != nil && a.Reason != slots.ReasonNotYetBookable {
		entry := cache.Entry{Reason: a.Reason, Message: a.Message, Slots: a.Slots}
		if err := s.cache.Set(ctx, date, partySize, area, entry); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to cache availability")
		}
	}

	return DayAvailability{Date: date, Reason: a.Reason, Message: a.Message, Slots: a.Slots}, nil
}

// CreateRequest describes a new reservation.
type CreateRequest struct {
	Name       string
	Email      string
	Phone      string
	Date       time.Time
	Start      models.TimeOfDay
	PartySize  int
	Preference models.Area
	Notes      string

	// Staff requests skip the online booking window and may set Status,
	// Source and TableIDs.
	Staff    bool
	Status   models.Status
	Source   models.Source
	TableIDs []int64
}

// Create evaluates and commits a reservation. A capacity rejection is
// returned as a non-accepted decision with a nil reservation and nil error.
func (s *BookingService) Create(ctx context.Context, req CreateRequest) (*models.Reservation, capacity.Decision, error) {
	eng, err := s.Engine()
	if err != nil {
		return nil, capacity.Decision{}, err
	}
	now := s.cfg.Now()
	date := eng.Date(req.Date)

	if err := s.validateCreate(eng, &req, date, now); err != nil {
		return nil, capacity.Decision{}, err
	}

	unlock := s.locks.Lock(areaKeys(date, req.Preference)...)
	defer unlock()

	reservations, err := s.store.ListReservationsByDate(ctx, date)
	if err != nil {
		return nil, capacity.Decision{}, fmt.Errorf("list reservations: %w", err)
	}

	decision := eng.EvaluateCapacity(capacity.Candidate{
		Date:      date,
		Start:     req.Start,
		PartySize: req.PartySize,
		Area:      req.Preference,
	}, reservations)

	if !decision.Accepted {
		metrics.IncReservationRejected(string(decision.Reason))
		s.logger.Info().
			Str("date", date.Format(models.DateLayout)).
			Str("start", req.Start.String()).
			Int("party_size", req.PartySize).
			Str("area", string(req.Preference)).
			Str("reason", string(decision.Reason)).
			Int("occupied", decision.Occupied).
			Msg("Reservation rejected")
		return nil, decision, nil
	}

	settings := eng.Settings()
	r := &models.Reservation{
		Reference:    uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Date:         date,
		Start:        req.Start,
		PartySize:    req.PartySize,
		Preference:   req.Preference,
		Area:         decision.Area,
		Status:       req.Status,
		Notes:        req.Notes,
		Source:       req.Source,
		DwellMinutes: int(settings.Dwell / time.Minute),
	}

	if len(req.TableIDs) > 0 {
		ids, err := s.checkTables(eng, r, req.TableIDs, reservations)
		if err != nil {
			return nil, decision, err
		}
		r.TableIDs = ids
	}

	if err := s.store.CreateReservation(ctx, r); err != nil {
		return nil, decision, fmt.Errorf("create reservation: %w", err)
	}

	s.invalidate(ctx, date)
	s.publish(events.NewReservationEvent(events.ReservationCreated, r, ""))
	metrics.IncReservationCreated(string(r.Source), string(r.Area))

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("reference", r.Reference).
		Str("date", date.Format(models.DateLayout)).
		Str("start", r.Start.String()).
		Int("party_size", r.PartySize).
		Str("area", string(r.Area)).
		Str("source", string(r.Source)).
		Msg("Reservation created")
	return r, decision, nil
}

func (s *BookingService) validateCreate(eng *engine.Engine, req *CreateRequest, date, now time.Time) error {
	if strings.TrimSpace(req.Name) == "" {
		return invalid("name", "is required")
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone) == "" {
		return invalid("contact", "email or phone is required")
	}
	if req.Preference == "" {
		req.Preference = models.AreaNone
	}
	if err := s.validateParty(req.PartySize, req.Preference); err != nil {
		return err
	}

	if !req.Staff {
		req.Status = models.StatusConfirmed
		req.Source = models.SourceOnline
		req.TableIDs = nil

		if err := s.validateDate(eng, date, now); err != nil {
			return err
		}
		w, _ := eng.Window(date, now)
		if !w.Open() {
			msg := w.Message
			if msg == "" {
				msg = closedText(w.Reason)
			}
			return invalid("date", "%s", msg)
		}
		if !w.Contains(req.Start.On(date)) {
			return invalid("start", "%s is not a bookable time", req.Start)
		}
		return nil
	}

	if req.Status == "" {
		req.Status = models.StatusConfirmed
	}
	if !req.Status.Active() {
		return invalid("status", "new reservations cannot be %s", req.Status)
	}
	if req.Source == "" {
		req.Source = models.SourcePhone
	}
	return nil
}

func (s *BookingService) validateParty(partySize int, area models.Area) error {
	if partySize < 1 {
		return invalid("party_size", "must be at least 1")
	}
	if area != models.AreaNone && !area.IsSeating() {
		return invalid("area", "unknown area %q", area)
	}
	return nil
}

func (s *BookingService) validateDate(eng *engine.Engine, date, now time.Time) error {
	today := eng.Date(now)
	if date.Before(today) {
		return invalid("date", "is in the past")
	}
	if s.cfg.MaxAdvance > 0 && date.After(today.Add(s.cfg.MaxAdvance)) {
		return invalid("date", "is more than %d days ahead", int(s.cfg.MaxAdvance.Hours()/24))
	}
	return nil
}

func closedText(reason slots.ClosedReason) string {
	switch reason {
	case slots.ReasonClosedGlobally:
		return "online reservations are currently closed"
	case slots.ReasonNotYetBookable:
		return "bookings for this date are not open yet"
	default:
		return "the restaurant is closed on this date"
	}
}

// Get returns a reservation by ID.
func (s *BookingService) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// GetByReference returns a reservation by its public reference.
func (s *BookingService) GetByReference(ctx context.Context, ref string) (*models.Reservation, error) {
	return s.store.GetReservationByReference(ctx, ref)
}

// ListByDate returns all reservations of date.
func (s *BookingService) ListByDate(ctx context.Context, date time.Time) ([]models.Reservation, error) {
	eng, err := s.Engine()
	if err != nil {
		return nil, err
	}
	return s.store.ListReservationsByDate(ctx, eng.Date(date))
}

// UpdateStatus moves a reservation to status. Cancelled and no-show are final.
func (s *BookingService) UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Reservation, error) {
	if _, err := models.ParseStatus(string(status)); err != nil {
		return nil, invalid("status", "%v", err)
	}

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(areaKeys(r.Date, r.Area)...)
	defer unlock()

	prev := r.Status
	if prev == status {
		return r, nil
	}
	if prev.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, prev)
	}

	if err := s.store.UpdateReservationStatus(ctx, id, status); err != nil {
		return nil, err
	}
	r.Status = status

	s.invalidate(ctx, r.Date)
	s.publish(events.NewReservationEvent(events.ReservationStatusChanged, r, prev))
	metrics.IncStatusChanged(string(status))

	s.logger.Info().
		Int64("reservation_id", id).
		Str("from", string(prev)).
		Str("to", string(status)).
		Msg("Reservation status changed")
	return r, nil
}

// AvailableTables lists the tables that could be assigned to reservation id.
func (s *BookingService) AvailableTables(ctx context.Context, id int64) ([]models.Table, error) {
	eng, err := s.Engine()
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	reservations, err := s.store.ListReservationsByDate(ctx, r.Date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return eng.AvailableTables(tableQuery(eng, r), reservations), nil
}

// AssignTables replaces the tables of reservation id. Every table must be
// active, in the reservation's area and free for its interval.
func (s *BookingService) AssignTables(ctx context.Context, id int64, tableIDs []int64) (*models.Reservation, error) {
	eng, err := s.Engine()
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalStatus, r.Status)
	}

	// Unassigned bookings may take tables in either area.
	unlock := s.locks.Lock(areaKeys(r.Date, models.AreaNone)...)
	defer unlock()

	reservations, err := s.store.ListReservationsByDate(ctx, r.Date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	ids, err := s.checkTables(eng, r, tableIDs, reservations)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetReservationTables(ctx, id, ids); err != nil {
		return nil, err
	}
	r.TableIDs = ids

	s.publish(events.NewReservationEvent(events.ReservationTablesChanged, r, ""))
	s.logger.Info().
		Int64("reservation_id", id).
		Ints64("tables", ids).
		Msg("Tables assigned")
	return r, nil
}

func (s *BookingService) checkTables(eng *engine.Engine, r *models.Reservation, requested []int64, reservations []models.Reservation) ([]int64, error) {
	ids := slices.Clone(requested)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	free := make(map[int64]bool)
	for _, t := range eng.AvailableTables(tableQuery(eng, r), reservations) {
		free[t.ID] = true
	}
	for _, tid := range ids {
		if !free[tid] {
			return nil, fmt.Errorf("%w: table %d", ErrTablesUnavailable, tid)
		}
	}
	return ids, nil
}

func tableQuery(eng *engine.Engine, r *models.Reservation) tables.Query {
	area := models.AreaNone
	if r.Area.IsSeating() {
		area = r.Area
	}
	return tables.Query{
		Interval:             overlap.Of(r, eng.Settings().Dwell),
		Area:                 area,
		ExcludeReservationID: r.ID,
	}
}

// DayLoad builds the dashboard report for date.
func (s *BookingService) DayLoad(ctx context.Context, date time.Time) (load.Report, error) {
	eng, err := s.Engine()
	if err != nil {
		return load.Report{}, err
	}
	date = eng.Date(date)
	reservations, err := s.store.ListReservationsByDate(ctx, date)
	if err != nil {
		return load.Report{}, fmt.Errorf("list reservations: %w", err)
	}
	return eng.AggregateLoad(date, reservations, s.cfg.Now()), nil
}

func (s *BookingService) invalidate(ctx context.Context, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDate(ctx, date); err != nil {
		s.logger.Warn().Err(err).Str("date", date.Format(models.DateLayout)).Msg("Failed to invalidate availability cache")
	}
}

func (s *BookingService) publish(e events.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
