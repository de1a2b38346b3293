package config

import (
	"fmt"
	"os"
	"time"

	"tablebook/internal/engine"
	"tablebook/internal/models"

	"gopkg.in/yaml.v3"
)

// AreaConfig holds the limits of one seating area.
type AreaConfig struct {
	Capacity           int `yaml:"capacity"`
	MaxPartySize       int `yaml:"max_party_size"`
	MaxLargeGroups     int `yaml:"max_large_groups"`
	MaxVeryLargeGroups int `yaml:"max_very_large_groups"`
}

// SettingsConfig mirrors models.Settings in YAML form.
type SettingsConfig struct {
	Indoor              AreaConfig             `yaml:"indoor"`
	Outdoor             AreaConfig             `yaml:"outdoor"`
	Groups              models.GroupThresholds `yaml:"groups"`
	DwellMinutes        int                    `yaml:"dwell_minutes"`
	ReservationsEnabled *bool                  `yaml:"reservations_enabled"`
	ClosedMessage       string                 `yaml:"closed_message"`
	MinLeadMinutes      *int                   `yaml:"min_lead_minutes"`
	UnassignedArea      string                 `yaml:"unassigned_area"`
}

// HoursConfig is one weekday rule.
type HoursConfig struct {
	Weekday         string `yaml:"weekday"` // "monday" or 0-6, Sunday=0
	IsOpen          bool   `yaml:"is_open"`
	Open            string `yaml:"open"`             // "17:00"
	Close           string `yaml:"close"`            // "22:00"
	LastReservation string `yaml:"last_reservation"` // defaults to close
}

// SpecialDayConfig overrides one date.
type SpecialDayConfig struct {
	Date             string `yaml:"date"` // "2025-12-25"
	IsOpen           bool   `yaml:"is_open"`
	Open             string `yaml:"open,omitempty"`
	Close            string `yaml:"close,omitempty"`
	LastReservation  string `yaml:"last_reservation,omitempty"`
	BookingsOpenFrom string `yaml:"bookings_open_from,omitempty"` // "2025-11-01 09:00" or RFC3339
	PublicMessage    string `yaml:"public_message,omitempty"`
}

// TableConfig is one physical table.
type TableConfig struct {
	ID       int64  `yaml:"id"`
	Number   string `yaml:"number"`
	Area     string `yaml:"area"`
	Seats    int    `yaml:"seats"`
	IsActive *bool  `yaml:"is_active,omitempty"`
}

// LoadClassConfig holds the dashboard classification fractions.
type LoadClassConfig struct {
	CalmBelow float64 `yaml:"calm_below"`
	BusyBelow float64 `yaml:"busy_below"`
}

// RestaurantConfig is the root configuration for restaurant.yaml.
type RestaurantConfig struct {
	Settings    SettingsConfig     `yaml:"settings"`
	Hours       []HoursConfig      `yaml:"opening_hours"`
	SpecialDays []SpecialDayConfig `yaml:"special_days"`
	Tables      []TableConfig      `yaml:"tables"`
	Load        LoadClassConfig    `yaml:"load"`
}

// LoadRestaurantConfig loads and validates restaurant configuration from YAML file.
func LoadRestaurantConfig(path string) (*RestaurantConfig, error) {
	if path == "" {
		path = "configs/restaurant.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restaurant config: %w", err)
	}

	return ParseRestaurantConfig(data)
}

// ParseRestaurantConfig parses and validates restaurant.yaml content.
func ParseRestaurantConfig(data []byte) (*RestaurantConfig, error) {
	var cfg RestaurantConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse restaurant config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate restaurant config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *RestaurantConfig) Validate() error {
	if _, err := c.ToSettings(); err != nil {
		return err
	}
	if _, err := c.OpeningHours(); err != nil {
		return err
	}
	if _, err := c.SpecialOpeningDays(time.UTC); err != nil {
		return err
	}
	if _, err := c.TableModels(); err != nil {
		return err
	}
	if c.Load.CalmBelow < 0 || c.Load.BusyBelow < 0 || c.Load.CalmBelow > 1 || c.Load.BusyBelow > 1 {
		return fmt.Errorf("load: fractions must be between 0 and 1")
	}
	if c.Load.CalmBelow > 0 && c.Load.BusyBelow > 0 && c.Load.BusyBelow < c.Load.CalmBelow {
		return fmt.Errorf("load: busy_below must not be below calm_below")
	}
	return nil
}

// ToSettings converts the settings section, filling defaults for omitted values.
func (c *RestaurantConfig) ToSettings() (models.Settings, error) {
	s := models.DefaultSettings()
	sc := c.Settings

	if sc.Indoor != (AreaConfig{}) {
		s.Indoor = models.AreaSettings(sc.Indoor)
	}
	if sc.Outdoor != (AreaConfig{}) {
		s.Outdoor = models.AreaSettings(sc.Outdoor)
	}
	if sc.Groups != (models.GroupThresholds{}) {
		s.Groups = sc.Groups
	}
	if sc.DwellMinutes != 0 {
		s.Dwell = time.Duration(sc.DwellMinutes) * time.Minute
	}
	if sc.ReservationsEnabled != nil {
		s.ReservationsEnabled = *sc.ReservationsEnabled
	}
	s.ClosedMessage = sc.ClosedMessage
	if sc.MinLeadMinutes != nil {
		s.MinLeadTime = time.Duration(*sc.MinLeadMinutes) * time.Minute
	}
	if sc.UnassignedArea != "" {
		area, err := models.ParseArea(sc.UnassignedArea)
		if err != nil {
			return s, fmt.Errorf("settings.unassigned_area: %w", err)
		}
		s.UnassignedArea = area
	}

	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings: %w", err)
	}
	return s, nil
}

// OpeningHours converts the weekly rules. Duplicate weekdays are rejected.
func (c *RestaurantConfig) OpeningHours() ([]models.OpeningHours, error) {
	seen := make(map[time.Weekday]bool)
	hours := make([]models.OpeningHours, 0, len(c.Hours))

	for i, h := range c.Hours {
		prefix := fmt.Sprintf("opening_hours[%d]", i)

		day, err := models.ParseWeekday(h.Weekday)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		if seen[day] {
			return nil, fmt.Errorf("%s: duplicate weekday %s", prefix, day)
		}
		seen[day] = true

		oh := models.OpeningHours{Weekday: day, IsOpen: h.IsOpen}
		if h.IsOpen {
			if oh.Open, oh.Close, oh.LastReservation, err = parseWindow(h.Open, h.Close, h.LastReservation, prefix); err != nil {
				return nil, err
			}
		}
		if err := oh.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		hours = append(hours, oh)
	}

	return hours, nil
}

// SpecialOpeningDays converts the special days; dates are placed in loc.
func (c *RestaurantConfig) SpecialOpeningDays(loc *time.Location) ([]models.SpecialOpeningDay, error) {
	seen := make(map[string]bool)
	days := make([]models.SpecialOpeningDay, 0, len(c.SpecialDays))

	for i, d := range c.SpecialDays {
		prefix := fmt.Sprintf("special_days[%d]", i)

		date, err := models.ParseDate(d.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		if seen[d.Date] {
			return nil, fmt.Errorf("%s: duplicate date %s", prefix, d.Date)
		}
		seen[d.Date] = true

		sd := models.SpecialOpeningDay{Date: date, IsOpen: d.IsOpen, PublicMessage: d.PublicMessage}
		if d.IsOpen {
			if sd.Open, sd.Close, sd.LastReservation, err = parseWindow(d.Open, d.Close, d.LastReservation, prefix); err != nil {
				return nil, err
			}
		}
		if d.BookingsOpenFrom != "" {
			if sd.BookingsOpenFrom, err = ParseTimestamp(d.BookingsOpenFrom, loc); err != nil {
				return nil, fmt.Errorf("%s.bookings_open_from: %w", prefix, err)
			}
		}
		if err := sd.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", prefix, err)
		}
		days = append(days, sd)
	}

	return days, nil
}

// TableModels converts the tables. IDs and numbers must be unique.
func (c *RestaurantConfig) TableModels() ([]models.Table, error) {
	ids := make(map[int64]bool)
	numbers := make(map[string]bool)
	out := make([]models.Table, 0, len(c.Tables))

	for i, t := range c.Tables {
		if t.ID <= 0 {
			return nil, fmt.Errorf("tables[%d]: id must be positive, got %d", i, t.ID)
		}
		if ids[t.ID] {
			return nil, fmt.Errorf("tables[%d]: duplicate id %d", i, t.ID)
		}
		ids[t.ID] = true

		if t.Number == "" {
			return nil, fmt.Errorf("tables[%d]: number is required", i)
		}
		if numbers[t.Number] {
			return nil, fmt.Errorf("tables[%d]: duplicate number '%s'", i, t.Number)
		}
		numbers[t.Number] = true

		area, err := models.ParseArea(t.Area)
		if err != nil || !area.IsSeating() {
			return nil, fmt.Errorf("tables[%d]: area must be indoor or outdoor, got '%s'", i, t.Area)
		}
		if t.Seats <= 0 {
			return nil, fmt.Errorf("tables[%d]: seats must be positive", i)
		}

		active := true
		if t.IsActive != nil {
			active = *t.IsActive
		}
		out = append(out, models.Table{ID: t.ID, Number: t.Number, Area: area, Seats: t.Seats, IsActive: active})
	}

	return out, nil
}

// Snapshot converts the whole file into an engine snapshot.
func (c *RestaurantConfig) Snapshot(loc *time.Location) (engine.Snapshot, error) {
	settings, err := c.ToSettings()
	if err != nil {
		return engine.Snapshot{}, err
	}
	hours, err := c.OpeningHours()
	if err != nil {
		return engine.Snapshot{}, err
	}
	special, err := c.SpecialOpeningDays(loc)
	if err != nil {
		return engine.Snapshot{}, err
	}
	tables, err := c.TableModels()
	if err != nil {
		return engine.Snapshot{}, err
	}

	return engine.Snapshot{
		Settings: settings,
		Weekly:   hours,
		Special:  special,
		Tables:   tables,
		Location: loc,
		Load:     engine.LoadConfig{CalmBelow: c.Load.CalmBelow, BusyBelow: c.Load.BusyBelow},
	}, nil
}

// MissingWeekdays lists weekdays without a rule; they resolve as closed.
func (c *RestaurantConfig) MissingWeekdays() []time.Weekday {
	hours, _ := c.OpeningHours()
	have := make(map[time.Weekday]bool, len(hours))
	for _, h := range hours {
		have[h.Weekday] = true
	}
	var missing []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !have[d] {
			missing = append(missing, d)
		}
	}
	return missing
}

// String returns a summary of the configuration.
func (c *RestaurantConfig) String() string {
	active := 0
	for _, t := range c.Tables {
		if t.IsActive == nil || *t.IsActive {
			active++
		}
	}
	return fmt.Sprintf("RestaurantConfig: %d weekday rules, %d special days, %d tables (%d active)",
		len(c.Hours), len(c.SpecialDays), len(c.Tables), active)
}

func parseWindow(open, closeAt, last, prefix string) (o, c, l models.TimeOfDay, err error) {
	if o, err = models.ParseTimeOfDay(open); err != nil {
		return 0, 0, 0, fmt.Errorf("%s.open: %w", prefix, err)
	}
	if c, err = models.ParseTimeOfDay(closeAt); err != nil {
		return 0, 0, 0, fmt.Errorf("%s.close: %w", prefix, err)
	}
	if last != "" {
		if l, err = models.ParseTimeOfDay(last); err != nil {
			return 0, 0, 0, fmt.Errorf("%s.last_reservation: %w", prefix, err)
		}
	}
	return o, c, l, nil
}

// ParseTimestamp accepts RFC3339 or "YYYY-MM-DD HH:MM" in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, expected RFC3339 or YYYY-MM-DD HH:MM", s)
	}
	return ts, nil
}
