package models

import (
	"fmt"
	"time"
)

// Area is a seating zone.
type Area string

const (
	AreaIndoor  Area = "indoor"
	AreaOutdoor Area = "outdoor"
	AreaNone    Area = "none"
)

// SeatingAreas lists the areas that carry capacity, in evaluation order.
var SeatingAreas = []Area{AreaIndoor, AreaOutdoor}

// ParseArea accepts "indoor", "outdoor", "none" or an empty string (none).
func ParseArea(s string) (Area, error) {
	switch Area(s) {
	case AreaIndoor, AreaOutdoor, AreaNone:
		return Area(s), nil
	case "":
		return AreaNone, nil
	}
	return "", fmt.Errorf("unknown area %q", s)
}

// IsSeating reports whether the area has its own capacity.
func (a Area) IsSeating() bool {
	return a == AreaIndoor || a == AreaOutdoor
}

// Tier classifies a party by size.
type Tier string

const (
	TierSmall     Tier = "small"
	TierMedium    Tier = "medium"
	TierLarge     Tier = "large"
	TierVeryLarge Tier = "very_large"
)

// GroupThresholds are the party-size cutoffs between tiers.
type GroupThresholds struct {
	MediumMin    int `yaml:"medium_min" json:"medium_min"`
	LargeMin     int `yaml:"large_min" json:"large_min"`
	VeryLargeMin int `yaml:"very_large_min" json:"very_large_min"`
}

// Tier returns the tier of a party of the given size.
func (g GroupThresholds) Tier(size int) Tier {
	switch {
	case size >= g.VeryLargeMin:
		return TierVeryLarge
	case size >= g.LargeMin:
		return TierLarge
	case size >= g.MediumMin:
		return TierMedium
	default:
		return TierSmall
	}
}

// Validate checks that thresholds are positive and strictly increasing.
func (g GroupThresholds) Validate() error {
	if g.MediumMin < 1 {
		return fmt.Errorf("medium_min must be at least 1, got %d", g.MediumMin)
	}
	if g.LargeMin <= g.MediumMin {
		return fmt.Errorf("large_min (%d) must be greater than medium_min (%d)", g.LargeMin, g.MediumMin)
	}
	if g.VeryLargeMin <= g.LargeMin {
		return fmt.Errorf("very_large_min (%d) must be greater than large_min (%d)", g.VeryLargeMin, g.LargeMin)
	}
	return nil
}

// AreaSettings holds the limits of one seating area.
type AreaSettings struct {
	Capacity           int `yaml:"capacity" json:"capacity"`
	MaxPartySize       int `yaml:"max_party_size" json:"max_party_size"`
	MaxLargeGroups     int `yaml:"max_large_groups" json:"max_large_groups"`
	MaxVeryLargeGroups int `yaml:"max_very_large_groups" json:"max_very_large_groups"`
}

func (a AreaSettings) validate(prefix string) error {
	if a.Capacity < 0 {
		return fmt.Errorf("%s.capacity cannot be negative", prefix)
	}
	if a.MaxPartySize < 0 {
		return fmt.Errorf("%s.max_party_size cannot be negative", prefix)
	}
	if a.MaxLargeGroups < 0 || a.MaxVeryLargeGroups < 0 {
		return fmt.Errorf("%s: group limits cannot be negative", prefix)
	}
	return nil
}

// Settings is an immutable snapshot of the restaurant configuration.
// The mutable copy lives in storage and is re-read per request.
type Settings struct {
	Indoor              AreaSettings
	Outdoor             AreaSettings
	Groups              GroupThresholds
	Dwell               time.Duration
	ReservationsEnabled bool
	ClosedMessage       string
	MinLeadTime         time.Duration
	// UnassignedArea is the area whose capacity a reservation without an area consumes.
	UnassignedArea Area
}

// DefaultSettings mirrors the restaurant's out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		Indoor:              AreaSettings{Capacity: 42, MaxPartySize: 12, MaxLargeGroups: 2, MaxVeryLargeGroups: 1},
		Outdoor:             AreaSettings{Capacity: 54, MaxPartySize: 8, MaxLargeGroups: 2, MaxVeryLargeGroups: 0},
		Groups:              GroupThresholds{MediumMin: 5, LargeMin: 7, VeryLargeMin: 9},
		Dwell:               90 * time.Minute,
		ReservationsEnabled: true,
		MinLeadTime:         15 * time.Minute,
		UnassignedArea:      AreaIndoor,
	}
}

// Area returns the limits for a seating area.
func (s Settings) Area(area Area) AreaSettings {
	if area == AreaOutdoor {
		return s.Outdoor
	}
	return s.Indoor
}

// TotalCapacity is indoor plus outdoor capacity.
func (s Settings) TotalCapacity() int {
	return s.Indoor.Capacity + s.Outdoor.Capacity
}

// EffectiveArea maps a reservation's area to the area whose capacity it consumes.
func (s Settings) EffectiveArea(area Area) Area {
	if area.IsSeating() {
		return area
	}
	if s.UnassignedArea.IsSeating() {
		return s.UnassignedArea
	}
	return AreaIndoor
}

// Validate checks that the limits and durations are usable.
func (s Settings) Validate() error {
	if err := s.Indoor.validate("indoor"); err != nil {
		return err
	}
	if err := s.Outdoor.validate("outdoor"); err != nil {
		return err
	}
	if err := s.Groups.Validate(); err != nil {
		return err
	}
	if s.Dwell <= 0 {
		return fmt.Errorf("dwell must be positive")
	}
	if s.MinLeadTime < 0 {
		return fmt.Errorf("min lead time cannot be negative")
	}
	if s.UnassignedArea != "" && !s.UnassignedArea.IsSeating() {
		return fmt.Errorf("unassigned area must be indoor or outdoor, got %q", s.UnassignedArea)
	}
	return nil
}
