package models

import (
	"fmt"
	"time"
)

// Status of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSeated    Status = "seated"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusSeated, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Active reports whether the reservation occupies capacity and tables.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusSeated, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusNoShow
}

// Source records how a reservation was taken.
type Source string

const (
	SourceOnline Source = "online"
	SourcePhone  Source = "phone"
	SourceWalkIn Source = "walk_in"
)

// ParseSource validates a source string; empty means online.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourceOnline, SourcePhone, SourceWalkIn:
		return src, nil
	case "":
		return SourceOnline, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Table is a physical table in one area.
type Table struct {
	ID       int64  `json:"id"`
	Number   string `json:"number"`
	Area     Area   `json:"area"`
	Seats    int    `json:"seats"`
	IsActive bool   `json:"is_active"`
}

// Reservation is a booking for one party on one date.
type Reservation struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"reference"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Date       time.Time `json:"date"`
	Start      TimeOfDay `json:"start"`
	PartySize  int       `json:"party_size"`
	Preference Area      `json:"preference"`
	// Area is the allocated area; AreaNone when staff left it open.
	Area     Area    `json:"area"`
	Status   Status  `json:"status"`
	TableIDs []int64 `json:"table_ids,omitempty"`
	Notes    string  `json:"notes,omitempty"`
	Source   Source  `json:"source"`
	// DwellMinutes is the dwell snapshot taken at creation. Zero uses the current setting.
	DwellMinutes int       `json:"dwell_minutes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StartTime returns the start as a timestamp on the reservation date.
func (r *Reservation) StartTime() time.Time {
	return r.Start.On(r.Date)
}

// Dwell returns the snapshotted dwell, or fallback when none was taken.
func (r *Reservation) Dwell(fallback time.Duration) time.Duration {
	if r.DwellMinutes > 0 {
		return time.Duration(r.DwellMinutes) * time.Minute
	}
	return fallback
}

// EndTime returns the end of the dwell interval.
func (r *Reservation) EndTime(fallback time.Duration) time.Time {
	return r.StartTime().Add(r.Dwell(fallback))
}

// HasTable reports whether the table is assigned to the reservation.
func (r *Reservation) HasTable(tableID int64) bool {
	for _, id := range r.TableIDs {
		if id == tableID {
			return true
		}
	}
	return false
}

// Cancel marks the reservation cancelled.
func (r *Reservation) Cancel() {
	r.Status = StatusCancelled
	r.UpdatedAt = time.Now()
}

// MarkAsSeated marks the party as seated.
func (r *Reservation) MarkAsSeated() {
	r.Status = StatusSeated
	r.UpdatedAt = time.Now()
}

// MarkAsNoShow marks the reservation as a no-show.
func (r *Reservation) MarkAsNoShow() {
	r.Status = StatusNoShow
	r.UpdatedAt = time.Now()
}

// FilterActive returns the reservations that occupy capacity.
func FilterActive(reservations []Reservation) []Reservation {
	active := make([]Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Status.Active() {
			active = append(active, r)
		}
	}
	return active
}
