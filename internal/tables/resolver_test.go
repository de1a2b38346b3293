package tables

import (
	"testing"
	"time"

	"tablebook/internal/models"
	"tablebook/internal/overlap"

	"github.com/stretchr/testify/assert"
)

var day = time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)

const dwell = 90 * time.Minute

func at(h, m int) time.Time {
	return time.Date(2026, 3, 13, h, m, 0, 0, time.UTC)
}

func floor() []models.Table {
	return []models.Table{
		{ID: 10, Number: "10", Area: models.AreaIndoor, Seats: 6, IsActive: true},
		{ID: 2, Number: "2", Area: models.AreaIndoor, Seats: 2, IsActive: true},
		{ID: 1, Number: "1", Area: models.AreaIndoor, Seats: 4, IsActive: true},
		{ID: 3, Number: "3", Area: models.AreaIndoor, Seats: 4, IsActive: false},
		{ID: 20, Number: "T1", Area: models.AreaOutdoor, Seats: 4, IsActive: true},
		{ID: 21, Number: "T2", Area: models.AreaOutdoor, Seats: 8, IsActive: true},
	}
}

func numbers(ts []models.Table) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Number)
	}
	return out
}

func TestAvailable(t *testing.T) {
	reservations := []models.Reservation{
		{ID: 100, Date: day, Start: models.Clock(18, 0), PartySize: 4, Status: models.StatusConfirmed, TableIDs: []int64{1}},
		{ID: 101, Date: day, Start: models.Clock(18, 0), PartySize: 2, Status: models.StatusCancelled, TableIDs: []int64{2}},
		{ID: 102, Date: day, Start: models.Clock(16, 30), PartySize: 8, Status: models.StatusSeated, TableIDs: []int64{21}},
		{ID: 103, Date: day, Start: models.Clock(18, 0), PartySize: 3, Status: models.StatusNoShow, TableIDs: []int64{20}},
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{
			name: "indoor overlapping",
			q:    Query{Interval: overlap.New(at(18, 30), dwell), Area: models.AreaIndoor},
			want: []string{"2", "10"},
		},
		{
			name: "indoor after first booking ends",
			q:    Query{Interval: overlap.New(at(19, 30), dwell), Area: models.AreaIndoor},
			want: []string{"1", "2", "10"},
		},
		{
			name: "outdoor back to back with seated party",
			q:    Query{Interval: overlap.New(at(18, 0), dwell), Area: models.AreaOutdoor},
			want: []string{"T1", "T2"},
		},
		{
			name: "min seats",
			q:    Query{Interval: overlap.New(at(18, 30), dwell), Area: models.AreaIndoor, MinSeats: 4},
			want: []string{"10"},
		},
		{
			name: "exclude edited reservation",
			q:    Query{Interval: overlap.New(at(18, 30), dwell), Area: models.AreaIndoor, ExcludeReservationID: 100},
			want: []string{"1", "2", "10"},
		},
		{
			name: "any area",
			q:    Query{Interval: overlap.New(at(17, 0), dwell)},
			want: []string{"2", "10", "T1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Available(tt.q, floor(), reservations, dwell)
			assert.Equal(t, tt.want, numbers(got))
		})
	}
}

func TestBusy(t *testing.T) {
	reservations := []models.Reservation{
		{ID: 7, Date: day, Start: models.Clock(18, 0), Status: models.StatusConfirmed, TableIDs: []int64{1, 2}},
	}

	busy := Busy(Query{Interval: overlap.New(at(19, 0), dwell)}, reservations, dwell)
	assert.Equal(t, map[int64]int64{1: 7, 2: 7}, busy)

	busy = Busy(Query{Interval: overlap.New(at(19, 30), dwell)}, reservations, dwell)
	assert.Empty(t, busy)
}

func TestSortByNumber(t *testing.T) {
	ts := []models.Table{
		{ID: 1, Number: "B"},
		{ID: 2, Number: "12"},
		{ID: 3, Number: "A"},
		{ID: 4, Number: "3"},
	}
	SortByNumber(ts)
	assert.Equal(t, []string{"3", "12", "A", "B"}, numbers(ts))
	assert.Equal(t, 0, Seats(nil))
}
