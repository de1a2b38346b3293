package export

import (
	"bytes"
	"testing"
	"time"

	"tablebook/internal/load"
	"tablebook/internal/models"
	"tablebook/internal/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteLoadReport(t *testing.T) {
	date := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	reservations := []models.Reservation{{
		Reference: "abc", Name: "Ada", Date: date, Start: models.Clock(18, 0), PartySize: 6,
		Area: models.AreaIndoor, Status: models.StatusConfirmed, Source: models.SourceOnline, TableIDs: []int64{3, 4},
	}}
	report := load.Aggregate(load.Input{
		Rule: rules.EffectiveRule{
			Date: date, IsOpen: true,
			Open: models.Clock(17, 0), Close: models.Clock(22, 0), LastReservation: models.Clock(21, 0),
		},
		Reservations: reservations,
		Dwell:        90 * time.Minute,
		Thresholds:   load.ThresholdsFor(96, load.DefaultCalmBelow, load.DefaultBusyBelow),
	})

	var buf bytes.Buffer
	require.NoError(t, WriteLoadReport(&buf, report, reservations))
	assert.Equal(t, "load_2026-03-13.xlsx", LoadReportFilename(report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Hours", "Blocks", "Reservations"}, f.GetSheetList())

	hours, err := f.GetRows("Hours")
	require.NoError(t, err)
	// header, 17..21 hours, totals
	require.Len(t, hours, 7)
	assert.Equal(t, []string{"18:00", "19:00", "6", "0", "0", "6", "calm"}, hours[2])

	blocks, err := f.GetRows("Blocks")
	require.NoError(t, err)
	assert.Len(t, blocks, 21)

	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[1][2])
	assert.Equal(t, "3, 4", rows[1][7])
}
