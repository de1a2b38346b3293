package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tablebook/internal/load"
	"tablebook/internal/models"
)

const clock = "15:04"

// LoadReportFilename is the download name for the report of date.
func LoadReportFilename(report load.Report) string {
	return fmt.Sprintf("load_%s.xlsx", report.Date.Format(models.DateLayout))
}

// WriteLoadReport writes the hourly and 15-minute load of one day plus its
// reservations as an XLSX workbook.
func WriteLoadReport(wr io.Writer, report load.Report, reservations []models.Reservation) error {
	w := NewSheetWriter()
	defer w.Close()

	if err := writeHours(w, report); err != nil {
		return err
	}
	if err := writeBlocks(w, report); err != nil {
		return err
	}
	if err := writeReservations(w, reservations); err != nil {
		return err
	}
	return w.Save(wr)
}

func writeHours(w *SheetWriter, report load.Report) error {
	if err := w.AddSheet("Hours"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"From", "To", "Indoor", "Outdoor", "Unassigned", "Total", "Level"}); err != nil {
		return err
	}
	for _, h := range report.Hours {
		if err := w.WriteRow([]any{
			h.Start.Format(clock), h.End.Format(clock),
			h.Peak.Indoor, h.Peak.Outdoor, h.Peak.Unassigned, h.Peak.Total, string(h.Level),
		}); err != nil {
			return err
		}
	}
	return w.WriteRow([]any{"Guests", report.Guests, "Bookings", report.Bookings})
}

func writeBlocks(w *SheetWriter, report load.Report) error {
	if err := w.AddSheet("Blocks"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Start", "Indoor", "Outdoor", "Unassigned", "Total", "Level"}); err != nil {
		return err
	}
	for _, b := range report.Blocks {
		if err := w.WriteRow([]any{
			b.Start.Format(clock), b.Indoor, b.Outdoor, b.Unassigned, b.Total, string(report.Thresholds.Classify(b.Total)),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeReservations(w *SheetWriter, reservations []models.Reservation) error {
	if err := w.AddSheet("Reservations"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Start", "Reference", "Name", "Party", "Area", "Status", "Source", "Tables", "Phone", "Notes"}); err != nil {
		return err
	}
	for _, r := range reservations {
		tables := make([]string, 0, len(r.TableIDs))
		for _, id := range r.TableIDs {
			tables = append(tables, strconv.FormatInt(id, 10))
		}
		if err := w.WriteRow([]any{
			r.Start.String(), r.Reference, r.Name, r.PartySize, string(r.Area), string(r.Status),
			string(r.Source), strings.Join(tables, ", "), r.Phone, r.Notes,
		}); err != nil {
			return err
		}
	}
	return nil
}
