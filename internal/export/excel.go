package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	gridSheet   = "Schedule"
	totalsSheet = "Totals"
)

var statusFill = map[string]string{
	models.SlotAvailable: "#FFFFFF",
	models.SlotBooked:    "#C6EFCE",
	models.SlotPending:   "#FFEB9C",
	models.SlotPast:      "#D9D9D9",
}

// ReservationLine is one priced reservation in the totals sheet.
type ReservationLine struct {
	Reservation *models.Reservation
	CourtName   string
	Totals      pricing.Totals
}

// DayReport is everything rendered for one facility-local day.
type DayReport struct {
	Facility     models.Facility
	Date         time.Time
	Schedules    []models.DaySchedule
	Reservations []ReservationLine
}

type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger}
}

// FileName is the export file name of a facility day.
func FileName(facilityID int64, date time.Time) string {
	return fmt.Sprintf("schedule_%d_%s.xlsx", facilityID, date.Format(models.DateLayout))
}

// ExportDay writes the report into the export directory and returns the path.
func (e *Exporter) ExportDay(report DayReport) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := build(report)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(report.Facility.ID, report.Date))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

// WriteDay streams the report as xlsx.
func (e *Exporter) WriteDay(w io.Writer, report DayReport) error {
	f, err := build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func build(report DayReport) (*excelize.File, error) {
	f := excelize.NewFile()

	if _, err := f.NewSheet(gridSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeGrid(f, report); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(totalsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeTotals(f, report.Reservations, report.Facility.Location()); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(gridSheet); err == nil {
		f.SetActiveSheet(index)
	}
	return f, nil
}

func writeGrid(f *excelize.File, report DayReport) error {
	loc := report.Facility.Location()

	_ = f.SetCellValue(gridSheet, "A1", fmt.Sprintf("%s: %s", report.Facility.Name, report.Date.Format("02.01.2006")))
	header, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	// rows are the union of slot starts across courts
	rowOf := make(map[string]int)
	var starts []time.Time
	for _, sched := range report.Schedules {
		for _, s := range sched.Slots {
			key := s.Start.In(loc).Format(models.ClockLayout)
			if _, ok := rowOf[key]; !ok {
				rowOf[key] = 0
				starts = append(starts, s.Start)
			}
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i, start := range starts {
		row := i + 3
		key := start.In(loc).Format(models.ClockLayout)
		rowOf[key] = row
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(gridSheet, cell, key)
		_ = f.SetCellStyle(gridSheet, cell, cell, header)
	}

	styles := make(map[string]int)
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		styles[status] = id
	}

	for i, sched := range report.Schedules {
		col := i + 2
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(gridSheet, cell, sched.Court.Name)
		_ = f.SetCellStyle(gridSheet, cell, cell, header)

		for _, s := range sched.Slots {
			row := rowOf[s.Start.In(loc).Format(models.ClockLayout)]
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(gridSheet, cell, s.Status)
			if id, ok := styles[s.Status]; ok {
				_ = f.SetCellStyle(gridSheet, cell, cell, id)
			}
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(report.Schedules) + 1)
	_ = f.SetColWidth(gridSheet, "A", lastCol, 14)
	if len(report.Schedules) > 0 {
		_ = f.MergeCell(gridSheet, "A1", lastCol+"1")
	}
	return nil
}

var totalsHeaders = []string{
	"Reservation", "Court", "Customer", "Status", "Start", "End",
	"Court fee", "Surcharge", "Service fee", "Total", "Paid", "Outstanding", "Points",
}

func writeTotals(f *excelize.File, lines []ReservationLine, loc *time.Location) error {
	for i, h := range totalsHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(totalsSheet, cell, h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(totalsHeaders))
	_ = f.SetCellStyle(totalsSheet, "A1", lastCol+"1", bold)

	var sum pricing.Totals
	for i, line := range lines {
		r := line.Reservation
		var start, end string
		if len(r.Slots) > 0 {
			start = r.Slots[0].Start.In(loc).Format(models.ClockLayout)
			end = r.Slots[len(r.Slots)-1].End.In(loc).Format(models.ClockLayout)
		}
		t := line.Totals
		values := []interface{}{
			r.ID, line.CourtName, r.CustomerID, r.Status, start, end,
			t.CourtFee, t.Surcharge, t.ServiceFee, t.Total, t.AlreadyPaid, t.Outstanding, t.LoyaltyPoints,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(totalsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row: %w", err)
		}

		sum.CourtFee += t.CourtFee
		sum.Surcharge += t.Surcharge
		sum.ServiceFee += t.ServiceFee
		sum.Total += t.Total
		sum.AlreadyPaid += t.AlreadyPaid
		sum.Outstanding += t.Outstanding
		sum.LoyaltyPoints += t.LoyaltyPoints
	}

	row := len(lines) + 2
	footer := []interface{}{"Total", "", "", "", "", "",
		sum.CourtFee, sum.Surcharge, sum.ServiceFee, sum.Total, sum.AlreadyPaid, sum.Outstanding, sum.LoyaltyPoints}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(totalsSheet, cell, &footer); err != nil {
		return fmt.Errorf("error writing row: %w", err)
	}
	end, _ := excelize.CoordinatesToCellName(len(totalsHeaders), row)
	_ = f.SetCellStyle(totalsSheet, cell, end, bold)
	_ = f.SetColWidth(totalsSheet, "A", lastCol, 14)
	return nil
}
