package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter writes audit trail extracts as xlsx files for the studio's
// back office.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// AuditRange writes one sheet with all audit records for the period and
// returns the file path.
func (e *Exporter) AuditRange(records []models.AuditRecord, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Bookings"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	headers := []string{
		"Booking", "Payment", "Status", "Appointment", "Services", "Staff",
		"Deposit", "Currency", "Receipt", "Completed",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	orphanStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})

	for i, rec := range records {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), rec.BookingRef)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), rec.PaymentID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), rec.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), rec.StartAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), strings.Join(rec.ServiceIDs, ", "))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), strings.Join(rec.StaffIDs, ", "))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), float64(rec.Amount)/100)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), rec.Currency)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), rec.ReceiptURL)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), rec.CompletedAt.Format("02.01.2006 15:04"))

		// Orphaned rows are the ones support has to chase; make them stand out.
		if rec.Status == models.AuditOrphanedUnpaid {
			_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), orphanStyle)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 18)
	_ = f.SetColWidth(sheetName, "C", "C", 16)
	_ = f.SetColWidth(sheetName, "D", "F", 20)
	_ = f.SetColWidth(sheetName, "G", "H", 10)
	_ = f.SetColWidth(sheetName, "I", "I", 40)
	_ = f.SetColWidth(sheetName, "J", "J", 20)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.MergeCell(sheetName, "A1", "J1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("audit_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("records", len(records)).Msg("audit export created")
	return filePath, nil
}
