package export

import (
	"os"
	"testing"
	"time"

	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAuditRange(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(t.TempDir(), &logger)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)

	records := []models.AuditRecord{
		{
			BookingRef:  "bk-1",
			PaymentID:   "pay-1",
			ReceiptURL:  "https://pay.example/r/1",
			ServiceIDs:  []string{"svc-1", "svc-2"},
			StaffIDs:    []string{"staff-a"},
			StartAt:     start.Add(9 * time.Hour),
			Amount:      3132,
			Currency:    "AUD",
			Status:      models.AuditCompleted,
			CompletedAt: start.Add(9 * time.Hour),
		},
		{
			BookingRef:  "bk-2",
			ServiceIDs:  []string{"svc-1"},
			StartAt:     start.Add(33 * time.Hour),
			Amount:      1650,
			Currency:    "AUD",
			Status:      models.AuditOrphanedUnpaid,
			CompletedAt: start.Add(33 * time.Hour),
		},
	}

	path, err := e.AuditRange(records, start, end)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Contains(t, path, "audit_2025-03-01_to_2025-03-07.xlsx")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	ref, err := f.GetCellValue("Bookings", "A3")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", ref)

	status, err := f.GetCellValue("Bookings", "C4")
	require.NoError(t, err)
	assert.Equal(t, models.AuditOrphanedUnpaid, status)

	deposit, err := f.GetCellValue("Bookings", "G3")
	require.NoError(t, err)
	assert.Equal(t, "31.32", deposit)
}

func TestAuditRangeEmpty(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(t.TempDir(), &logger)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	path, err := e.AuditRange(nil, start, start)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
