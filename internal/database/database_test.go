package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "audit.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(ref, status string, startAt, completedAt time.Time) models.AuditRecord {
	return models.AuditRecord{
		BookingRef:  ref,
		PaymentID:   "pay-" + ref,
		ReceiptURL:  "https://pay.example/r/" + ref,
		ServiceIDs:  []string{"svc-1", "svc-2"},
		StaffIDs:    []string{"staff-a"},
		StartAt:     startAt,
		Amount:      3132,
		Currency:    "AUD",
		Status:      status,
		CompletedAt: completedAt,
	}
}

func TestInsertAndListRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	day9 := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Insert(ctx, record("bk-1", models.AuditCompleted, day1, day1)))
	require.NoError(t, db.Insert(ctx, record("bk-2", models.AuditOrphanedUnpaid, day2, day2)))
	require.NoError(t, db.Insert(ctx, record("bk-3", models.AuditCompleted, day9, day9)))

	records, err := db.ListRange(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "bk-1", records[0].BookingRef)
	assert.Equal(t, "bk-2", records[1].BookingRef)
	assert.Equal(t, []string{"svc-1", "svc-2"}, records[0].ServiceIDs)
	assert.Equal(t, []string{"staff-a"}, records[0].StaffIDs)
	assert.Equal(t, int64(3132), records[0].Amount)
}

func TestLastCompleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Empty trail
	last, err := db.LastCompleted(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	early := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Insert(ctx, record("bk-early", models.AuditCompleted, early, early)))
	require.NoError(t, db.Insert(ctx, record("bk-late", models.AuditCompleted, late, late)))
	// An orphan after the completions must not win.
	require.NoError(t, db.Insert(ctx, record("bk-orphan", models.AuditOrphanedUnpaid, late, late.Add(time.Hour))))

	last, err = db.LastCompleted(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "bk-late", last.BookingRef)
}

func TestCountByStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, db.Insert(ctx, record("bk-1", models.AuditCompleted, now, now)))
	require.NoError(t, db.Insert(ctx, record("bk-2", models.AuditCompleted, now, now)))
	require.NoError(t, db.Insert(ctx, record("bk-3", models.AuditOrphanedUnpaid, now, now)))

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.AuditCompleted])
	assert.Equal(t, int64(1), counts[models.AuditOrphanedUnpaid])
}

func TestEmptyIDListsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := record("bk-1", models.AuditOrphanedUnpaid, now, now)
	rec.StaffIDs = nil
	require.NoError(t, db.Insert(ctx, rec))

	records, err := db.ListRange(ctx, now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].StaffIDs)
}
