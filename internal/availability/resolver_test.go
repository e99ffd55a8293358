package availability

import (
	"testing"
	"time"

	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("LOC-1", "Australia/Sydney")
	require.NoError(t, err)
	return r
}

func TestResolveBucketsByDate(t *testing.T) {
	r := newTestResolver(t)

	day1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 10, 30, 0, 0, time.UTC)

	feeds := []models.StaffAvailability{
		{
			StaffID:   "staff-a",
			StaffName: "Alex",
			Slots: []models.AvailabilitySlot{
				{StartAt: day1, DurationMinutes: 45},
				{StartAt: day2, DurationMinutes: 45},
			},
		},
	}

	index := r.Resolve(feeds, "svc-1")
	require.Len(t, index, 2)
	require.Len(t, index["2025-03-01"], 1)
	require.Len(t, index["2025-03-02"], 1)

	slot := index["2025-03-01"][0]
	assert.Equal(t, day1, slot.StartAt)
	assert.Equal(t, "LOC-1", slot.LocationID)
	require.Len(t, slot.Segments, 1)
	assert.Equal(t, "svc-1", slot.Segments[0].ServiceID)
	assert.Equal(t, "staff-a", slot.Segments[0].StaffID)
	assert.Equal(t, int64(45), slot.Segments[0].DurationMinutes)
}

func TestResolveDeduplicatesIdenticalInstants(t *testing.T) {
	r := newTestResolver(t)

	instant := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	feeds := []models.StaffAvailability{
		{StaffID: "staff-a", Slots: []models.AvailabilitySlot{{StartAt: instant, DurationMinutes: 30}}},
		{StaffID: "staff-b", Slots: []models.AvailabilitySlot{{StartAt: instant, DurationMinutes: 30}}},
	}

	index := r.Resolve(feeds, "svc-1")
	require.Len(t, index["2025-03-01"], 1)
	// First feed wins
	assert.Equal(t, "staff-a", index["2025-03-01"][0].Segments[0].StaffID)
}

func TestResolveSortsWithinBucket(t *testing.T) {
	r := newTestResolver(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	feeds := []models.StaffAvailability{
		{StaffID: "staff-a", Slots: []models.AvailabilitySlot{
			{StartAt: base.Add(14 * time.Hour), DurationMinutes: 30},
			{StartAt: base.Add(9 * time.Hour), DurationMinutes: 30},
			{StartAt: base.Add(11 * time.Hour), DurationMinutes: 30},
		}},
	}

	slots := r.Resolve(feeds, "svc-1")["2025-03-01"]
	require.Len(t, slots, 3)
	assert.True(t, slots[0].StartAt.Before(slots[1].StartAt))
	assert.True(t, slots[1].StartAt.Before(slots[2].StartAt))
}

func TestResolveDisplayTimeUsesBusinessTimezone(t *testing.T) {
	r := newTestResolver(t)

	// 23:00 UTC on 1 March is the next morning in Sydney; the bucket must
	// stay on the backend's date while display follows the business clock.
	instant := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	feeds := []models.StaffAvailability{
		{StaffID: "staff-a", Slots: []models.AvailabilitySlot{{StartAt: instant, DurationMinutes: 30}}},
	}

	index := r.Resolve(feeds, "svc-1")
	require.Len(t, index["2025-03-01"], 1)
	assert.Equal(t, "10:00 AM", index["2025-03-01"][0].DisplayTime)
}

func TestSegmentsBackToBack(t *testing.T) {
	r := newTestResolver(t)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	slot := models.ResolvedSlot{
		StartAt:  start,
		Segments: []models.AppointmentSegment{{ServiceID: "svc-1", StaffID: "staff-a"}},
	}
	services := []models.Service{
		{ID: "svc-1", Duration: 45},
		{ID: "svc-2", Duration: 30},
		{ID: "svc-3", Duration: 60},
	}

	segments := r.Segments(slot, services)
	require.Len(t, segments, 3)

	assert.Equal(t, start, segments[0].StartAt)
	assert.Equal(t, start.Add(45*time.Minute), segments[1].StartAt)
	assert.Equal(t, start.Add(75*time.Minute), segments[2].StartAt)
	for _, seg := range segments {
		assert.Equal(t, "staff-a", seg.StaffID)
	}
}

func TestSegmentsNormalizeMillisecondDurations(t *testing.T) {
	r := newTestResolver(t)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	slot := models.ResolvedSlot{
		StartAt:  start,
		Segments: []models.AppointmentSegment{{ServiceID: "svc-1", StaffID: "staff-a"}},
	}
	// 2700000 ms = 45 minutes
	services := []models.Service{
		{ID: "svc-1", Duration: 2700000},
		{ID: "svc-2", Duration: 30},
	}

	segments := r.Segments(slot, services)
	require.Len(t, segments, 2)
	assert.Equal(t, int64(45), segments[0].DurationMinutes)
	assert.Equal(t, start.Add(45*time.Minute), segments[1].StartAt)
}

func TestBookingRequest(t *testing.T) {
	r := newTestResolver(t)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	slot := models.ResolvedSlot{
		StartAt:  start,
		Segments: []models.AppointmentSegment{{ServiceID: "svc-1", StaffID: "staff-a"}},
	}
	services := []models.Service{{ID: "svc-1", Duration: 45}}
	customer := models.Customer{ID: "cust-9", Name: "Dana"}

	req := r.BookingRequest(slot, services, customer, "first visit", "key-booking")

	assert.Equal(t, start, req.StartAt)
	assert.Equal(t, "cust-9", req.CustomerID)
	assert.Equal(t, "first visit", req.CustomerNote)
	assert.Equal(t, "key-booking", req.IdempotencyKey)
	require.Len(t, req.Segments, 1)
}
