package availability

import (
	"fmt"
	"sort"
	"time"

	"studiobook/internal/models"
)

// Resolver turns raw per-staff slot feeds into a date-keyed, deduplicated
// index of bookable times, and maps a chosen slot back to the appointment
// segments a booking request needs.
type Resolver struct {
	locationID string
	tz         *time.Location
}

const (
	dateKeyLayout     = "2006-01-02"
	displayTimeLayout = "3:04 PM"
)

func NewResolver(locationID, timezone string) (*Resolver, error) {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", timezone, err)
	}
	return &Resolver{locationID: locationID, tz: tz}, nil
}

// Resolve builds the customer-facing slot index. serviceID is the originally
// requested service; slots always reference it regardless of anything the
// feed embeds. Two feeds reporting the same instant collapse to one slot.
func (r *Resolver) Resolve(feeds []models.StaffAvailability, serviceID string) map[string][]models.ResolvedSlot {
	index := make(map[string][]models.ResolvedSlot)
	seen := make(map[string]map[int64]struct{})

	for _, feed := range feeds {
		for _, slot := range feed.Slots {
			// The date component reported by the backend is authoritative;
			// no timezone shifting before bucketing.
			dateKey := slot.StartAt.Format(dateKeyLayout)

			if seen[dateKey] == nil {
				seen[dateKey] = make(map[int64]struct{})
			}
			instant := slot.StartAt.Unix()
			if _, dup := seen[dateKey][instant]; dup {
				continue
			}
			seen[dateKey][instant] = struct{}{}

			index[dateKey] = append(index[dateKey], models.ResolvedSlot{
				StartAt:     slot.StartAt,
				LocationID:  r.locationID,
				DisplayTime: slot.StartAt.In(r.tz).Format(displayTimeLayout),
				Segments: []models.AppointmentSegment{
					{
						ServiceID:       serviceID,
						StaffID:         feed.StaffID,
						DurationMinutes: slot.DurationMinutes,
						StartAt:         slot.StartAt,
					},
				},
			})
		}
	}

	for key := range index {
		slots := index[key]
		sort.Slice(slots, func(i, j int) bool { return slots[i].StartAt.Before(slots[j].StartAt) })
	}

	return index
}

// Segments lays the selected services back-to-back from the slot start, in
// selection order, against the staff member who owns the slot. Segment N
// starts at slot start plus the summed durations of services 0..N-1.
func (r *Resolver) Segments(slot models.ResolvedSlot, services []models.Service) []models.AppointmentSegment {
	staffID := ""
	if len(slot.Segments) > 0 {
		staffID = slot.Segments[0].StaffID
	}

	segments := make([]models.AppointmentSegment, 0, len(services))
	var offset int64
	for _, svc := range services {
		duration := svc.DurationMinutes()
		segments = append(segments, models.AppointmentSegment{
			ServiceID:       svc.ID,
			StaffID:         staffID,
			DurationMinutes: duration,
			StartAt:         slot.StartAt.Add(time.Duration(offset) * time.Minute),
		})
		offset += duration
	}

	return segments
}

// BookingRequest assembles the unpaid booking-creation body for a chosen
// slot and service selection.
func (r *Resolver) BookingRequest(slot models.ResolvedSlot, services []models.Service, customer models.Customer, note, idempotencyKey string) models.BookingRequest {
	return models.BookingRequest{
		StartAt:        slot.StartAt,
		Segments:       r.Segments(slot, services),
		CustomerID:     customer.ID,
		CustomerNote:   note,
		IdempotencyKey: idempotencyKey,
	}
}
