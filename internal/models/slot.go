package models

import "time"

// AvailabilitySlot is a single open window in a staff member's feed.
type AvailabilitySlot struct {
	StartAt         time.Time `json:"start_at"`
	DurationMinutes int64     `json:"duration_minutes"`
}

// StaffAvailability is the raw per-staff slot list returned by the
// scheduling backend for a queried date range.
type StaffAvailability struct {
	StaffID   string             `json:"staff_id"`
	StaffName string             `json:"staff_name"`
	Slots     []AvailabilitySlot `json:"slots"`
}

// AppointmentSegment is one service-staff-duration-start tuple within a
// possibly multi-service booking.
type AppointmentSegment struct {
	ServiceID       string    `json:"service_id"`
	StaffID         string    `json:"staff_id"`
	DurationMinutes int64     `json:"duration_minutes"`
	StartAt         time.Time `json:"start_at"`
}

// ResolvedSlot is a customer-facing bookable instant produced by the
// availability resolver.
type ResolvedSlot struct {
	StartAt     time.Time            `json:"start_at"`
	LocationID  string               `json:"location_id"`
	DisplayTime string               `json:"display_time"`
	Segments    []AppointmentSegment `json:"segments"`
}

// AvailabilityQuery describes a search against the scheduling backend.
type AvailabilityQuery struct {
	StartDate     time.Time
	EndDate       time.Time
	ServiceID     string
	TeamMemberIDs []string
	Timezone      string
}
