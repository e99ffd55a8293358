package models

import "time"

// Customer identifies the payer at saga start. The scheduling backend may
// link or create a payer identity during booking creation, so the id echoed
// back in BookingConfirmation is authoritative afterwards.
type Customer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	AddressZip string `json:"address_zip,omitempty"`
}

// BookingRequest is the body for the booking-creation endpoint. No payment
// is attached at this stage.
type BookingRequest struct {
	StartAt        time.Time            `json:"start_at"`
	Segments       []AppointmentSegment `json:"appointment_segments"`
	CustomerID     string               `json:"customer_id,omitempty"`
	CustomerNote   string               `json:"customer_note,omitempty"`
	IdempotencyKey string               `json:"idempotencyKey"`
}

// BookingConfirmation is the backend's answer to a booking-creation call.
// OK must be the explicit success flag from the body; a 2xx status alone is
// not success.
type BookingConfirmation struct {
	OK         bool   `json:"success"`
	BookingRef string `json:"booking_id"`
	CustomerID string `json:"customer_id"`
	Version    int64  `json:"version"`
}

// PaymentRequest is the body for the deposit charge call.
type PaymentRequest struct {
	SourceID       string   `json:"sourceId"`
	Amount         int64    `json:"amount"`
	Currency       string   `json:"currency"`
	IdempotencyKey string   `json:"idempotencyKey"`
	LocationID     string   `json:"locationId"`
	CustomerID     string   `json:"customerId"`
	Customer       Customer `json:"customerDetails"`
}

// Payment exists only after a successful charge.
type Payment struct {
	ID         string `json:"payment_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	ReceiptURL string `json:"receipt_url"`
}
