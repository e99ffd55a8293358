package models

import "time"

// Saga step/state names. The saga advances linearly through these; Failed is
// terminal for the instance.
const (
	SagaStateIdle            = "idle"
	SagaStateKeyGenerated    = "key_generated"
	SagaStateBookingCreated  = "booking_created"
	SagaStateCardTokenized   = "card_tokenized"
	SagaStatePaymentCharged  = "payment_charged"
	SagaStatePaymentAttached = "payment_attached"
	SagaStateFailed          = "failed"
)

// SagaRecord is the persisted snapshot of a saga instance. It exists so that
// a crashed process can report the exact step reached, which matters for the
// charged-but-not-confirmed ambiguity.
type SagaRecord struct {
	SagaID         string    `json:"saga_id"`
	State          string    `json:"state"`
	IdempotencyKey string    `json:"idempotency_key"`
	BookingRef     string    `json:"booking_ref,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	FailedStep     string    `json:"failed_step,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	StartAt        time.Time `json:"start_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Audit record statuses.
const (
	AuditCompleted      = "completed"
	AuditOrphanedUnpaid = "orphaned_unpaid"
)

// AuditRecord is the local diagnostic bundle written after a saga reaches a
// terminal state with durable side effects. Not authoritative; the backend
// keeps its own booking and payment records.
type AuditRecord struct {
	BookingRef  string    `json:"booking_ref"`
	PaymentID   string    `json:"payment_id,omitempty"`
	ReceiptURL  string    `json:"receipt_url,omitempty"`
	ServiceIDs  []string  `json:"service_ids"`
	StaffIDs    []string  `json:"staff_ids"`
	StartAt     time.Time `json:"start_at"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}
