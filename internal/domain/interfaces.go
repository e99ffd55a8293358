package domain

import (
	"context"
	"time"

	"studiobook/internal/models"
	"studiobook/internal/payment"
)

// BookingAPI is the scheduling backend's REST surface consumed by the saga
// and the availability search.
type BookingAPI interface {
	CreateBooking(ctx context.Context, req models.BookingRequest) (*models.BookingConfirmation, error)
	SearchAvailability(ctx context.Context, q models.AvailabilityQuery) ([]models.StaffAvailability, error)
}

// Charger executes the deposit charge for a tokenized card.
type Charger interface {
	Charge(ctx context.Context, req models.PaymentRequest) (*models.Payment, error)
}

// Tokenizer produces a single-use charge token from entered card data.
type Tokenizer interface {
	Tokenize(ctx context.Context, v payment.Verification) (*payment.TokenResult, error)
}

// StateRepository persists saga snapshots and the fixed-key diagnostic
// lookups used by support tooling.
type StateRepository interface {
	GetSaga(ctx context.Context, sagaID string) (*models.SagaRecord, error)
	SaveSaga(ctx context.Context, rec *models.SagaRecord) error
	ClearSaga(ctx context.Context, sagaID string) error
	SetLastCompleted(ctx context.Context, rec *models.AuditRecord) error
	GetLastCompleted(ctx context.Context) (*models.AuditRecord, error)
	SetLastReceipt(ctx context.Context, url string) error
	GetLastReceipt(ctx context.Context) (string, error)
}

// AuditSink accepts terminal saga bundles for durable storage.
type AuditSink interface {
	Enqueue(ctx context.Context, rec models.AuditRecord) error
}

// AuditStore is the durable audit trail behind the sink.
type AuditStore interface {
	Insert(ctx context.Context, rec models.AuditRecord) error
	ListRange(ctx context.Context, start, end time.Time) ([]models.AuditRecord, error)
	LastCompleted(ctx context.Context) (*models.AuditRecord, error)
}

// EventPublisher fans saga lifecycle events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
