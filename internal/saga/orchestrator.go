package saga

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"studiobook/internal/availability"
	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/idempotency"
	"studiobook/internal/metrics"
	"studiobook/internal/models"
	"studiobook/internal/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config bounds the orchestrator's external calls.
type Config struct {
	BookingTimeout time.Duration
	LocationID     string
	Currency       string
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Backend   domain.BookingAPI
	Charger   domain.Charger
	Tokenizer domain.Tokenizer
	Keys      *idempotency.Manager
	Resolver  *availability.Resolver
	States    domain.StateRepository
	Audit     domain.AuditSink
	Bus       domain.EventPublisher
	Logger    *zerolog.Logger
}

// Input is one confirmed slot selection ready to book and pay.
type Input struct {
	Services []models.Service
	Slot     models.ResolvedSlot
	Customer models.Customer
	Note     string
}

// Result is the terminal success of a saga.
type Result struct {
	SagaID     string          `json:"saga_id"`
	BookingRef string          `json:"booking_ref"`
	Payment    *models.Payment `json:"payment"`
	Amounts    Amounts         `json:"amounts"`
}

// Orchestrator runs the booking-payment saga: create booking (unpaid) →
// tokenize card → charge deposit → attach payment. Steps execute strictly
// sequentially; a failed step is terminal for the instance.
type Orchestrator struct {
	backend   domain.BookingAPI
	charger   domain.Charger
	tokenizer domain.Tokenizer
	keys      *idempotency.Manager
	resolver  *availability.Resolver
	states    domain.StateRepository
	audit     domain.AuditSink
	bus       domain.EventPublisher
	cfg       Config
	logger    *zerolog.Logger

	inFlight atomic.Bool
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.BookingTimeout <= 0 {
		cfg.BookingTimeout = 30 * time.Second
	}
	return &Orchestrator{
		backend:   deps.Backend,
		charger:   deps.Charger,
		tokenizer: deps.Tokenizer,
		keys:      deps.Keys,
		resolver:  deps.Resolver,
		states:    deps.States,
		audit:     deps.Audit,
		bus:       deps.Bus,
		cfg:       cfg,
		logger:    deps.Logger,
	}
}

// Clone returns a fresh orchestrator with the same collaborators and a
// clean in-flight guard. The guard is per customer session, not per process.
func (o *Orchestrator) Clone() *Orchestrator {
	return &Orchestrator{
		backend:   o.backend,
		charger:   o.charger,
		tokenizer: o.tokenizer,
		keys:      o.keys,
		resolver:  o.resolver,
		states:    o.states,
		audit:     o.audit,
		bus:       o.bus,
		cfg:       o.cfg,
		logger:    o.logger,
	}
}

// Run executes one saga to a terminal state. A second call while one is in
// flight is rejected. Cancellation is honored only until the booking exists;
// after that the saga runs to completion or terminal failure so a
// half-charged state always leaves a record.
func (o *Orchestrator) Run(ctx context.Context, input Input) (*Result, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSagaInFlight
	}
	defer o.inFlight.Store(false)

	if len(input.Services) == 0 {
		return nil, ErrNoServices
	}

	rec := &models.SagaRecord{
		SagaID:  uuid.NewString(),
		State:   models.SagaStateIdle,
		StartAt: input.Slot.StartAt,
	}

	// Step 1: draw keys. The key is claimed in the store before any network
	// call so a rapid double-submit cannot reuse it.
	key, err := o.keys.Generate(ctx)
	if err != nil {
		return nil, o.fail(rec, models.SagaStateKeyGenerated, err, false)
	}
	rec.IdempotencyKey = string(key)
	o.saveState(rec, models.SagaStateKeyGenerated)

	// A user cancel before the booking exists is safe and side-effect-free.
	if err := ctx.Err(); err != nil {
		_ = o.states.ClearSaga(context.Background(), rec.SagaID)
		return nil, err
	}

	// Step 2: create the unpaid booking.
	conf, err := o.createBooking(ctx, rec, input, key)
	if err != nil {
		return nil, err
	}

	customerID := conf.CustomerID
	if customerID == "" {
		customerID = input.Customer.ID
	}

	// The booking exists now; later steps must not be abandoned mid-flight
	// by the caller going away.
	steady := context.WithoutCancel(ctx)

	// Step 3: tokenize the card for the deposit amount.
	amounts := ComputeAmounts(input.Services)
	token, err := o.tokenize(steady, rec, input, amounts)
	if err != nil {
		return nil, err
	}

	// Step 4: charge the deposit.
	pay, err := o.charge(steady, rec, input, amounts, key, token, customerID)
	if err != nil {
		return nil, err
	}

	// Step 5: attach the payment and leave the audit trail.
	o.attach(steady, rec, input, pay)

	return &Result{
		SagaID:     rec.SagaID,
		BookingRef: rec.BookingRef,
		Payment:    pay,
		Amounts:    amounts,
	}, nil
}

func (o *Orchestrator) createBooking(ctx context.Context, rec *models.SagaRecord, input Input, key idempotency.Key) (*models.BookingConfirmation, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.BookingTimeout)
	defer cancel()

	req := o.resolver.BookingRequest(input.Slot, input.Services, input.Customer, input.Note, key.Booking())
	conf, err := o.backend.CreateBooking(callCtx, req)
	if err != nil {
		return nil, o.fail(rec, models.SagaStateBookingCreated, err, false)
	}
	if !conf.OK {
		// An ambiguous 2xx without the explicit success flag is a failure.
		return nil, o.fail(rec, models.SagaStateBookingCreated, fmt.Errorf("backend did not confirm booking creation"), false)
	}

	rec.BookingRef = conf.BookingRef
	rec.CustomerID = conf.CustomerID
	o.saveState(rec, models.SagaStateBookingCreated)
	o.publish(events.EventBookingCreated, rec, 0)

	return conf, nil
}

func (o *Orchestrator) tokenize(ctx context.Context, rec *models.SagaRecord, input Input, amounts Amounts) (string, error) {
	result, err := o.tokenizer.Tokenize(ctx, payment.Verification{
		Amount:   amounts.Deposit,
		Currency: o.cfg.Currency,
		Intent:   "CHARGE",
		Buyer:    input.Customer,
	})
	if err != nil {
		return "", o.fail(rec, models.SagaStateCardTokenized, err, false)
	}
	if result.Status != payment.TokenStatusOK {
		return "", o.fail(rec, models.SagaStateCardTokenized, fmt.Errorf("tokenization failed: %v", result.Errors), false)
	}

	o.saveState(rec, models.SagaStateCardTokenized)
	return result.Token, nil
}

func (o *Orchestrator) charge(ctx context.Context, rec *models.SagaRecord, input Input, amounts Amounts, key idempotency.Key, token, customerID string) (*models.Payment, error) {
	pay, err := o.charger.Charge(ctx, models.PaymentRequest{
		SourceID:       token,
		Amount:         amounts.Deposit,
		Currency:       o.cfg.Currency,
		IdempotencyKey: key.Payment(),
		LocationID:     o.cfg.LocationID,
		CustomerID:     customerID,
		Customer:       input.Customer,
	})
	if err != nil {
		// The gateway may have charged and lost the response; the caller
		// must be steered to support, not to a retry.
		metrics.IncOrphanedBooking()
		o.enqueueAudit(ctx, rec, input, nil, models.AuditOrphanedUnpaid)
		return nil, o.fail(rec, models.SagaStatePaymentCharged, err, true)
	}

	rec.PaymentID = pay.ID
	o.saveState(rec, models.SagaStatePaymentCharged)
	o.publish(events.EventPaymentCharged, rec, pay.Amount)

	return pay, nil
}

func (o *Orchestrator) attach(ctx context.Context, rec *models.SagaRecord, input Input, pay *models.Payment) {
	o.enqueueAudit(ctx, rec, input, pay, models.AuditCompleted)

	bundle := o.auditRecord(rec, input, pay, models.AuditCompleted)
	if err := o.states.SetLastCompleted(ctx, &bundle); err != nil {
		o.logger.Error().Err(err).Msg("store last completed bundle")
	}
	if pay.ReceiptURL != "" {
		if err := o.states.SetLastReceipt(ctx, pay.ReceiptURL); err != nil {
			o.logger.Error().Err(err).Msg("store last receipt")
		}
	}

	o.saveState(rec, models.SagaStatePaymentAttached)
	o.publish(events.EventSagaCompleted, rec, pay.Amount)
	metrics.IncSaga("completed")

	o.logger.Info().
		Str("saga_id", rec.SagaID).
		Str("booking_ref", rec.BookingRef).
		Str("payment_id", rec.PaymentID).
		Msg("booking saga completed")
}

func (o *Orchestrator) enqueueAudit(ctx context.Context, rec *models.SagaRecord, input Input, pay *models.Payment, status string) {
	bundle := o.auditRecord(rec, input, pay, status)
	if err := o.audit.Enqueue(ctx, bundle); err != nil {
		o.logger.Error().Err(err).Str("saga_id", rec.SagaID).Msg("enqueue audit record")
	}
}

func (o *Orchestrator) auditRecord(rec *models.SagaRecord, input Input, pay *models.Payment, status string) models.AuditRecord {
	serviceIDs := make([]string, 0, len(input.Services))
	for _, svc := range input.Services {
		serviceIDs = append(serviceIDs, svc.ID)
	}
	staffIDs := make([]string, 0, len(input.Slot.Segments))
	for _, seg := range input.Slot.Segments {
		staffIDs = append(staffIDs, seg.StaffID)
	}

	bundle := models.AuditRecord{
		BookingRef:  rec.BookingRef,
		ServiceIDs:  serviceIDs,
		StaffIDs:    staffIDs,
		StartAt:     input.Slot.StartAt,
		Currency:    o.cfg.Currency,
		Status:      status,
		CompletedAt: time.Now().UTC(),
	}
	if pay != nil {
		bundle.PaymentID = pay.ID
		bundle.ReceiptURL = pay.ReceiptURL
		bundle.Amount = pay.Amount
		bundle.Currency = pay.Currency
	}
	return bundle
}

func (o *Orchestrator) saveState(rec *models.SagaRecord, state string) {
	rec.State = state
	rec.UpdatedAt = time.Now().UTC()
	// State persistence is diagnostic; a store hiccup must not fail the saga.
	if err := o.states.SaveSaga(context.Background(), rec); err != nil {
		o.logger.Error().Err(err).Str("saga_id", rec.SagaID).Str("state", state).Msg("persist saga state")
	}
}

func (o *Orchestrator) fail(rec *models.SagaRecord, step string, cause error, supportContact bool) error {
	rec.FailedStep = step
	rec.FailureReason = cause.Error()
	o.saveState(rec, models.SagaStateFailed)
	o.publish(events.EventSagaFailed, rec, 0)
	metrics.IncSaga(step)

	o.logger.Error().Err(cause).
		Str("saga_id", rec.SagaID).
		Str("step", step).
		Bool("support_contact", supportContact).
		Msg("booking saga failed")

	return &StepError{Step: step, Reason: cause.Error(), SupportContact: supportContact, Err: cause}
}

func (o *Orchestrator) publish(eventType string, rec *models.SagaRecord, amount int64) {
	if o.bus == nil {
		return
	}
	payload := events.SagaEventPayload{
		SagaID:     rec.SagaID,
		State:      rec.State,
		BookingRef: rec.BookingRef,
		PaymentID:  rec.PaymentID,
		Amount:     amount,
		Currency:   o.cfg.Currency,
		FailedStep: rec.FailedStep,
		Reason:     rec.FailureReason,
		StartAt:    rec.StartAt,
	}
	if err := o.bus.PublishJSON(eventType, payload); err != nil {
		o.logger.Error().Err(err).Str("event_type", eventType).Msg("publish saga event")
	}
}
