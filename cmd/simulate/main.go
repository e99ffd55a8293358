// Command simulate drives the booking-payment saga against in-process
// doubles: a stub scheduling backend, a deterministic tokenizer and charger,
// and memory-backed repositories. Failure rates are injectable so terminal
// paths (declined card, failed charge, orphaned booking) show up in the
// output without touching real services.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"studiobook/internal/availability"
	"studiobook/internal/events"
	"studiobook/internal/idempotency"
	"studiobook/internal/models"
	"studiobook/internal/payment"
	"studiobook/internal/repository"
	"studiobook/internal/saga"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	var (
		runs        = flag.Int("runs", 25, "number of sagas to simulate")
		seed        = flag.Int64("seed", 0, "random seed (0 = time-based)")
		staffCount  = flag.Int("staff", 3, "staff members in the stub feed")
		declineRate = flag.Float64("decline-rate", 0.1, "probability a card tokenization is declined")
		chargeFail  = flag.Float64("charge-fail-rate", 0.05, "probability the charge fails after booking")
		bookingFail = flag.Float64("booking-fail-rate", 0.05, "probability booking creation fails")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	if err := run(*runs, *seed, *staffCount, rates{
		decline: *declineRate,
		charge:  *chargeFail,
		booking: *bookingFail,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
}

type rates struct {
	decline float64
	charge  float64
	booking float64
}

func run(runs int, seed int64, staffCount int, r rates) error {
	faker := gofakeit.New(seed)
	rng := rand.New(rand.NewSource(seed))

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()
	logger.Info().Int64("seed", seed).Int("runs", runs).Msg("simulation starting")

	services := fakeServices(faker)
	backend := newStubBackend(faker, rng, staffCount, r.booking)
	audit := &collectingSink{}

	resolver, err := availability.NewResolver("SIM-LOC", "Australia/Sydney")
	if err != nil {
		return err
	}

	template := saga.New(saga.Deps{
		Backend:   backend,
		Charger:   &stubCharger{rng: rng, failRate: r.charge},
		Tokenizer: &stubTokenizer{rng: rng, declineRate: r.decline},
		Keys:      idempotency.NewManager(idempotency.NewMemoryStore()),
		Resolver:  resolver,
		States:    repository.NewMemoryStateRepository(),
		Audit:     audit,
		Bus:       events.NewEventBus(),
		Logger:    &logger,
	}, saga.Config{
		BookingTimeout: 5 * time.Second,
		LocationID:     "SIM-LOC",
		Currency:       "AUD",
	})

	var tally struct {
		completed, declined, orphaned, bookingFailed, noSlots int
	}

	ctx := context.Background()
	for i := 0; i < runs; i++ {
		slot, ok := pickSlot(ctx, backend, resolver, rng, services[0].ID)
		if !ok {
			tally.noSlots++
			continue
		}

		picked := pickServices(rng, services)
		input := saga.Input{
			Services: picked,
			Slot:     slot,
			Customer: fakeCustomer(faker),
			Note:     faker.Sentence(6),
		}

		result, err := template.Clone().Run(ctx, input)
		switch {
		case err == nil:
			tally.completed++
			logger.Info().
				Str("booking_ref", result.BookingRef).
				Str("payment_id", result.Payment.ID).
				Int64("deposit", result.Amounts.Deposit).
				Msg("saga completed")
		case saga.NeedsSupportContact(err):
			tally.orphaned++
			logger.Warn().Err(err).Str("step", saga.FailedStep(err)).Msg("charge failed after booking")
		case saga.FailedStep(err) == models.SagaStateBookingCreated:
			tally.bookingFailed++
			logger.Warn().Err(err).Msg("booking creation failed")
		default:
			tally.declined++
			logger.Warn().Err(err).Str("step", saga.FailedStep(err)).Msg("saga failed")
		}
	}

	logger.Info().
		Int("completed", tally.completed).
		Int("card_declined", tally.declined).
		Int("booking_failed", tally.bookingFailed).
		Int("orphaned_unpaid", tally.orphaned).
		Int("no_slots", tally.noSlots).
		Int("audit_records", audit.len()).
		Msg("simulation finished")
	return nil
}

func fakeServices(faker *gofakeit.Faker) []models.Service {
	names := []string{"Cut & Style", "Color Treatment", "Keratin Smoothing", "Blow Dry", "Consultation"}
	services := make([]models.Service, 0, len(names))
	for i, name := range names {
		services = append(services, models.Service{
			ID:       fmt.Sprintf("svc-%d", i+1),
			Name:     name,
			Price:    int64(faker.Number(40, 400)) * 100,
			Duration: int64(faker.Number(2, 8)) * 15,
			Currency: "AUD",
		})
	}
	return services
}

func pickServices(rng *rand.Rand, services []models.Service) []models.Service {
	n := 1 + rng.Intn(2)
	picked := make([]models.Service, 0, n)
	for _, idx := range rng.Perm(len(services))[:n] {
		picked = append(picked, services[idx])
	}
	return picked
}

func fakeCustomer(faker *gofakeit.Faker) models.Customer {
	return models.Customer{
		Name:       faker.Name(),
		Email:      faker.Email(),
		Phone:      faker.Phone(),
		AddressZip: faker.Zip(),
	}
}

// pickSlot searches the stub backend the way the HTTP handler does and picks
// a random resolved slot for the coming week.
func pickSlot(ctx context.Context, backend *stubBackend, resolver *availability.Resolver, rng *rand.Rand, serviceID string) (models.ResolvedSlot, bool) {
	start := time.Now().AddDate(0, 0, 1)
	feeds, err := backend.SearchAvailability(ctx, models.AvailabilityQuery{
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 7),
		ServiceID: serviceID,
	})
	if err != nil {
		return models.ResolvedSlot{}, false
	}

	days := resolver.Resolve(feeds, serviceID)
	var all []models.ResolvedSlot
	for _, slots := range days {
		all = append(all, slots...)
	}
	if len(all) == 0 {
		return models.ResolvedSlot{}, false
	}
	return all[rng.Intn(len(all))], true
}

// stubBackend fabricates per-staff availability feeds and accepts bookings
// without any persistence beyond a ref counter.
type stubBackend struct {
	faker    *gofakeit.Faker
	rng      *rand.Rand
	staff    []models.StaffAvailability
	failRate float64

	mu      sync.Mutex
	created int
}

func newStubBackend(faker *gofakeit.Faker, rng *rand.Rand, staffCount int, failRate float64) *stubBackend {
	staff := make([]models.StaffAvailability, 0, staffCount)
	base := time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour).Add(9 * time.Hour)
	for i := 0; i < staffCount; i++ {
		member := models.StaffAvailability{
			StaffID:   fmt.Sprintf("staff-%d", i+1),
			StaffName: faker.Name(),
		}
		for day := 0; day < 7; day++ {
			dayStart := base.AddDate(0, 0, day)
			for hour := 0; hour < 8; hour++ {
				if rng.Float64() < 0.4 {
					continue
				}
				member.Slots = append(member.Slots, models.AvailabilitySlot{
					StartAt:         dayStart.Add(time.Duration(hour) * time.Hour),
					DurationMinutes: 60,
				})
			}
		}
		staff = append(staff, member)
	}
	return &stubBackend{faker: faker, rng: rng, staff: staff, failRate: failRate}
}

func (b *stubBackend) SearchAvailability(_ context.Context, _ models.AvailabilityQuery) ([]models.StaffAvailability, error) {
	return b.staff, nil
}

func (b *stubBackend) CreateBooking(_ context.Context, req models.BookingRequest) (*models.BookingConfirmation, error) {
	if b.rng.Float64() < b.failRate {
		return nil, errors.New("scheduling backend rejected the booking")
	}
	b.mu.Lock()
	b.created++
	n := b.created
	b.mu.Unlock()
	return &models.BookingConfirmation{
		OK:         true,
		BookingRef: fmt.Sprintf("sim-bk-%04d", n),
		CustomerID: "sim-cust-" + uuid.NewString()[:8],
		Version:    1,
	}, nil
}

type stubTokenizer struct {
	rng         *rand.Rand
	declineRate float64
}

func (t *stubTokenizer) Tokenize(_ context.Context, _ payment.Verification) (*payment.TokenResult, error) {
	if t.rng.Float64() < t.declineRate {
		return &payment.TokenResult{
			Status: payment.TokenStatusFailed,
			Errors: []string{"card declined by issuer"},
		}, nil
	}
	return &payment.TokenResult{Status: payment.TokenStatusOK, Token: "sim-tok-" + uuid.NewString()[:8]}, nil
}

type stubCharger struct {
	rng      *rand.Rand
	failRate float64
}

func (c *stubCharger) Charge(_ context.Context, req models.PaymentRequest) (*models.Payment, error) {
	if c.rng.Float64() < c.failRate {
		return nil, errors.New("payment processor unavailable")
	}
	id := "sim-pay-" + uuid.NewString()[:8]
	return &models.Payment{
		ID:         id,
		Amount:     req.Amount,
		Currency:   req.Currency,
		ReceiptURL: "https://sim.invalid/receipts/" + id,
	}, nil
}

type collectingSink struct {
	mu      sync.Mutex
	records []models.AuditRecord
}

func (s *collectingSink) Enqueue(_ context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *collectingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
