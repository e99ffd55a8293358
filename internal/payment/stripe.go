package payment

import (
	"context"
	"fmt"
	"strings"

	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeCharger charges deposits directly through Stripe PaymentIntents
// instead of delegating to the backend's /payments/process endpoint. Used in
// sandbox wiring and by the simulator.
type StripeCharger struct {
	logger *zerolog.Logger
}

func NewStripeCharger(apiKey string, logger *zerolog.Logger) *StripeCharger {
	stripe.Key = apiKey
	return &StripeCharger{logger: logger}
}

func (c *StripeCharger) Charge(ctx context.Context, req models.PaymentRequest) (*models.Payment, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.SourceID),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("booking deposit"),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	if req.CustomerID != "" {
		params.AddMetadata("customer_id", req.CustomerID)
	}
	if req.LocationID != "" {
		params.AddMetadata("location_id", req.LocationID)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("payment intent %s not succeeded: %s", intent.ID, intent.Status)
	}

	receipt := ""
	if intent.LatestCharge != nil {
		receipt = intent.LatestCharge.ReceiptURL
	}

	c.logger.Info().
		Str("payment_id", intent.ID).
		Int64("amount", intent.Amount).
		Msg("stripe deposit charged")

	return &models.Payment{
		ID:         intent.ID,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		ReceiptURL: receipt,
	}, nil
}
