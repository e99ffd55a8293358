package payment

import (
	"context"

	"studiobook/internal/models"
)

// Token statuses returned by providers.
const (
	TokenStatusOK     = "OK"
	TokenStatusFailed = "FAILED"
)

// Verification carries the charge intent presented at tokenization.
type Verification struct {
	Amount   int64
	Currency string
	Intent   string
	Buyer    models.Customer
}

// TokenResult is the provider's answer to a tokenize call. Errors are
// surfaced verbatim; a failed tokenization usually means bad card data and
// control must return to the customer.
type TokenResult struct {
	Status string
	Token  string
	Errors []string
}

// CardInput is a single card-entry resource owned by the adapter. It must be
// attached before tokenizing and released exactly once on teardown.
type CardInput interface {
	Attach(ctx context.Context, mountID string) error
	Tokenize(ctx context.Context, v Verification) (*TokenResult, error)
	Release() error
}

// Provider abstracts the third-party payment SDK so a test double never
// touches a real network or global state.
type Provider interface {
	// Ready reports whether the SDK has finished its asynchronous bootstrap.
	Ready(ctx context.Context) (bool, error)
	// CreateCard calls the SDK's card factory.
	CreateCard(ctx context.Context) (CardInput, error)
}

// MountPoint is the rendering surface the card input binds to. Its readiness
// is not synchronously observable either.
type MountPoint interface {
	ID() string
	Ready(ctx context.Context) (bool, error)
}
