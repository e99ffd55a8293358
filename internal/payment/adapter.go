package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"studiobook/internal/retry"

	"github.com/rs/zerolog"
)

// Adapter states. Initialization walks them in order; Error absorbs from any
// step.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateWaitingForSDK State = "waiting_for_sdk"
	StateCreatingCard  State = "creating_card_instance"
	StateAttaching     State = "attaching_to_mount"
	StateReady         State = "ready"
	StateError         State = "error"
)

var (
	ErrSDKLoadTimeout     = errors.New("payment SDK did not become ready within the polling budget")
	ErrCardCreationFailed = errors.New("card instance creation failed")
	ErrCardAttachFailed   = errors.New("card attach to mount failed")
	ErrMountUnavailable   = errors.New("mount target never appeared")
	ErrNotReady           = errors.New("payment adapter is not ready")
	ErrAlreadyInitialized = errors.New("payment adapter init already attempted")
)

// Config bounds every initialization step. Zero values get the defaults the
// SDK's observed timing tolerates.
type Config struct {
	SDKPollAttempts    int
	SDKPollInterval    time.Duration
	CardCreateAttempts int
	CardCreateTimeout  time.Duration
	CardCreateBackoff  time.Duration
	MountPollAttempts  int
	MountPollInterval  time.Duration
	AttachAttempts     int
	AttachTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.SDKPollAttempts <= 0 {
		c.SDKPollAttempts = 20
	}
	if c.SDKPollInterval <= 0 {
		c.SDKPollInterval = 750 * time.Millisecond
	}
	if c.CardCreateAttempts <= 0 {
		c.CardCreateAttempts = 3
	}
	if c.CardCreateTimeout <= 0 {
		c.CardCreateTimeout = 10 * time.Second
	}
	if c.CardCreateBackoff <= 0 {
		c.CardCreateBackoff = 500 * time.Millisecond
	}
	if c.MountPollAttempts <= 0 {
		c.MountPollAttempts = 20
	}
	if c.MountPollInterval <= 0 {
		c.MountPollInterval = 250 * time.Millisecond
	}
	if c.AttachAttempts <= 0 {
		c.AttachAttempts = 2
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = 8 * time.Second
	}
}

// Adapter hides SDK load nondeterminism behind a ready-to-tokenize card
// input. Initialization is attempted at most once per instance; re-mount
// churn cannot trigger a second bootstrap.
type Adapter struct {
	provider Provider
	mount    MountPoint
	cfg      Config
	logger   *zerolog.Logger

	initAttempted atomic.Bool
	released      atomic.Bool

	mu         sync.Mutex
	state      State
	failedStep State
	failureMsg string
	card       CardInput
}

func NewAdapter(provider Provider, mount MountPoint, cfg Config, logger *zerolog.Logger) *Adapter {
	cfg.applyDefaults()
	return &Adapter{
		provider: provider,
		mount:    mount,
		cfg:      cfg,
		logger:   logger,
		state:    StateUninitialized,
	}
}

// State returns the current machine state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Failure reports which step absorbed into Error and why. Zero values when
// the adapter has not failed.
func (a *Adapter) Failure() (State, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failedStep, a.failureMsg
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.logger.Debug().Str("state", string(s)).Msg("payment adapter state change")
}

func (a *Adapter) fail(step State, err error) error {
	a.mu.Lock()
	a.state = StateError
	a.failedStep = step
	a.failureMsg = err.Error()
	a.mu.Unlock()
	a.logger.Error().Err(err).Str("step", string(step)).Msg("payment adapter initialization failed")
	return err
}

// Init bootstraps the SDK, creates the card instance and attaches it to the
// mount. Only the first call per instance runs; later calls report
// ErrAlreadyInitialized and the caller should build a fresh adapter to retry.
func (a *Adapter) Init(ctx context.Context) error {
	if !a.initAttempted.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	if err := a.waitForSDK(ctx); err != nil {
		return err
	}
	card, err := a.createCard(ctx)
	if err != nil {
		return err
	}
	if err := a.attach(ctx, card); err != nil {
		_ = card.Release()
		return err
	}

	a.mu.Lock()
	a.card = card
	a.mu.Unlock()
	a.setState(StateReady)
	return nil
}

func (a *Adapter) waitForSDK(ctx context.Context) error {
	a.setState(StateWaitingForSDK)
	err := retry.Poll(ctx, a.cfg.SDKPollAttempts, a.cfg.SDKPollInterval, a.provider.Ready)
	if err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			err = ErrSDKLoadTimeout
		}
		return a.fail(StateWaitingForSDK, err)
	}
	return nil
}

func (a *Adapter) createCard(ctx context.Context) (CardInput, error) {
	a.setState(StateCreatingCard)

	var card CardInput
	policy := retry.Policy{
		MaxAttempts:    a.cfg.CardCreateAttempts,
		InitialDelay:   a.cfg.CardCreateBackoff,
		AttemptTimeout: a.cfg.CardCreateTimeout,
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		created, err := a.provider.CreateCard(ctx)
		if err != nil {
			return err
		}
		card = created
		return nil
	})
	if err != nil {
		return nil, a.fail(StateCreatingCard, fmt.Errorf("%w: %w", ErrCardCreationFailed, err))
	}
	return card, nil
}

func (a *Adapter) attach(ctx context.Context, card CardInput) error {
	a.setState(StateAttaching)

	if err := retry.Poll(ctx, a.cfg.MountPollAttempts, a.cfg.MountPollInterval, a.mount.Ready); err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			err = ErrMountUnavailable
		}
		return a.fail(StateAttaching, err)
	}

	policy := retry.Policy{
		MaxAttempts:    a.cfg.AttachAttempts,
		InitialDelay:   a.cfg.CardCreateBackoff,
		AttemptTimeout: a.cfg.AttachTimeout,
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return card.Attach(ctx, a.mount.ID())
	})
	if err != nil {
		return a.fail(StateAttaching, fmt.Errorf("%w: %w", ErrCardAttachFailed, err))
	}
	return nil
}

// Tokenize converts entered card data into a single-use charge token.
// Results are surfaced verbatim and never retried here.
func (a *Adapter) Tokenize(ctx context.Context, v Verification) (*TokenResult, error) {
	a.mu.Lock()
	card := a.card
	ready := a.state == StateReady
	a.mu.Unlock()

	if !ready || card == nil {
		return nil, ErrNotReady
	}
	return card.Tokenize(ctx, v)
}

// Release frees the card resource. Safe to call any number of times; only
// the first call reaches the provider.
func (a *Adapter) Release() error {
	if !a.released.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	card := a.card
	a.card = nil
	a.mu.Unlock()

	if card == nil {
		return nil
	}
	if err := card.Release(); err != nil {
		return fmt.Errorf("release card input: %w", err)
	}
	return nil
}
