package idempotency

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrKeyExhaustion means the manager could not draw an unused key within
	// the redraw budget. Fatal for the saga that requested it.
	ErrKeyExhaustion = errors.New("idempotency key space exhausted")
)

// Store tracks used keys. MarkUsed returns false when the key was already
// present, true when this call claimed it.
type Store interface {
	MarkUsed(ctx context.Context, key string) (bool, error)
}

// Key is a single-use token for one logical saga attempt. The backend sees
// two derived keys so the booking call and the payment call retry
// independently.
type Key string

func (k Key) Booking() string { return string(k) + "-booking" }
func (k Key) Payment() string { return string(k) + "-payment" }

// Manager draws collision-checked random keys backed by a Store. A key is
// claimed in the store before it is ever handed to a caller, so a rapid
// double-submit cannot reuse it.
type Manager struct {
	store    Store
	maxDraws int
	keyBytes int
}

const (
	defaultMaxDraws = 10
	defaultKeyBytes = 16
)

func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		maxDraws: defaultMaxDraws,
		keyBytes: defaultKeyBytes,
	}
}

// Generate draws a fresh key, redrawing on collision up to the bounded
// budget.
func (m *Manager) Generate(ctx context.Context) (Key, error) {
	for draw := 0; draw < m.maxDraws; draw++ {
		raw := make([]byte, m.keyBytes)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}

		key := hex.EncodeToString(raw)
		claimed, err := m.store.MarkUsed(ctx, key)
		if err != nil {
			return "", fmt.Errorf("claim idempotency key: %w", err)
		}
		if claimed {
			return Key(key), nil
		}
	}

	return "", ErrKeyExhaustion
}
