package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/models"
)

func newRemoteProvider(t *testing.T, handler http.HandlerFunc) *RemoteProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	return NewRemoteProvider(srv.URL, "app-1", 5*time.Second, &logger)
}

func TestRemoteProviderReady(t *testing.T) {
	healthy := false
	p := newRemoteProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	ready, err := p.Ready(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)

	healthy = true
	ready, err = p.Ready(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestRemoteProviderUnreachableIsNotReady(t *testing.T) {
	logger := zerolog.Nop()
	p := NewRemoteProvider("http://127.0.0.1:1", "app-1", 100*time.Millisecond, &logger)

	ready, err := p.Ready(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestRemoteCardLifecycle(t *testing.T) {
	var paths []string
	p := newRemoteProvider(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/cards":
			json.NewEncoder(w).Encode(map[string]string{"card_id": "card-1"})
		case r.URL.Path == "/cards/card-1/attach":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "card-container", body["mount_id"])
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/cards/card-1/tokenize":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": TokenStatusOK,
				"token":  "tok-1",
			})
		case r.URL.Path == "/cards/card-1" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	card, err := p.CreateCard(context.Background())
	require.NoError(t, err)

	require.NoError(t, card.Attach(context.Background(), "card-container"))

	result, err := card.Tokenize(context.Background(), Verification{
		Amount:   3132,
		Currency: "AUD",
		Intent:   "CHARGE",
		Buyer:    models.Customer{ID: "cust-1", Name: "Dana"},
	})
	require.NoError(t, err)
	assert.Equal(t, TokenStatusOK, result.Status)
	assert.Equal(t, "tok-1", result.Token)

	require.NoError(t, card.Release())
	assert.Equal(t, []string{
		"POST /cards",
		"POST /cards/card-1/attach",
		"POST /cards/card-1/tokenize",
		"DELETE /cards/card-1",
	}, paths)
}

func TestRemoteCardTokenizeFailureSurfacedVerbatim(t *testing.T) {
	p := newRemoteProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cards" {
			json.NewEncoder(w).Encode(map[string]string{"card_id": "card-2"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": TokenStatusFailed,
			"errors": []string{"cvv check failed", "zip mismatch"},
		})
	})

	card, err := p.CreateCard(context.Background())
	require.NoError(t, err)

	result, err := card.Tokenize(context.Background(), Verification{})
	require.NoError(t, err)
	assert.Equal(t, TokenStatusFailed, result.Status)
	assert.Equal(t, []string{"cvv check failed", "zip mismatch"}, result.Errors)
}
