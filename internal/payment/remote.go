package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StaticMount is a mount target that exists from process start, for
// server-side wiring where no rendering surface has to appear first.
type StaticMount struct {
	MountID string
}

func (m StaticMount) ID() string { return m.MountID }

func (m StaticMount) Ready(ctx context.Context) (bool, error) { return true, nil }

// RemoteProvider speaks the payment gateway's card REST surface. Sandbox and
// production differ only in base URL and application id.
type RemoteProvider struct {
	baseURL       string
	applicationID string
	hc            *http.Client
	logger        *zerolog.Logger
}

func NewRemoteProvider(baseURL, applicationID string, timeout time.Duration, logger *zerolog.Logger) *RemoteProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteProvider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		applicationID: applicationID,
		hc:            &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Ready probes the gateway health endpoint. The gateway reports 200 only
// after its card service has finished booting.
func (p *RemoteProvider) Ready(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		// Unreachable is "not yet", not a hard failure; the adapter polls.
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// CreateCard allocates a card-entry session on the gateway.
func (p *RemoteProvider) CreateCard(ctx context.Context) (CardInput, error) {
	body := map[string]string{
		"application_id": p.applicationID,
		"session_id":     uuid.NewString(),
	}
	var resp struct {
		CardID string `json:"card_id"`
	}
	if err := p.post(ctx, "/cards", body, &resp); err != nil {
		return nil, fmt.Errorf("create card session: %w", err)
	}
	if resp.CardID == "" {
		return nil, fmt.Errorf("gateway returned no card id")
	}
	return &remoteCard{provider: p, cardID: resp.CardID}, nil
}

type remoteCard struct {
	provider *RemoteProvider
	cardID   string
}

func (c *remoteCard) Attach(ctx context.Context, mountID string) error {
	body := map[string]string{"mount_id": mountID}
	if err := c.provider.post(ctx, "/cards/"+c.cardID+"/attach", body, nil); err != nil {
		return fmt.Errorf("attach card: %w", err)
	}
	return nil
}

func (c *remoteCard) Tokenize(ctx context.Context, v Verification) (*TokenResult, error) {
	body := map[string]interface{}{
		"amount":   v.Amount,
		"currency": v.Currency,
		"intent":   v.Intent,
		"buyer": map[string]string{
			"id":          v.Buyer.ID,
			"name":        v.Buyer.Name,
			"email":       v.Buyer.Email,
			"address_zip": v.Buyer.AddressZip,
		},
	}
	var resp struct {
		Status string   `json:"status"`
		Token  string   `json:"token"`
		Errors []string `json:"errors"`
	}
	if err := c.provider.post(ctx, "/cards/"+c.cardID+"/tokenize", body, &resp); err != nil {
		return nil, fmt.Errorf("tokenize card: %w", err)
	}
	return &TokenResult{Status: resp.Status, Token: resp.Token, Errors: resp.Errors}, nil
}

func (c *remoteCard) Release() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.provider.baseURL+"/cards/"+c.cardID, nil)
	if err != nil {
		return err
	}
	resp, err := c.provider.hc.Do(req)
	if err != nil {
		return fmt.Errorf("release card: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("release card: gateway returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *RemoteProvider) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
