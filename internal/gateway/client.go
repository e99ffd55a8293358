package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studiobook/internal/metrics"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// Client talks to the scheduling backend's REST API. Call deadlines come
// from the caller's context; the HTTP client timeout is only a backstop.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	logger  *zerolog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CreateBooking reserves an unpaid appointment. The confirmation's OK field
// mirrors the backend's explicit success flag; a 2xx status alone does not
// make the call a success.
func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.BookingConfirmation, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/bookings/self-managed/segments", nil, req)
	metrics.IncGateway("create_booking", status)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Code: status, Body: truncate(body)}
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Booking struct {
			ID         string `json:"id"`
			CustomerID string `json:"customer_id"`
			Version    int64  `json:"version"`
		} `json:"booking"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode booking response: %w", err)
	}

	if !resp.Success {
		c.logger.Warn().Str("message", resp.Message).Msg("booking creation not confirmed by backend")
	}

	return &models.BookingConfirmation{
		OK:         resp.Success,
		BookingRef: resp.Booking.ID,
		CustomerID: resp.Booking.CustomerID,
		Version:    resp.Booking.Version,
	}, nil
}

// Charge posts the tokenized deposit to the backend's payment endpoint.
func (c *Client) Charge(ctx context.Context, req models.PaymentRequest) (*models.Payment, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/payments/process", nil, req)
	metrics.IncGateway("process_payment", status)
	if err != nil {
		return nil, fmt.Errorf("process payment: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Code: status, Body: truncate(body)}
	}

	var payment models.Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if payment.ID == "" {
		return nil, fmt.Errorf("payment response missing payment id")
	}
	return &payment, nil
}

// SearchAvailability fetches raw per-staff open-slot feeds for a range.
func (c *Client) SearchAvailability(ctx context.Context, q models.AvailabilityQuery) ([]models.StaffAvailability, error) {
	query := url.Values{}
	query.Set("start_date", q.StartDate.Format("2006-01-02"))
	query.Set("end_date", q.EndDate.Format("2006-01-02"))
	query.Set("service_id", q.ServiceID)
	if len(q.TeamMemberIDs) > 0 {
		query.Set("team_member_ids", strings.Join(q.TeamMemberIDs, ","))
	}
	if q.Timezone != "" {
		query.Set("timezone", q.Timezone)
	}

	status, body, err := c.do(ctx, http.MethodGet, "/availability/search", query, nil)
	metrics.IncGateway("search_availability", status)
	if err != nil {
		return nil, fmt.Errorf("search availability: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Code: status, Body: truncate(body)}
	}

	var resp struct {
		Availabilities []models.StaffAvailability `json:"availabilities"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode availability response: %w", err)
	}
	return resp.Availabilities, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload interface{}) (int, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	const max = 256
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
