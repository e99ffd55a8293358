package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	return NewClient(srv.URL, "test-key", 5*time.Second, &logger)
}

func TestCreateBookingSuccess(t *testing.T) {
	var gotAuth string
	var gotReq models.BookingRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/bookings/self-managed/segments", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"booking": map[string]interface{}{
				"id":          "bk-100",
				"customer_id": "cust-100",
				"version":     int64(2),
			},
		})
	})

	conf, err := client.CreateBooking(context.Background(), models.BookingRequest{
		CustomerID:     "cust-100",
		IdempotencyKey: "key-1-booking",
	})
	require.NoError(t, err)

	assert.True(t, conf.OK)
	assert.Equal(t, "bk-100", conf.BookingRef)
	assert.Equal(t, "cust-100", conf.CustomerID)
	assert.Equal(t, int64(2), conf.Version)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "key-1-booking", gotReq.IdempotencyKey)
}

func TestCreateBookingMissingSuccessFlag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 2xx body without the explicit flag.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "accepted",
			"booking": map[string]interface{}{"id": "bk-101"},
		})
	})

	conf, err := client.CreateBooking(context.Background(), models.BookingRequest{})
	require.NoError(t, err)
	assert.False(t, conf.OK)
	assert.Equal(t, "bk-101", conf.BookingRef)
}

func TestCreateBookingServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "booking conflict", http.StatusConflict)
	})

	_, err := client.CreateBooking(context.Background(), models.BookingRequest{})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Contains(t, statusErr.Body, "booking conflict")
}

func TestChargeSuccess(t *testing.T) {
	var gotReq models.PaymentRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/process", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(models.Payment{
			ID:         "pay-100",
			Amount:     3132,
			Currency:   "AUD",
			ReceiptURL: "https://pay.example/r/100",
		})
	})

	pay, err := client.Charge(context.Background(), models.PaymentRequest{
		SourceID:       "tok-1",
		Amount:         3132,
		Currency:       "AUD",
		IdempotencyKey: "key-1-payment",
	})
	require.NoError(t, err)

	assert.Equal(t, "pay-100", pay.ID)
	assert.Equal(t, int64(3132), pay.Amount)
	assert.Equal(t, "key-1-payment", gotReq.IdempotencyKey)
}

func TestChargeRejectsEmptyPaymentID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})

	_, err := client.Charge(context.Background(), models.PaymentRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing payment id")
}

func TestSearchAvailability(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/availability/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2025-03-01", q.Get("start_date"))
		assert.Equal(t, "2025-03-07", q.Get("end_date"))
		assert.Equal(t, "svc-1", q.Get("service_id"))
		assert.Equal(t, "staff-a,staff-b", q.Get("team_member_ids"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"availabilities": []models.StaffAvailability{
				{StaffID: "staff-a"},
				{StaffID: "staff-b"},
			},
		})
	})

	feeds, err := client.SearchAvailability(context.Background(), models.AvailabilityQuery{
		StartDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
		ServiceID:     "svc-1",
		TeamMemberIDs: []string{"staff-a", "staff-b"},
	})
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "staff-a", feeds[0].StaffID)
}

func TestRequestContextCancellation(t *testing.T) {
	block := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.CreateBooking(ctx, models.BookingRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
