package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"studiobook/internal/availability"
	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/export"
	"studiobook/internal/metrics"
	"studiobook/internal/models"
	"studiobook/internal/saga"

	"github.com/rs/zerolog"
)

// SagaRunner executes the booking-payment flow for one request.
type SagaRunner interface {
	Run(ctx context.Context, input saga.Input) (*saga.Result, error)
}

// HTTPServer exposes the booking REST API.
type HTTPServer struct {
	cfg      config.APIConfig
	runner   SagaRunner
	backend  domain.BookingAPI
	resolver *availability.Resolver
	states   domain.StateRepository
	audits   domain.AuditStore
	exporter *export.Exporter
	services map[string]models.Service
	catalog  []models.Service
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

type Deps struct {
	Runner   SagaRunner
	Backend  domain.BookingAPI
	Resolver *availability.Resolver
	States   domain.StateRepository
	Audits   domain.AuditStore
	Exporter *export.Exporter
	Services []models.Service
	Logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		runner:   deps.Runner,
		backend:  deps.Backend,
		resolver: deps.Resolver,
		states:   deps.States,
		audits:   deps.Audits,
		exporter: deps.Exporter,
		services: make(map[string]models.Service, len(deps.Services)),
		catalog:  deps.Services,
		logger:   deps.Logger,
	}
	for _, svc := range deps.Services {
		srv.services[svc.ID] = svc
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/services", srv.handleServices)
	mux.HandleFunc("/api/v1/availability", srv.handleAvailability)
	mux.HandleFunc("/api/v1/bookings/last", srv.handleLastBooking)
	mux.HandleFunc("/api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("/api/v1/exports/audit", srv.handleAuditExport)

	root := http.NewServeMux()
	root.HandleFunc("/healthz", srv.handleHealth)
	root.Handle("/", srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(root),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the assembled handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	services := append([]models.Service(nil), s.catalog...)
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}
	if _, ok := s.services[serviceID]; !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}

	startDate, err := parseDateParam(r, "start_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := parseDateParam(r, "end_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	feeds, err := s.backend.SearchAvailability(r.Context(), models.AvailabilityQuery{
		StartDate: startDate,
		EndDate:   endDate,
		ServiceID: serviceID,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("availability search failed")
		writeError(w, http.StatusBadGateway, "availability search failed")
		return
	}

	days := s.resolver.Resolve(feeds, serviceID)
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

type createBookingRequest struct {
	ServiceIDs []string        `json:"service_ids"`
	StartAt    time.Time       `json:"start_at"`
	StaffID    string          `json:"staff_id"`
	Customer   models.Customer `json:"customer"`
	Note       string          `json:"note"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(body.ServiceIDs) == 0 {
		writeError(w, http.StatusBadRequest, "service_ids is required")
		return
	}
	if body.StartAt.IsZero() {
		writeError(w, http.StatusBadRequest, "start_at is required")
		return
	}

	services := make([]models.Service, 0, len(body.ServiceIDs))
	for _, id := range body.ServiceIDs {
		svc, ok := s.services[id]
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown service: %s", id))
			return
		}
		services = append(services, svc)
	}

	slot := models.ResolvedSlot{
		StartAt: body.StartAt,
		Segments: []models.AppointmentSegment{{
			ServiceID: services[0].ID,
			StaffID:   body.StaffID,
			StartAt:   body.StartAt,
		}},
	}

	result, err := s.runner.Run(r.Context(), saga.Input{
		Services: services,
		Slot:     slot,
		Customer: body.Customer,
		Note:     body.Note,
	})
	if err != nil {
		s.writeSagaError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"saga_id":     result.SagaID,
		"booking_ref": result.BookingRef,
		"payment_id":  result.Payment.ID,
		"receipt_url": result.Payment.ReceiptURL,
		"amounts":     result.Amounts,
	})
}

func (s *HTTPServer) writeSagaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, saga.ErrSagaInFlight):
		writeError(w, http.StatusConflict, "a booking is already in progress")
	case errors.Is(err, saga.ErrNoServices):
		writeError(w, http.StatusBadRequest, "no services selected")
	case errors.Is(err, context.Canceled):
		writeError(w, 499, "request canceled")
	default:
		step := saga.FailedStep(err)
		if step == "" {
			writeError(w, http.StatusInternalServerError, "booking failed")
			return
		}
		payload := map[string]any{
			"error":       "booking failed",
			"failed_step": step,
		}
		if saga.NeedsSupportContact(err) {
			payload["support_contact"] = true
			payload["error"] = "your card may have been charged; contact the studio before retrying"
		}
		writeJSON(w, http.StatusBadGateway, payload)
	}
}

func (s *HTTPServer) handleLastBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	last, err := s.states.GetLastCompleted(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("fetch last completed booking")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if last == nil {
		writeError(w, http.StatusNotFound, "no completed bookings")
		return
	}

	receipt, err := s.states.GetLastReceipt(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("fetch last receipt")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking":     last,
		"receipt_url": receipt,
	})
}

func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	startDate, err := parseDateParam(r, "start_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := parseDateParam(r, "end_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.audits.ListRange(r.Context(), startDate, endDate)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit range query failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	path, err := s.exporter.AuditRange(records, startDate, endDate)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected YYYY-MM-DD", name)
	}
	return date, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
