package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/export"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking engine over JSON.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      *service.BookingService
	exporter *export.Exporter
	server   *http.Server
	auth     *HTTPAuth
	ready    func(context.Context) error
	now      func() time.Time
	log      zerolog.Logger
}

// NewHTTPServer wires the routes. ready backs /readyz and may be nil.
func NewHTTPServer(cfg config.APIConfig, svc *service.BookingService, exporter *export.Exporter, ready func(context.Context) error, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		exporter: exporter,
		auth:     NewHTTPAuth(cfg),
		ready:    ready,
		now:      time.Now,
		log:      *logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(corsMiddleware(srv.auth.Wrap(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/courts", s.handleCourts)
	mux.HandleFunc("GET /api/v1/courts/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/courts/{id}/schedule", s.handleSchedule)
	mux.HandleFunc("GET /api/v1/courts/{id}/conflict", s.handleConflict)
	mux.HandleFunc("POST /api/v1/courts/{id}/quote", s.handleQuote)

	mux.HandleFunc("POST /api/v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("GET /api/v1/reservations/{id}", s.handleGetReservation)
	mux.HandleFunc("GET /api/v1/reservations/{id}/totals", s.handleTotals)
	mux.HandleFunc("POST /api/v1/reservations/{id}/reschedule", s.handleReschedule)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/reservations/{id}/no-show", s.handleNoShow)
	mux.HandleFunc("POST /api/v1/reservations/{id}/check-in", s.handleCheckIn)

	mux.HandleFunc("POST /api/v1/drafts", s.handleSaveDraft)
	mux.HandleFunc("GET /api/v1/drafts/{draftID}", s.handleGetDraft)
	mux.HandleFunc("DELETE /api/v1/drafts/{draftID}", s.handleDiscardDraft)
	mux.HandleFunc("POST /api/v1/drafts/{draftID}/confirm", s.handleConfirmDraft)
	mux.HandleFunc("PUT /api/v1/vouchers/{id}/items", s.handleEditVoucher)
	mux.HandleFunc("POST /api/v1/vouchers/{id}/cancel", s.handleCancelVoucher)

	mux.HandleFunc("POST /api/v1/invoices", s.handleRecordInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/settle", s.handleSettleInvoice)

	mux.HandleFunc("GET /api/v1/facilities/{id}/export", s.handleExport)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg  config.APIConfig
	keys *keyring
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, keys: newKeyring(&cfg)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled || isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			err := a.keys.authenticate(
				strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader())),
				strings.TrimSpace(r.Header.Get(a.keys.extraHeader())),
				requiredPermissionHTTP(r),
			)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.keys.allow(a.clientKey(r)); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// requiredPermissionHTTP gates money movement behind "billing" and
// operations that bypass customer rules behind "staff".
func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/invoices"):
		return permBilling
	case strings.HasSuffix(path, "/no-show"), strings.HasSuffix(path, "/export"):
		return permStaff
	case strings.HasPrefix(path, "/api/v1/vouchers/") && queryBool(r, "override"):
		return permStaff
	}
	return ""
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader())); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-API-Extra")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// writeServiceError maps domain errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		start, end := conflict.Start, conflict.End
		if conflict.Location != nil {
			start, end = start.In(conflict.Location), end.In(conflict.Location)
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"conflict": map[string]any{
				"court_id":       conflict.CourtID,
				"reservation_id": conflict.ReservationID,
				"start":          start,
				"end":            end,
				"taken":          conflict.Taken,
			},
		})
	case errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrVoucherLocked):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
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
