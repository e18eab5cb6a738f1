// Package api serves the analytics reports over HTTP for the dashboard.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/analytics"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/version"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"go.uber.org/zap"
)

// ClientVersionHeader carries the version a dashboard was built against.
const ClientVersionHeader = "X-Ledger-Client-Version"

// HealthChecker reports whether the database answers.
type HealthChecker interface {
	IsAlive(ctx context.Context) bool
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string      `json:"error"`
	Code  int         `json:"code"`
	Kind  errors.Kind `json:"kind"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Version  string `json:"version"`
}

// PnLResponse is the body of GET /api/v1/pnl.
type PnLResponse struct {
	Days     *int    `json:"days"`
	TotalPnL float64 `json:"total_pnl"`
}

type Server struct {
	reporter analytics.Reporter
	health   HealthChecker
	logger   *logger.Logger
	router   *mux.Router

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(reporter analytics.Reporter, health HealthChecker, log *logger.Logger) *Server {
	s := &Server{
		reporter:   reporter,
		health:     health,
		logger:     log.Named("api"),
		router:     mux.NewRouter(),
		httpServer: nil,
		listener:   nil,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.checkClientVersion)
	v1.HandleFunc("/trades", s.handleTrades).Methods("GET")
	v1.HandleFunc("/pnl", s.handlePnL).Methods("GET")
	v1.HandleFunc("/win-loss", s.handleWinLoss).Methods("GET")
	v1.HandleFunc("/returns", s.handleReturns).Methods("GET")
	v1.HandleFunc("/summary", s.handleSummary).Methods("GET")

	return s
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeConnectionFailed, err, "failed to listen on %s", address)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("API listening", zap.String("address", s.Address()))

	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Address returns the address the server is listening on.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	alive := s.health.IsAlive(r.Context())

	status, code := "ok", http.StatusOK
	if !alive {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, HealthResponse{Status: status, Database: alive, Version: version.GetVersion()})
}

// checkClientVersion rejects clients whose major or minor version differs from the ledger.
// Requests without the header are served.
func (s *Server) checkClientVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if client := r.Header.Get(ClientVersionHeader); client != "" {
			if err := version.CheckCompatibility(version.GetVersion(), client); err != nil {
				s.writeError(w, err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	trades, err := s.reporter.TradeHistory(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	total, err := s.reporter.TotalPnL(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := PnLResponse{Days: nil, TotalPnL: total}
	if days.IsSome() {
		n := days.Unwrap()
		response.Days = &n
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleWinLoss(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ratio, err := s.reporter.WinLossRatio(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ratio)
}

func (s *Server) handleReturns(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	points, err := s.reporter.CumulativeReturns(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	summary, err := s.reporter.Summary(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// parseDays reads the optional ?days=N window. Range checks are left to the reporter.
func parseDays(r *http.Request) (optional.Option[int], error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return optional.None[int](), nil
	}

	days, err := strconv.Atoi(raw)
	if err != nil {
		return optional.None[int](), errors.Wrapf(errors.ErrCodeInvalidWindow, err, "days must be an integer, got %q", raw)
	}

	return optional.Some(days), nil
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch {
	case errors.IsValidationError(err), errors.IsInvalidOrderStateError(err):
		return http.StatusBadRequest
	case errors.HasCode(err, errors.ErrCodeDataNotFound):
		return http.StatusNotFound
	case errors.IsConnectionError(err):
		return http.StatusServiceUnavailable
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}

	s.writeJSON(w, code, ErrorResponse{
		Error: err.Error(),
		Code:  int(errors.GetCode(err)),
		Kind:  errors.KindOf(err),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}
