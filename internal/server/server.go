// Package server exposes the trade journal over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/schrute_ledger/internal/assignment"
	"github.com/eddiefleurent/schrute_ledger/internal/fifo"
	"github.com/eddiefleurent/schrute_ledger/internal/ledger"
	"github.com/eddiefleurent/schrute_ledger/internal/models"
	"github.com/eddiefleurent/schrute_ledger/internal/storage"
	"github.com/eddiefleurent/schrute_ledger/internal/util"
)

// Config holds server settings.
type Config struct {
	AuthToken string
	Port      int
}

// Server routes journal operations to the ledger service and assignment
// orchestrator.
type Server struct {
	router       *chi.Mux
	server       *http.Server
	service      *ledger.Service
	orchestrator *assignment.Orchestrator
	logger       *logrus.Logger
	authToken    string
	port         int
}

// NewServer wires the router.
func NewServer(cfg Config, service *ledger.Service, orchestrator *assignment.Orchestrator, logger *logrus.Logger) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		service:      service,
		orchestrator: orchestrator,
		logger:       logger,
		port:         cfg.Port,
		authToken:    cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/positions", s.handleListPositions)
		r.Post("/positions", s.handleCreatePosition)
		r.Get("/positions/{id}", s.handleGetPosition)
		r.Delete("/positions/{id}", s.handleDeletePosition)
		r.Post("/positions/{id}/trades", s.handleAppendTrade)
		r.Get("/positions/{id}/performance", s.handlePerformance)
		r.Get("/positions/{id}/comparison", s.handleComparison)
		r.Post("/assignments/preview", s.handleAssignmentPreview)
		r.Post("/assignments", s.handleAssignmentComplete)
		r.Get("/assignments", s.handleListAssignments)
		r.Get("/stats", s.handleStats)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving; it blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("Starting journal API server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPositions(w http.ResponseWriter, _ *http.Request) {
	positions, err := s.service.ListPositions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

type createPositionRequest struct {
	Option          *models.OptionPlan  `json:"option,omitempty"`
	Symbol          string              `json:"symbol"`
	Strategy        models.StrategyKind `json:"strategy"`
	Thesis          string              `json:"thesis"`
	PlannedEntry    float64             `json:"planned_entry"`
	ProfitTarget    float64             `json:"profit_target"`
	StopLoss        float64             `json:"stop_loss"`
	PlannedQuantity int                 `json:"planned_quantity"`
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := models.NewPosition(req.Symbol, req.Strategy, req.PlannedEntry, req.PlannedQuantity,
		req.ProfitTarget, req.StopLoss, req.Thesis, req.Option)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.CreatePosition(p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetPosition(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePosition(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appendTradeRequest struct {
	Timestamp  time.Time             `json:"timestamp"`
	Direction  models.TradeDirection `json:"direction"`
	Underlying string                `json:"underlying"`
	Price      float64               `json:"price"`
	Quantity   int                   `json:"quantity"`
}

type appendTradeResponse struct {
	Position   *models.Position `json:"position"`
	Comparison interface{}      `json:"comparison,omitempty"`
}

func (s *Server) handleAppendTrade(w http.ResponseWriter, r *http.Request) {
	var req appendTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	trade := models.Trade{
		Direction:  req.Direction,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Timestamp:  req.Timestamp,
		Underlying: req.Underlying,
	}
	p, comparison, err := s.service.AppendTrade(id, trade)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := appendTradeResponse{Position: p}
	if comparison != nil {
		resp.Comparison = comparison
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Performance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roundedPerformance(res))
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.Comparison(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

type assignmentPreviewRequest struct {
	OptionPositionID string `json:"option_position_id"`
	Contracts        int    `json:"contracts"`
}

func (s *Server) handleAssignmentPreview(w http.ResponseWriter, r *http.Request) {
	var req assignmentPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pv, err := s.orchestrator.Initiate(req.OptionPositionID, req.Contracts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pv)
}

func (s *Server) handleAssignmentComplete(w http.ResponseWriter, r *http.Request) {
	var req assignment.CompleteInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	result, err := s.orchestrator.Complete(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.AssignmentEvents(r.URL.Query().Get("position"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.service.Statistics()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// roundedPerformance rounds P&L figures to cents for display; the engine
// itself never rounds.
func roundedPerformance(res fifo.PositionResult) fifo.PositionResult {
	res.RealizedPnL = util.RoundCents(res.RealizedPnL)
	res.UnrealizedPnL = util.RoundCents(res.UnrealizedPnL)
	res.TotalPnL = util.RoundCents(res.TotalPnL)
	for key, group := range res.ByInstrument {
		group.RealizedPnL = util.RoundCents(group.RealizedPnL)
		group.UnrealizedPnL = util.RoundCents(group.UnrealizedPnL)
		group.TotalPnL = util.RoundCents(group.TotalPnL)
		group.AvgOpenCost = util.RoundCents(group.AvgOpenCost)
		res.ByInstrument[key] = group
	}
	return res
}

type errorResponse struct {
	Error      string      `json:"error"`
	Field      string      `json:"field,omitempty"`
	Value      interface{} `json:"value,omitempty"`
	Constraint string      `json:"constraint,omitempty"`
	Hint       string      `json:"hint,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses: validation errors
// are 400 with the offending field spelled out, missing records are 404,
// failed atomic commits are 500 of a distinct shape.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:      ve.Error(),
			Field:      ve.Field,
			Value:      ve.Value,
			Constraint: ve.Constraint,
			Hint:       ve.Hint,
		})
		return
	}
	if errors.Is(err, storage.ErrPositionNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if errors.Is(err, storage.ErrPositionExists) {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	var te *storage.TransactionError
	if errors.As(err, &te) {
		s.logger.WithError(err).Error("atomic commit failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: te.Error()})
		return
	}
	s.logger.WithError(err).Error("request failed")
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
