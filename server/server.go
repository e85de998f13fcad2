// Package server exposes the reward engine's command and query operations
// over HTTP. It is the delivery vehicle for the engine only: authentication,
// catalog, and the rest of the platform surface live elsewhere.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rewardsd/engine"
	"rewardsd/models"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine *engine.Engine
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine *engine.Engine
	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	srv := &Server{engine: cfg.Engine}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Post("/accounts", s.CreateAccount)
		api.Post("/ledger/record", s.RecordEntry)
		api.Get("/accounts/{id}/balance", s.GetBalance)
		api.Get("/accounts/{id}/ledger", s.GetLedger)
		api.Get("/accounts/{id}/stepup-rewards", s.GetStepUpRewards)
		api.Get("/accounts/{id}/infinity-cycles", s.GetInfinityCycles)
		api.Get("/accounts/{id}/commissions", s.GetReferralCommissions)
		api.Get("/accounts/{id}/ripple-rewards", s.GetRippleRewards)
		api.Get("/merchants/{id}/vouchers", s.GetShoppingVouchers)
	})

	return r
}

// CreateAccount registers a customer or merchant wallet.
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role       string     `json:"role"`
		Region     string     `json:"region"`
		ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
		Tier       string     `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Role != "" && req.Role != models.RoleCustomer && req.Role != models.RoleMerchant {
		http.Error(w, "role must be customer or merchant", http.StatusBadRequest)
		return
	}

	account := models.Account{
		Role:         req.Role,
		Region:       strings.ToUpper(strings.TrimSpace(req.Region)),
		ReferredByID: req.ReferredBy,
		Tier:         req.Tier,
	}
	if err := s.engine.CreateAccount(r.Context(), &account); err != nil {
		http.Error(w, "failed to create account", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

// RecordEntry applies one point movement plus its full reward cascade.
// The idempotency key comes from the Idempotency-Key header or the body;
// a replayed key answers 200 with the original entry instead of 201.
func (s *Server) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID      uuid.UUID `json:"account_id"`
		Amount         int64     `json:"amount"`
		Kind           string    `json:"kind"`
		SourceRef      string    `json:"source_ref"`
		IdempotencyKey string    `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	result, err := s.engine.Record(r.Context(), engine.RecordCommand{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Kind:           models.EntryKind(req.Kind),
		SourceRef:      req.SourceRef,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.handleEngineError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	s.writeJSON(w, status, map[string]any{
		"entry":    result.Entry,
		"balance":  result.Balance,
		"replayed": result.Replayed,
	})
}

// GetBalance returns the account's current point balance.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	balance, err := s.engine.GetBalance(r.Context(), accountID)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// GetLedger pages through the account's entries, newest first.
func (s *Server) GetLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := s.engine.GetLedger(r.Context(), accountID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries":     page.Entries,
		"next_cursor": page.NextCursor,
	})
}

// GetStepUpRewards lists milestone rewards for the account.
func (s *Server) GetStepUpRewards(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rewards, err := s.engine.GetStepUpRewards(r.Context(), accountID)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rewards)
}

// GetInfinityCycles lists cycle awards for the account in cycle order.
func (s *Server) GetInfinityCycles(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	cycles, err := s.engine.GetInfinityCycles(r.Context(), accountID)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cycles)
}

// GetReferralCommissions lists commissions the account earned as referrer.
func (s *Server) GetReferralCommissions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	commissions, err := s.engine.GetReferralCommissions(r.Context(), accountID)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commissions)
}

// GetRippleRewards lists ripple bonuses the account earned as referrer.
func (s *Server) GetRippleRewards(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ripples, err := s.engine.GetRippleRewards(r.Context(), accountID)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ripples)
}

// GetShoppingVouchers lists vouchers distributed to the merchant.
func (s *Server) GetShoppingVouchers(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	vouchers, err := s.engine.GetShoppingVouchers(r.Context(), merchantID)
	if err != nil {
		s.handleEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vouchers)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrAccountNotFound):
		http.Error(w, "account not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusConflict)
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrUnknownKind),
		errors.Is(err, engine.ErrMissingIdempotency),
		errors.Is(err, engine.ErrReservedKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrRetryExhausted):
		http.Error(w, "transient storage conflict, retry", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
