package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"axalportal/internal/chain"
	"axalportal/internal/config"
	"axalportal/internal/hmacauth"
	"axalportal/internal/idempotency"
	"axalportal/internal/portal"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const apiPrefix = "/api/v1"

const (
	headerIdempotencyKey = "X-Idempotency-Key"
	headerRequestID      = "X-Request-Id"
	headerReplayed       = "X-Idempotent-Replay"
)

type Server struct {
	cfg         *config.AppConfig
	session     *portal.Session
	store       idempotency.Store
	hmac        *hmacauth.Verifier
	httpServer  *http.Server
	metrics     *metricsRegistry
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

// NewServer wires the portal session over gw and mounts the page and the
// JSON API. Call Start to load the initial balance and serve.
func NewServer(cfg *config.AppConfig, gw chain.Gateway, store idempotency.Store) *Server {
	metrics := newMetricsRegistry()

	session := portal.NewSession(gw, portal.Options{
		Customer:       cfg.Portal.CustomerAddress,
		ExplorerTxURL:  cfg.Portal.ExplorerTxURL,
		TokenSymbol:    cfg.Portal.TokenSymbol,
		ReconcileDelay: cfg.Portal.ReconcileDelay,
		Increment:      cfg.Portal.OptimisticIncrement,
		APY:            cfg.Portal.DefaultAPY,
		TVL:            cfg.Portal.DefaultTVL,
		Observer:       metrics,
	})

	s := &Server{
		cfg:     cfg,
		session: session,
		store:   store,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.APISecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		metrics: metrics,
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := gw.(chain.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Routes are registered on one router with full paths. A PathPrefix
// subrouter answers 404 instead of 405 on a method mismatch.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	// Every route that changes state or sends a transaction is signed once
	// PORTAL_API_SECRET is set, the form routes included.
	signed := func(h http.HandlerFunc) http.Handler { return s.hmac.Middleware(h) }

	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.Handle("/thresholds", signed(s.handleThresholdsForm)).Methods(http.MethodPost)
	r.Handle("/claim", signed(s.handleClaimForm)).Methods(http.MethodPost)

	r.HandleFunc(apiPrefix+"/state", s.handleState).Methods(http.MethodGet)
	r.Handle(apiPrefix+"/thresholds", signed(s.handleThresholds)).Methods(http.MethodPost)
	r.Handle(apiPrefix+"/claim", signed(s.handleClaim)).Methods(http.MethodPost)
	r.Handle(apiPrefix+"/balance/refresh", signed(s.handleRefresh)).Methods(http.MethodPost)
	r.Handle(apiPrefix+"/metrics", s.metrics.handler()).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
}

// Start runs the initial balance read, then serves until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := s.session.Refresh(ctx); err != nil {
		log.Printf("initial balance read failed: %v", err)
	}
	cancel()

	log.Printf("portal listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server and tears down the session, cancelling any
// pending reconciliation read.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.session.Close()
	return err
}

type thresholdsRequest struct {
	APY uint64 `json:"apy"`
	TVL uint64 `json:"tvl"`
}

type claimResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Balance     string `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	var payload thresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json payload", Code: "bad_request"})
		return
	}
	if err := s.session.SetThresholds(payload.APY, payload.TVL); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "remote_call"})
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))

	if key != "" {
		existing, err := s.store.Get(ctx, key)
		if err != nil {
			log.Printf("idempotency lookup error: %v", err)
		}
		if existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerReplayed, "true")
			w.WriteHeader(existing.StatusCode)
			_, _ = w.Write(existing.Body)
			s.metrics.ClaimFinished("cached")
			return
		}
	}

	receipt, err := s.session.Claim(detached(r))
	var verr *portal.ValidationError
	switch {
	case errors.Is(err, portal.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "busy"})
		return
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Code: "validation"})
		return
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: portal.FailureMessage(err), Code: "remote_call"})
		return
	}

	view := s.session.View()
	b, _ := json.Marshal(claimResponse{
		Status:      "claimed",
		Message:     view.Status,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		ExplorerURL: portal.ExplorerURL(s.cfg.Portal.ExplorerTxURL, receipt.TxHash),
		Balance:     view.Balance,
	})

	if key != "" {
		record := idempotency.NewRecord(http.StatusOK, b, receipt.TxHash, s.cfg.Service.IdempotencyWindow)
		if err := s.store.Save(context.WithoutCancel(ctx), key, record); err != nil {
			log.Printf("idempotency save error: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	st := s.session.State()
	resp := struct {
		Status       string      `json:"status"`
		RPC          interface{} `json:"rpc"`
		Database     interface{} `json:"database"`
		ClaimBusy    bool        `json:"claim_busy"`
		BalancePhase string      `json:"balance_phase"`
	}{
		Status:       status,
		RPC:          rpcInfo,
		Database:     dbInfo,
		ClaimBusy:    st.Busy,
		BalancePhase: string(st.Phase),
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// detached keeps request values but drops cancellation: an in-flight claim
// runs to completion even if the client goes away.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}
