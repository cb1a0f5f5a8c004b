package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexview/pkg/app/dex"
	"github.com/uhyunpark/dexview/pkg/app/views"
)

// Views is the read side the server exposes. *dex.App implements it.
type Views interface {
	OrderBook() (views.OrderBook, error)
	TradeTape() ([]views.DecoratedOrder, error)
	AccountFilled(account common.Address) ([]views.DecoratedOrder, error)
	AccountOpen(account common.Address) ([]views.DecoratedOrder, error)
	Candles() (views.CandleSeries, error)
	Status() dex.Status
}

// Server handles REST API and WebSocket connections
type Server struct {
	views   Views
	router  *mux.Router
	hub     *Hub
	origins []string
	log     *zap.SugaredLogger
}

func NewServer(v Views, origins []string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		views:   v,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		origins: origins,
		log:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market views
	api.HandleFunc("/orderbook", s.handleGetOrderBook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/candles", s.handleGetCandles).Methods("GET")

	// Account views
	api.HandleFunc("/accounts/{address}/trades", s.handleGetAccountTrades).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")

	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Infow("api_listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.views.OrderBook()
	if err != nil {
		s.respondViewError(w, err)
		return
	}
	respondJSON(w, book)
}

// handleGetTrades serves the tape newest first; ?limit=N keeps the N newest.
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	tape, err := s.views.TradeTape()
	if err != nil {
		s.respondViewError(w, err)
		return
	}
	if limit > 0 && len(tape) > limit {
		tape = tape[:limit]
	}
	respondJSON(w, tape)
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	series, err := s.views.Candles()
	if err != nil {
		s.respondViewError(w, err)
		return
	}
	respondJSON(w, series)
}

func (s *Server) handleGetAccountTrades(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(w, r)
	if !ok {
		return
	}
	trades, err := s.views.AccountFilled(account)
	if err != nil {
		s.respondViewError(w, err)
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(w, r)
	if !ok {
		return
	}
	orders, err := s.views.AccountOpen(account)
	if err != nil {
		s.respondViewError(w, err)
		return
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.views.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{Status: "ok", Loaded: s.views.Status().Loaded})
}

// BroadcastUpdate pushes a recomputation to subscribed WebSocket clients.
// View channels are only pushed once the views are loaded.
func (s *Server) BroadcastUpdate(up dex.Update) {
	if up.Status.Loaded {
		s.hub.BroadcastToChannel(ChannelOrderBook, up.OrderBook)
		s.hub.BroadcastToChannel(ChannelTrades, up.Trades)
		s.hub.BroadcastToChannel(ChannelCandles, up.Candles)
	}
	s.hub.BroadcastToChannel(ChannelStatus, up.Status)
}

// ==============================
// Helper Functions
// ==============================

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid limit", raw)
		return 0, false
	}
	return n, true
}

func (s *Server) respondViewError(w http.ResponseWriter, err error) {
	if errors.Is(err, dex.ErrNotLoaded) {
		respondError(w, http.StatusServiceUnavailable, "not_loaded", "initial backfill has not completed")
		return
	}
	s.log.Errorw("view_failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
