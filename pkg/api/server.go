package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type ServerConfig struct {
	ListenAddr     string
	AllowedOrigins []string // "*" allows any origin
	MaxInFlight    int64    // concurrent frames per connection
	RequestTimeout time.Duration
}

// Server accepts command frames over WebSocket and answers each on the
// connection it came from.
type Server struct {
	cfg      ServerConfig
	bridge   OrderBridge
	assets   AssetResolver
	router   *mux.Router
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer creates a new command server
func NewServer(cfg ServerConfig, b OrderBridge, assets AssetResolver, logger *zap.SugaredLogger) *Server {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		bridge:  b,
		assets:  assets,
		router:  mux.NewRouter(),
		hub:     NewHub(),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	// Root path for clients that connect to ws://host:8080 with no path.
	s.router.HandleFunc("/", s.handleWebSocket)
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves on cfg.ListenAddr until ctx is cancelled, then shuts down:
// stop accepting, cancel in-flight frames and close open connections.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(shutdownCtx, srv)
	}()

	s.logger.Infow("command_server_starting", "addr", s.cfg.ListenAddr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}

// Shutdown stops srv (if any), cancels in-flight frames and closes all WebSocket clients.
func (s *Server) Shutdown(ctx context.Context, srv *http.Server) {
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warnw("http_shutdown_failed", "err", err)
		}
	}
	s.cancel()
	s.hub.CloseAll()
	s.logger.Infow("command_server_stopped")
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser client
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Connections: s.hub.Len()})
}
