package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/config"
	"github.com/nextlevelbuilder/goforge/internal/coordinator"
	"github.com/nextlevelbuilder/goforge/internal/loop"
	"github.com/nextlevelbuilder/goforge/internal/store"
	"github.com/nextlevelbuilder/goforge/pkg/protocol"
)

// Server terminates WebSocket sessions and fans router emissions addressed
// to the user out to them.
type Server struct {
	cfg      *config.Config
	coord    *coordinator.Coordinator
	loops    *loop.Manager
	recorder *store.Recorder
	log      *slog.Logger

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	mu       sync.RWMutex
	sessions map[string]*Session

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(cfg *config.Config, coord *coordinator.Coordinator, loops *loop.Manager, recorder *store.Recorder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		coord:    coord,
		loops:    loops,
		recorder: recorder,
		log:      log,
		sessions: make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)

	coord.SetUserListener(s.dispatchUserMessage)
	return s
}

// checkOrigin validates the Origin header against the allow list. No
// configured origins means allow all; empty Origin (non-browser clients)
// is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	s.log.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions/", s.handleSessionCancel)
	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.log.Info("gateway.starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.rateLimiter.Allow(host) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("gateway.upgrade_failed", "error", err)
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		projectID = s.cfg.Project.DefaultName
	}

	session := NewSession(conn, projectID, s.loops, s.recorder, s.log)
	s.register(session)
	defer func() {
		s.unregister(session)
		conn.Close()
	}()

	session.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

// handleSessionCancel serves POST /sessions/{id}/cancel, the out-of-band
// cancellation endpoint.
func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, ok := strings.CutSuffix(path, "/cancel")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	session, exists := s.sessions[id]
	s.mu.RUnlock()
	if !exists {
		http.NotFound(w, r)
		return
	}

	if err := session.Cancel(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// dispatchUserMessage delivers a user-addressed message to the session whose
// bound request produced it, preserving router delivery order. Untagged
// messages (injected outside the gateway) fan out to every session; tagged
// messages whose session has disconnected are dropped.
func (s *Server) dispatchUserMessage(msg *bus.AgentMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if msg.RequestID != "" {
		for _, session := range s.sessions {
			if session.BoundRequest() == msg.RequestID {
				session.HandleUserMessage(msg)
				return
			}
		}
		s.log.Debug("gateway.orphaned_message",
			"request_id", msg.RequestID, "task_type", msg.TaskType)
		return
	}
	for _, session := range s.sessions {
		session.HandleUserMessage(msg)
	}
}

func (s *Server) register(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	s.log.Info("gateway.session_connected", "session_id", session.ID, "project_id", session.ProjectID)
}

func (s *Server) unregister(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session.ID)
	s.log.Info("gateway.session_disconnected", "session_id", session.ID)
}

// StartTestServer listens on a random local port and returns the address
// and a start function. Used by integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions/", s.handleSessionCancel)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}
	return addr, start
}
