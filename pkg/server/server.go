// Package server exposes the dashboard and the wallet session over HTTP and
// pushes watcher events to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"stakedash/pkg/session"
	"stakedash/pkg/wallet"
	"stakedash/pkg/watcher"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is the part of the wallet session the API drives.
type Session interface {
	Connect(ctx context.Context) (common.Address, error)
	Disconnect()
	Snapshot() session.Snapshot
}

type Server struct {
	watcher *watcher.Watcher
	session Session
	log     *log.Logger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

func NewServer(w *watcher.Watcher, s Session, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	srv := &Server{
		watcher: w,
		session: s,
		log:     logger.With("component", "server"),
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) Start(port int) error {
	go s.listenToWatcher()

	s.log.Info("API server listening", "port", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.mux)
}

func (s *Server) status() map[string]interface{} {
	return map[string]interface{}{
		"session":   s.session.Snapshot(),
		"dashboard": s.watcher.GetDashboard(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// errorStatus maps a wallet failure kind to an HTTP status.
func errorStatus(err error) int {
	switch wallet.KindOf(err) {
	case wallet.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case wallet.KindUserRejected:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	account, err := s.session.Connect(r.Context())
	if err != nil {
		s.log.Warn("connect failed", "kind", wallet.KindOf(err), "err", err)
		writeJSON(w, errorStatus(err), map[string]interface{}{
			"error":   err.Error(),
			"kind":    wallet.KindOf(err).String(),
			"session": s.session.Snapshot(),
		})
		return
	}
	s.log.Info("wallet connected", "account", account.Hex())
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": s.session.Snapshot()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Disconnect()
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": s.session.Snapshot()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.watcher.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// The initial write shares the lock with broadcast so a connection
	// never has two concurrent writers.
	s.mu.Lock()
	s.clients[conn] = true
	err = conn.WriteJSON(map[string]interface{}{"type": "initial", "data": s.status()})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()
	if err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
