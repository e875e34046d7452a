package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a Hub over HTTP.
type Server struct {
	hub      *Hub
	cfg      *config.RelayConfig
	upgrader websocket.Upgrader
}

// NewServer wires the HTTP handlers to hub.
func NewServer(hub *Hub, cfg *config.RelayConfig) *Server {
	s := &Server{hub: hub, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

// Handler returns the relay's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWs)
	mux.HandleFunc("/health", healthCheckHandler)
	mux.HandleFunc("/room", s.serveNewRoom)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling relay is healthy."))
}

// serveNewRoom hands out an unused room ID.
func (s *Server) serveNewRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := s.hub.NewRoomID(r.Context())
	if err != nil {
		slog.Error("failed to generate room id", "err", err)
		http.Error(w, "could not allocate room", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"room_id": id})
}

// serveWs upgrades the request and starts the client's pumps.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("failed to upgrade connection", "err", err)
		return
	}

	client := newClient(s.hub, conn, uuid.NewString(), s.cfg.SendBuffer)
	if !s.hub.registerClient(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s.cfg.ReadLimit)
}

// Run starts a hub and serves it on cfg.Addr() until ctx is cancelled, then
// shuts the HTTP server down gracefully.
func Run(ctx context.Context, cfg *config.RelayConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := NewHub()
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewServer(hub, cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting signaling relay", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them when its context ends.
	cancel()
	<-hubDone

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	slog.Info("signaling relay stopped")
	return nil
}
