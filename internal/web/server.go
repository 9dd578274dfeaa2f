// Package web exposes the REST and WebSocket surface: document
// registration, page analysis, graph reads and live protocol events.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/skarlatos/foliograph/internal/analysis"
	"github.com/skarlatos/foliograph/internal/bus"
	"github.com/skarlatos/foliograph/internal/config"
	"github.com/skarlatos/foliograph/internal/coordinator"
	"github.com/skarlatos/foliograph/internal/store"
)

type Server struct {
	store     *store.Store
	svc       *analysis.Service
	coord     *coordinator.Coordinator
	bus       *bus.Bus
	nats      *bus.Client
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time
}

func NewServer(st *store.Store, svc *analysis.Service, coord *coordinator.Coordinator, b *bus.Bus, cfg config.WebConfig, version string) *Server {
	return &Server{
		store:     st,
		svc:       svc,
		coord:     coord,
		bus:       b,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handler builds the full route table wrapped in the middleware stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.getHealth)
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)

	return s.withMiddleware(mux)
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Relay bus events to connected WebSocket clients
	s.subscribeEvents()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Bearer token for API routes; health stays open for probes
		if s.cfg.Auth != "" && strings.HasPrefix(r.URL.Path, "/api/") {
			if !s.checkAuth(r) {
				jsonError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkAuth(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token == s.cfg.Auth
	}
	// WebSocket clients can't set headers from a browser; accept the token
	// as a query parameter there.
	if r.URL.Path == "/api/ws" {
		return r.URL.Query().Get("token") == s.cfg.Auth
	}
	return false
}

func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	client, err := bus.NewClient(s.bus)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	relay := func(msg *nats.Msg) {
		var event bus.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("invalid bus event payload", "error", err)
			return
		}
		s.hub.Broadcast(event)
	}
	if _, err := client.Subscribe(bus.TopicEventsAll, relay); err != nil {
		slog.Error("subscribe events", "error", err)
	}
	if _, err := client.Subscribe(bus.TopicPacketsAll, relay); err != nil {
		slog.Error("subscribe packets", "error", err)
	}
}
