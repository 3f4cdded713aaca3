// Package server is the ingest boundary and observer fan-out for the
// vivarium daemon.
//
// Hook scripts POST events here; the engine folds them into the activity
// graph and session roster; the hub pushes fresh snapshots to every
// connected observer. Malformed input is answered with 4xx and never
// crashes the daemon.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/broadcast"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/gitscore"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/registry"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/settings"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/telemetry"
)

// Periodic maintenance intervals. Eviction and waiting-for-input latency
// are bounded by sweepInterval, not instantaneous — both are deliberately
// poll-driven.
const (
	sweepInterval   = 10 * time.Second
	persistInterval = 30 * time.Second
)

const maxBodyBytes = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Observers are local viewers; the daemon binds loopback by default.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server owns the HTTP surface, the engine, and the observer hub.
type Server struct {
	cfg        settings.Settings
	engine     *Engine
	hub        *broadcast.Hub
	telemetry  *telemetry.Client
	instanceID string

	httpSrv  *http.Server
	lnMu     sync.Mutex
	listener net.Listener
}

// New builds a server from settings. projectRoot must be absolute.
func New(cfg settings.Settings, tel *telemetry.Client) *Server {
	store := registry.NewStore(settings.StateDir(cfg.ProjectRoot))
	git := gitscore.New(cfg.ProjectRoot, gitscore.DefaultTTL)
	return &Server{
		cfg:        cfg,
		engine:     NewEngine(cfg.ProjectRoot, store, git),
		hub:        broadcast.NewHub(),
		telemetry:  tel,
		instanceID: telemetry.InstanceID(),
	}
}

// Engine exposes the state engine for tests.
func (s *Server) Engine() *Engine { return s.engine }

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/activity", s.activityHandler)
	mux.HandleFunc("/api/agent", s.agentHandler)
	mux.HandleFunc("/api/graph", s.graphHandler)
	mux.HandleFunc("/api/agents", s.agentsHandler)
	mux.HandleFunc("/api/hot-folders", s.hotFoldersHandler)
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/git-refresh", s.gitRefreshHandler)
	mux.HandleFunc("/api/reset", s.resetHandler)
	mux.HandleFunc("/ws", s.wsHandler)
	return mux
}

// Start binds the listen address, restores persisted state, and serves
// until ctx is canceled. Failure to bind is the one fatal condition.
func (s *Server) Start(ctx context.Context) error {
	logCtx := logging.WithComponent(ctx, "server")

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.listener = ln
	s.lnMu.Unlock()

	s.engine.Restore(ctx, time.Now())

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.runTimers(ctx)

	s.telemetry.Capture("daemon_started", map[string]any{"addr": s.cfg.ListenAddr})
	logging.Info(logCtx, "daemon listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("project_root", s.cfg.ProjectRoot),
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Final persistence pass so a clean shutdown never loses the roster.
	s.engine.Persist(ctx, time.Now())
	s.telemetry.Capture("daemon_stopped", nil)
	return nil
}

// Addr returns the bound listen address, for tests using ":0".
func (s *Server) Addr() string {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) runTimers(ctx context.Context) {
	sweep := time.NewTicker(sweepInterval)
	persist := time.NewTicker(persistInterval)
	ping := time.NewTicker(broadcast.PingInterval)
	defer sweep.Stop()
	defer persist.Stop()
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-sweep.C:
			if s.engine.Sweep(ctx, now) {
				s.hub.Publish(ctx, KindAgents, s.engine.Roster())
			}
		case now := <-persist.C:
			s.engine.Persist(ctx, now)
		case <-ping.C:
			s.hub.PingAll(ctx)
		}
	}
}

func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var ev ActivityEvent
	if !decodeBody(w, r, &ev) {
		return
	}

	ctx := r.Context()
	if s.engine.ApplyActivity(ctx, ev) {
		s.hub.Publish(ctx, KindGraph, s.engine.GraphSnapshot())
		s.hub.Publish(ctx, KindAgents, s.engine.Roster())
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) agentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var ev AgentEvent
	if !decodeBody(w, r, &ev) {
		return
	}

	ctx := r.Context()
	if s.engine.ApplyAgentEvent(ctx, ev) {
		s.hub.Publish(ctx, KindAgents, s.engine.Roster())
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.GraphSnapshot())
}

func (s *Server) agentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Roster())
}

func (s *Server) hotFoldersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.HotFolders(r.Context()))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	includeRecent := r.URL.Query().Get("recent") == "1"
	h := s.engine.HealthInfo(s.instanceID, includeRecent)
	h.Observers = s.hub.Count()
	writeJSON(w, http.StatusOK, h)
}

// gitRefreshHandler is the out-of-band post-commit notification: it expires
// the git score cache early so the next read recomputes.
func (s *Server) gitRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.engine.git.Invalidate()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.engine.ResetGraph()
	ctx := r.Context()
	s.hub.Publish(ctx, KindGraph, s.engine.GraphSnapshot())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	ctx := context.WithoutCancel(r.Context())
	id := s.hub.Add(ctx, conn)

	// New observers get the full state immediately; after that they only
	// see publishes.
	s.hub.Send(ctx, id, KindGraph, s.engine.GraphSnapshot())
	s.hub.Send(ctx, id, KindAgents, s.engine.Roster())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
