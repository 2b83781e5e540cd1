package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/task"
)

const pruneTimeout = 10 * time.Minute

// PruneRunner starts a prune. *task.PruneAdapters satisfies it.
type PruneRunner interface {
	PruneAs(ctx context.Context, trigger, guildID string, purgeMissingGuilds bool) (int, error)
}

// Health is the body of /healthz.
type Health struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Uptime    string `json:"uptime"`
	Buttons   int    `json:"stored_buttons"`
}

// Options are the collaborators the endpoints use. Any may be nil.
type Options struct {
	Pruner PruneRunner
	// Connected reports whether the gateway session is up.
	Connected func() bool
	// StoredButtons counts rows in the button table.
	StoredButtons func() (int, error)
	Gatherer      prometheus.Gatherer
}

// Server exposes metrics, health and a prune trigger for a running bot.
type Server struct {
	addr       string
	opts       Options
	started    time.Time
	httpServer *http.Server
	listener   net.Listener
}

// NewServer returns nil if addr is empty.
func NewServer(addr string, opts Options) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	s := &Server{
		addr:    addr,
		opts:    opts,
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/prune", s.handlePrune)

	return s
}

// Handler returns the mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start opens the control server listening socket.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := Health{Status: "ok", Connected: true, Uptime: time.Since(s.started).Round(time.Second).String()}
	status := http.StatusOK
	if s.opts.Connected != nil && !s.opts.Connected() {
		h.Connected = false
		h.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if s.opts.StoredButtons != nil {
		n, err := s.opts.StoredButtons()
		if err != nil {
			h.Status = "degraded"
			status = http.StatusServiceUnavailable
			log.DatabaseLogger().Warn("Health check could not count buttons", "err", err)
		}
		h.Buttons = n
	}
	writeJSON(w, status, h)
}

// handlePrune runs a prune: POST /v1/prune?guild_id=<id>&purge_missing=true.
// Without guild_id the prune is global.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Pruner == nil {
		http.Error(w, "prune unavailable", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	guildID := strings.TrimSpace(q.Get("guild_id"))
	purge := false
	if raw := q.Get("purge_missing"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid purge_missing: %v", err), http.StatusBadRequest)
			return
		}
		purge = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), pruneTimeout)
	defer cancel()
	removed, err := s.opts.Pruner.PruneAs(ctx, "control", guildID, purge)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, task.ErrDuplicateTask) {
			status = http.StatusConflict
		}
		http.Error(w, fmt.Sprintf("prune failed: %v", err), status)
		return
	}

	log.Audit("Prune requested through control server", "scope", task.PruneScope(guildID), "purgeMissing", purge, "removed", removed, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"scope":   task.PruneScope(guildID),
		"removed": removed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ApplicationLogger().Error("Failed to encode control response", "err", err)
	}
}
