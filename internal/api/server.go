// Package api provides the read-only HTTP API for watching a running
// simulation. Responses are JSON unless the client asks for MessagePack.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/signal"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500

	// Requests per client per minute.
	defaultRateLimit = 120

	mimeMsgpack = "application/msgpack"
)

// Source is the simulation state the API reads.
type Source interface {
	Snapshot() engine.Snapshot
}

// Clock reports engine progress.
type Clock interface {
	Tick() uint64
	Running() bool
}

// Server serves the simulation state over HTTP.
type Server struct {
	Sim     Source
	Eng     Clock
	Port    int
	RunID   string       // Journal run id, empty without a journal
	Limiter *RateLimiter // Defaults to defaultRateLimit per minute
}

// Handler returns the API routes wrapped in CORS and rate limiting.
func (s *Server) Handler() http.Handler {
	if s.Limiter == nil {
		s.Limiter = NewRateLimiter(defaultRateLimit, time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/intersections", s.handleIntersections)
	mux.HandleFunc("GET /api/v1/intersection/{id}", s.handleIntersection)
	mux.HandleFunc("GET /api/v1/vehicles", s.handleVehicles)
	mux.HandleFunc("GET /api/v1/drones", s.handleDrones)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	return corsMiddleware(RateLimitMiddleware(s.Limiter, mux))
}

// Start serves the API until ctx is done, then shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// Set GRIDSIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("GRIDSIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	status := map[string]any{
		"name":          "gridsim",
		"tick":          snap.Tick,
		"seed":          snap.Seed,
		"grid_size":     snap.Grid.Size,
		"intersections": len(snap.Intersections),
		"vehicles":      len(snap.Vehicles),
		"drones":        len(snap.Drones),
		"arrived":       snap.Stats.Arrived,
	}
	if s.Eng != nil {
		status["engine_tick"] = s.Eng.Tick()
		status["running"] = s.Eng.Running()
	}
	if s.RunID != "" {
		status["run_id"] = s.RunID
	}
	writeResponse(w, r, status)
}

func (s *Server) handleIntersections(w http.ResponseWriter, r *http.Request) {
	states := s.Sim.Snapshot().Intersections
	if p := r.URL.Query().Get("phase"); p != "" {
		phase, err := signal.ParsePhase(strings.ToUpper(p))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		states = lo.Filter(states, func(st signal.State, _ int) bool { return st.Phase == phase })
	}
	writeResponse(w, r, states)
}

func (s *Server) handleIntersection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := lo.Find(s.Sim.Snapshot().Intersections, func(st signal.State) bool { return st.ID == id })
	if !ok {
		http.Error(w, "intersection not found", http.StatusNotFound)
		return
	}
	writeResponse(w, r, st)
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, s.Sim.Snapshot().Vehicles)
}

func (s *Server) handleDrones(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, s.Sim.Snapshot().Drones)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxEventLimit {
			limit = n
		}
	}

	events := s.Sim.Snapshot().Events

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		events = lo.Filter(events, func(e engine.Event, _ int) bool { return e.Category == category })
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}

	writeResponse(w, r, events[start:])
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, s.Sim.Snapshot().Stats)
}

// writeResponse encodes data as MessagePack when the client accepts it and
// as indented JSON otherwise.
func writeResponse(w http.ResponseWriter, r *http.Request, data any) {
	if strings.Contains(r.Header.Get("Accept"), mimeMsgpack) {
		writeMsgpack(w, data)
		return
	}
	writeJSON(w, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("encode json response", "error", err)
	}
}

func writeMsgpack(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", mimeMsgpack)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(data); err != nil {
		slog.Warn("encode msgpack response", "error", err)
	}
}
