// Package server exposes the read-only status surface: the current sensor
// states, the latest raw snapshots and the stored logins (without secrets).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/refresh"
	"github.com/csgstat/csgstat/pkg/sensor"
	"github.com/csgstat/csgstat/pkg/storage"
	"github.com/csgstat/csgstat/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server handles the HTTP status API for the refresh service.
type Server struct {
	storage  storage.Database
	service  *refresh.Service
	sensors  *sensor.Registry
	registry *prometheus.Registry

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, svc *refresh.Service, sensors *sensor.Registry, reg *prometheus.Registry) *Server {
	srv := &Server{
		storage:  db,
		service:  svc,
		sensors:  sensors,
		registry: reg,
	}

	listenAddr := lflag.String("http-listen", ":8080", "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})
	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sensors", s.handleListSensors)
	mux.HandleFunc("GET /api/sensors/{id}", s.handleGetSensor)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return gziphandler.GzipHandler(mux)
}

// Run starts the HTTP server and blocks until ctx is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sensors.Sensors())
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sen, ok := s.sensors.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, "unknown sensor", http.StatusNotFound)
		return
	}
	writeJSON(w, sen)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if username := r.URL.Query().Get("username"); username != "" {
		snap, ok := s.service.Latest(r.Context(), username)
		if !ok {
			writeJSONError(w, "no snapshot for login", http.StatusNotFound)
			return
		}
		writeJSON(w, snap)
		return
	}
	writeJSON(w, s.service.Snapshots())
}

// accountInfo is a ConfigEntry stripped of its password and auth token.
type accountInfo struct {
	Username  string                              `json:"username"`
	LoginType types.LoginType                     `json:"login_type"`
	Accounts  map[string]types.ElectricityAccount `json:"accounts"`
	Settings  types.Settings                      `json:"settings"`
	UpdatedAt int64                               `json:"updated_at"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.storage.ListEntries(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to list entries", slog.Any("error", err))
		writeJSONError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	infos := make([]accountInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, accountInfo{
			Username:  entry.Username,
			LoginType: entry.LoginType,
			Accounts:  entry.Accounts,
			Settings:  entry.Settings.Normalize(),
			UpdatedAt: entry.UpdatedAt,
		})
	}
	writeJSON(w, infos)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}
