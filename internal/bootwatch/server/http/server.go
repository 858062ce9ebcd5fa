package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/bootwatch/internal/bootwatch/adapter"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/device"
	"github.com/autopeer-io/bootwatch/internal/bootwatch/transport"
	"github.com/autopeer-io/bootwatch/internal/pkg/metrics"
	"github.com/autopeer-io/bootwatch/pkg/log"
	"github.com/autopeer-io/bootwatch/pkg/options"
)

const apiPrefix = "/api/v1"

// DeviceStore is the merged device list served by the API.
type DeviceStore interface {
	List() device.Snapshot
	ForAdapter(adapterID string) (device.Snapshot, bool)
}

// AdapterStatus exposes the diagnostics of one watch adapter.
type AdapterStatus interface {
	Phase() adapter.Phase
	LastDisconnect() (transport.Stage, bool)
	Devices() device.Snapshot
}

// Config wires the server to the rest of the watcher.
type Config struct {
	Options  *options.HttpOptions
	Devices  DeviceStore
	Adapters map[string]AdapterStatus

	// Ready holds named readiness checks reported by /readyz.
	Ready map[string]func() bool
}

// AdapterView is the JSON body of GET /api/v1/adapters/{id}.
type AdapterView struct {
	ID             string          `json:"id"`
	Phase          adapter.Phase   `json:"phase"`
	LastDisconnect string          `json:"lastDisconnect,omitempty"`
	Devices        device.Snapshot `json:"devices"`
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	cfg     Config
}

func NewServer(cfg Config) *Server {
	s := &Server{options: cfg.Options, cfg: cfg}

	s.server = &http.Server{
		Addr:         cfg.Options.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Options.Timeout,
		WriteTimeout: cfg.Options.Timeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// API routes live on the root router: a method mismatch on a subrouter
	// answers 404 instead of 405.
	r.HandleFunc(apiPrefix+"/devices", s.handleDevices).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/adapters", s.handleAdapters).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/adapters/{id}", s.handleAdapter).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/adapters/{id}/devices", s.handleAdapterDevices).Methods(http.MethodGet)

	return r
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.cfg.Ready))
	for name := range s.cfg.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	var failing []string
	for _, name := range names {
		if !s.cfg.Ready[name]() {
			failing = append(failing, name)
		}
	}

	if len(failing) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "not ready: %s", strings.Join(failing, ", "))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Devices.List())
}

func (s *Server) handleAdapters(w http.ResponseWriter, _ *http.Request) {
	ids := make([]string, 0, len(s.cfg.Adapters))
	for id := range s.cfg.Adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleAdapter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, ok := s.cfg.Adapters[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("adapter %q not found", id))
		return
	}

	view := AdapterView{ID: id, Phase: a.Phase(), Devices: a.Devices()}
	if stage, ok := a.LastDisconnect(); ok {
		view.LastDisconnect = stage.String()
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAdapterDevices(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.cfg.Adapters[id]; !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("adapter %q not found", id))
		return
	}

	snap, _ := s.cfg.Devices.ForAdapter(id)
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(err, "Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) Start(ctx context.Context) error {
	network := s.options.Network
	if network == "" {
		network = "tcp"
	}

	lis, err := net.Listen(network, s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http addr %s: %w", s.server.Addr, err)
	}

	log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
