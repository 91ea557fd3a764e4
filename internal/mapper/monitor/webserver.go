package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/gridmapper/internal/httputil"
	"github.com/banshee-data/gridmapper/internal/mapper"
	"github.com/banshee-data/gridmapper/internal/occupancy"
	"github.com/banshee-data/gridmapper/internal/version"
)

// MapNode is the part of *mapper.Node the web server drives.
type MapNode interface {
	Status() mapper.Status
	SetMappingEnabled(enabled bool) bool
	MappingEnabled() bool
	GridSnapshot() *occupancy.Grid
	Persist(store mapper.SnapshotStore, reason string) error
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Node    MapNode
	// Store backs /api/map/persist; nil disables it.
	Store mapper.SnapshotStore
	// Components adds named sections to /api/map/status.
	Components map[string]func() any
}

// WebServer serves health, status and control endpoints for one node.
type WebServer struct {
	address    string
	node       MapNode
	store      mapper.SnapshotStore
	components map[string]func() any
	mux        *http.ServeMux
	server     *http.Server
	started    time.Time
}

// NewWebServer wires the routes; Start serves them.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:    config.Address,
		node:       config.Node,
		store:      config.Store,
		components: config.Components,
		started:    time.Now(),
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Mux exposes the route table so other packages can add admin routes.
func (ws *WebServer) Mux() *http.ServeMux { return ws.mux }

// Start serves until ctx is cancelled, then shuts down.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.address, err)
	}
	return ws.Serve(ctx, lis)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/map/status", ws.handleStatus)
	mux.HandleFunc("/api/map/enable", ws.handleEnable)
	mux.HandleFunc("/api/map/persist", ws.handlePersist)
	mux.HandleFunc("/api/map/grid", ws.handleGrid)
	mux.HandleFunc("/debug/map/heatmap", ws.handleHeatmap)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "gridmapper",
		"version":   version.Version,
		"uptime":    time.Since(ws.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	mapper.Status
	Components map[string]any `json:"components,omitempty"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{Status: ws.node.Status()}
	if len(ws.components) > 0 {
		resp.Components = make(map[string]any, len(ws.components))
		for name, fn := range ws.components {
			resp.Components[name] = fn()
		}
	}
	httputil.WriteJSONOK(w, resp)
}

// handleEnable sets mapping on or off from the "enabled" form value, or
// flips it when the value is absent.
func (ws *WebServer) handleEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	want := !ws.node.MappingEnabled()
	if raw := r.FormValue("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'enabled' value %q", raw))
			return
		}
		want = v
	}
	prev := ws.node.SetMappingEnabled(want)
	log.Printf("mapping enabled set to %t via HTTP (was %t)", want, prev)
	httputil.WriteJSONOK(w, map[string]bool{
		"mapping_enabled": ws.node.MappingEnabled(),
		"previous":        prev,
	})
}

func (ws *WebServer) handlePersist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.WriteJSONError(w, http.StatusNotImplemented, "no snapshot store configured")
		return
	}
	if err := ws.node.Persist(ws.store, mapper.ReasonManual); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("persist error: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "reason": mapper.ReasonManual})
}

// handleGrid serves the current grid in the occupancy blob encoding.
func (ws *WebServer) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	data, err := occupancy.EncodeGrid(ws.node.GridSnapshot())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
