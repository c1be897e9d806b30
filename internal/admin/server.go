// Package admin serves the dashboard HTTP API: the machine catalog, broker
// connection control, a live websocket feed and Prometheus metrics.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/fleet"
	"coffeefleet-sim/internal/logging"
)

//go:embed templates/index.html
var content embed.FS

// Connection is the broker surface the server controls.
type Connection interface {
	broker.Subscriber
	Connect(ctx context.Context) error
	Disconnect()
	State() broker.State
}

// Options configures a Server.
type Options struct {
	Conn    Connection
	Catalog *fleet.Catalog
	// LiveTopics are streamed by /api/live when no topic is requested.
	LiveTopics []string
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
	// PingMessage is returned by /api/ping.
	PingMessage string
}

// Server is the admin HTTP API.
type Server struct {
	conn       Connection
	catalog    *fleet.Catalog
	liveTopics []string
	gatherer   prometheus.Gatherer
	log        *slog.Logger
	ping       string
	tpl        *template.Template
	upgrader   websocket.Upgrader
	mux        *http.ServeMux
}

// NewServer builds the server and its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.PingMessage == "" {
		opts.PingMessage = "ping"
	}
	s := &Server{
		conn:       opts.Conn,
		catalog:    opts.Catalog,
		liveTopics: opts.LiveTopics,
		gatherer:   opts.Gatherer,
		log:        opts.Logger,
		ping:       opts.PingMessage,
		tpl:        template.Must(template.New("index.html").ParseFS(content, "templates/index.html")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/ping", s.handlePing)

	s.mux.HandleFunc("GET /api/machines", s.handleMachines)
	s.mux.HandleFunc("GET /api/machines/locations", s.handleLocations)
	s.mux.HandleFunc("GET /api/machines/offices", s.handleOffices)
	s.mux.HandleFunc("GET /api/machines/floors", s.handleFloors)
	s.mux.HandleFunc("GET /api/machines/by-location", s.handleByLocation)
	s.mux.HandleFunc("GET /api/machines/low-supply", s.handleLowSupply)
	s.mux.HandleFunc("GET /api/machines/maintenance-needed", s.handleMaintenanceNeeded)
	s.mux.HandleFunc("GET /api/machines/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/machines/machine/{machineId}", s.handleMachineByMachineID)
	s.mux.HandleFunc("GET /api/machines/{id}", s.handleMachine)
	s.mux.HandleFunc("PUT /api/machines/{id}", s.handleUpdateMachine)
	s.mux.HandleFunc("PUT /api/machines/{id}/supplies", s.handleUpdateSupplies)
	s.mux.HandleFunc("POST /api/machines/{id}/alerts/{alertId}/resolve", s.handleResolveAlert)

	s.mux.HandleFunc("GET /api/connection", s.handleConnection)
	s.mux.HandleFunc("POST /api/connection/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/connection/disconnect", s.handleDisconnect)

	s.mux.HandleFunc("GET /api/live", s.handleLive)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), s.log)))
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("admin server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		State     string
		Summary   fleet.Summary
		Machines  []fleet.Machine
		Threshold int
	}{
		State:     s.conn.State().String(),
		Summary:   s.catalog.Summary(),
		Machines:  s.catalog.List(),
		Threshold: s.catalog.LowSupplyThreshold(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": s.ping})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
