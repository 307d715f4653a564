//go:build linux

// Package server exposes the REST API: device inventory, format
// introspection, frame snapshots and board peripherals, plus the
// Prometheus metrics endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiagocoutinho/linuxgo/internal/events"
	"github.com/tiagocoutinho/linuxgo/internal/logging"
	"github.com/tiagocoutinho/linuxgo/internal/updater"
	"github.com/tiagocoutinho/linuxgo/internal/version"
)

// Options configures the API server.
type Options struct {
	// DevDir is scanned for video nodes; defaults to /dev.
	DevDir string
	// LEDRoot and ThermalRoot default to the sysfs class directories.
	LEDRoot     string
	ThermalRoot string
	// Metrics mounts the Prometheus handler at /metrics when true.
	Metrics bool
	// EventBus receives stream lifecycle events when set.
	EventBus *events.Bus
	// UpdateService enables the self-update routes when set.
	UpdateService *updater.Service
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server with Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	if opts.DevDir == "" {
		opts.DevDir = "/dev"
	}
	mux := http.NewServeMux()

	config := huma.DefaultConfig("linuxgo API", version.Version)
	config.Info.Description = "Linux device access API: V4L2 capture, GPIO, LEDs and thermal"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("server"),
	}

	if opts.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	server.registerDeviceRoutes()
	server.registerSystemRoutes()
	server.registerUpdateRoutes()
	server.registerHealthRoutes()

	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start starts the HTTP server on the specified address.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HealthResponse reports process liveness.
type HealthResponse struct {
	Body struct {
		Status  string `json:"status" example:"ok" doc:"Service status"`
		Version string `json:"version" doc:"Build version"`
	}
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health Check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		resp.Body.Version = version.Version
		return resp, nil
	})
}
