// Package api serves the flowchart JSON API, simulation sessions, the SSE
// event stream and Prometheus metrics over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/flowcraft/internal/flowchart"
	"github.com/rendis/flowcraft/internal/session"
	"github.com/rendis/flowcraft/internal/streaming"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Flowcharts *flowchart.Service
	Sessions   *session.Manager
	Hub        streaming.EventHub
	Logger     *slog.Logger
	CORSOrigin string
}

// Server serves the HTTP API.
type Server struct {
	deps Deps
}

// NewServer creates a new Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.CORSOrigin == "" {
		deps.CORSOrigin = "*"
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Flowcharts.
	mux.HandleFunc("GET /api/flowcharts", s.handleListFlowcharts)
	mux.HandleFunc("POST /api/flowcharts", s.handleCreateFlowchart)
	mux.HandleFunc("GET /api/flowcharts/{id}", s.handleGetFlowchart)
	mux.HandleFunc("PUT /api/flowcharts/{id}", s.handleUpdateFlowchart)
	mux.HandleFunc("DELETE /api/flowcharts/{id}", s.handleDeleteFlowchart)
	mux.HandleFunc("POST /api/flowcharts/{id}/validate", s.handleValidateFlowchart)
	mux.HandleFunc("GET /api/flowcharts/{id}/diagram", s.handleFlowchartDiagram)
	mux.HandleFunc("POST /api/flowcharts/{id}/query", s.handleQueryFlowchart)
	mux.HandleFunc("POST /api/validate", s.handleValidateInline)

	// Simulations.
	mux.HandleFunc("POST /api/flowcharts/{id}/simulations", s.handleStartSimulation)
	mux.HandleFunc("GET /api/simulations", s.handleListSimulations)
	mux.HandleFunc("GET /api/simulations/{sid}", s.handleGetSimulation)
	mux.HandleFunc("POST /api/simulations/{sid}/step", s.handleStepSimulation)
	mux.HandleFunc("POST /api/simulations/{sid}/choose", s.handleChooseSimulation)
	mux.HandleFunc("POST /api/simulations/{sid}/stop", s.handleStopSimulation)
	mux.HandleFunc("POST /api/simulations/{sid}/reset", s.handleResetSimulation)
	mux.HandleFunc("POST /api/simulations/{sid}/start", s.handleRestartSimulation)
	mux.HandleFunc("PATCH /api/simulations/{sid}/nodes/{nodeID}", s.handleRelabelNode)
	mux.HandleFunc("GET /api/simulations/{sid}/diagram", s.handleSimulationDiagram)
	mux.HandleFunc("DELETE /api/simulations/{sid}", s.handleCloseSimulation)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/simulations/{sid}", s.handleSSESimulation)
	mux.HandleFunc("GET /sse/flowcharts/{id}", s.handleSSEFlowchart)

	// Operations.
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return cors(s.deps.CORSOrigin, instrument(mux))
}
