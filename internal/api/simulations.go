package api

import (
	"net/http"
	"time"

	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/render"
	"github.com/rendis/flowcraft/internal/session"
	"github.com/rendis/flowcraft/internal/simulation"
)

// startRequest is the body of a simulation start.
type startRequest struct {
	Mode       string         `json:"mode"`
	IntervalMS int            `json:"interval_ms"`
	Guards     string         `json:"guards"`
	Vars       map[string]any `json:"vars"`
}

func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	view, err := s.deps.Sessions.Open(r.Context(), r.PathValue("id"), session.StartOptions{
		Mode:     req.Mode,
		Interval: time.Duration(req.IntervalMS) * time.Millisecond,
		Guards:   req.Guards,
		Vars:     req.Vars,
	})
	if err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Sessions.List())
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r)(s.deps.Sessions.Get(r.PathValue("sid")))
}

func (s *Server) handleStepSimulation(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r)(s.deps.Sessions.Step(r.Context(), r.PathValue("sid")))
}

// chooseRequest names the connector taken out of a decision.
type chooseRequest struct {
	ConnectorID string `json:"connector_id"`
}

func (s *Server) handleChooseSimulation(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if req.ConnectorID == "" {
		writeError(w, http.StatusBadRequest, "connector_id is required")
		return
	}
	s.writeView(w, r)(s.deps.Sessions.Choose(r.PathValue("sid"), req.ConnectorID))
}

func (s *Server) handleStopSimulation(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r)(s.deps.Sessions.Stop(r.PathValue("sid")))
}

func (s *Server) handleResetSimulation(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r)(s.deps.Sessions.Reset(r.PathValue("sid")))
}

func (s *Server) handleRestartSimulation(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, r)(s.deps.Sessions.Restart(r.Context(), r.PathValue("sid")))
}

// relabelRequest carries a new node label.
type relabelRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleRelabelNode(w http.ResponseWriter, r *http.Request) {
	var req relabelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	s.writeView(w, r)(s.deps.Sessions.Relabel(r.PathValue("sid"), r.PathValue("nodeID"), req.Label))
}

func (s *Server) handleCloseSimulation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Close(r.PathValue("sid")); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSimulationDiagram(w http.ResponseWriter, r *http.Request) {
	// Build the model under the session lock, render outside it.
	var model *render.Model
	err := s.deps.Sessions.Diagram(r.PathValue("sid"), func(d *graph.Diagram, snap simulation.Snapshot) error {
		model = render.Build(d, render.OverlayFromSnapshot(snap))
		return nil
	})
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	out, err := render.Render(r.Context(), model, r.URL.Query().Get("format"))
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeRaw(w, out.ContentType, out.Body)
}

// writeView returns a writer for the (view, error) pair of a session call.
func (s *Server) writeView(w http.ResponseWriter, r *http.Request) func(session.View, error) {
	return func(view session.View, err error) {
		if err != nil {
			s.writeFlowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
