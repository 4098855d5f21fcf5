package api

import (
	"net/http"
	"strings"

	"github.com/rendis/flowcraft/internal/logging"
	"github.com/rendis/flowcraft/internal/store"
	"github.com/rendis/flowcraft/internal/validation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// saveResponse is returned by create. Warnings lists load-time issues such
// as dropped dangling connections.
type saveResponse struct {
	ID       string                   `json:"id"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

func (s *Server) handleListFlowcharts(w http.ResponseWriter, r *http.Request) {
	filter := store.FlowchartFilter{
		Title:  r.URL.Query().Get("title"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	list, err := s.deps.Flowcharts.List(r.Context(), filter)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateFlowchart(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	fc, issues, err := s.deps.Flowcharts.Create(r.Context(), data)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{ID: fc.ID, Warnings: issues})
}

func (s *Server) handleGetFlowchart(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Flowcharts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateFlowchart(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if _, _, err := s.deps.Flowcharts.Update(r.Context(), r.PathValue("id"), data); err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteFlowchart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Flowcharts.Delete(r.Context(), id); err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	if s.deps.Sessions != nil {
		if n := s.deps.Sessions.CloseFlowchart(id); n > 0 {
			logging.LogWith(logging.WithFlowchartID(r.Context(), id), s.deps.Logger).
				Info("closed sessions of deleted flowchart", "sessions", n)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleValidateFlowchart(w http.ResponseWriter, r *http.Request) {
	opts := validation.Options{Deep: queryBool(r, "deep")}
	res, err := s.deps.Flowcharts.Validate(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validationResponse(res))
}

func (s *Server) handleValidateInline(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	res, err := s.deps.Flowcharts.ValidateDocument(data, validation.Options{Deep: queryBool(r, "deep")})
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validationResponse(res))
}

func (s *Server) handleFlowchartDiagram(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Flowcharts.Export(r.Context(), r.PathValue("id"), r.URL.Query().Get("format"))
	if err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	writeRaw(w, out.ContentType, out.Body)
}

// queryRequest is the body of a jq query.
type queryRequest struct {
	Expression string `json:"expression"`
}

func (s *Server) handleQueryFlowchart(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Expression) == "" {
		writeError(w, http.StatusBadRequest, "expression is required")
		return
	}
	results, err := s.deps.Flowcharts.Query(r.Context(), r.PathValue("id"), req.Expression)
	if err != nil {
		s.writeNotFoundAware(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// validationBody is the JSON form of a validation report.
type validationBody struct {
	Valid    bool                     `json:"valid"`
	Errors   []schema.ValidationIssue `json:"errors"`
	Warnings []schema.ValidationIssue `json:"warnings"`
}

func validationResponse(res *schema.ValidationResult) validationBody {
	body := validationBody{Valid: res.Valid(), Errors: res.Errors, Warnings: res.Warnings}
	if body.Errors == nil {
		body.Errors = []schema.ValidationIssue{}
	}
	if body.Warnings == nil {
		body.Warnings = []schema.ValidationIssue{}
	}
	return body
}

// writeNotFoundAware keeps the flowchart 404 body stable for editors that
// match on the message.
func (s *Server) writeNotFoundAware(w http.ResponseWriter, r *http.Request, err error) {
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		writeError(w, http.StatusNotFound, "Flowchart not found")
		return
	}
	s.writeFlowError(w, r, err)
}
