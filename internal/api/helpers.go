package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/flowcraft/pkg/schema"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorBody is the JSON form of a FlowError.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	NodeID  string         `json:"node_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeFlowError maps err to a status code and writes it. Errors without a
// code become 500s.
func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		s.deps.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := statusFor(fe.Code)
	if status >= 500 {
		s.deps.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: fe.Message, Code: fe.Code, NodeID: fe.NodeID, Details: fe.Details})
}

// statusFor maps error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeMalformedDocument, schema.ErrCodeValidation, schema.ErrCodeUnknownEndpoint:
		return http.StatusBadRequest
	case schema.ErrCodeInvalidTransition, schema.ErrCodeInvalidChoice, schema.ErrCodeNoStartNode,
		schema.ErrCodeLocked, schema.ErrCodeDuplicateID:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDocument, "read request body").WithCause(err)
	}
	return data, nil
}

// decodeJSON decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid JSON: %v", err)
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryBool extracts a boolean query param; anything unparsable is false.
func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// writeRaw writes a rendered body with its media type.
func writeRaw(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
