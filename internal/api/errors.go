package api

import (
	"encoding/json"
	"net/http"

	"github.com/mwren/chitter/internal/chitter"
)

// envelope is the wire shape every response takes, success or failure,
// per spec.md §6.
type envelope struct {
	Success          bool     `json:"success"`
	Data             any      `json:"data,omitempty"`
	Error            string   `json:"error,omitempty"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("encode response: %v", err)
	}
}

func (s *Server) writeSuccess(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeServiceError maps a Service error to the response body unchanged,
// per spec.md §6/§7: every tag is HTTP 400 except UnknownServerError, which
// signals a truly unexpected failure and is surfaced as 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	tag := chitter.TagOf(err)
	status := http.StatusBadRequest
	if tag == chitter.TagUnknownServerError {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, envelope{Success: false, Error: string(tag)})
}

// writeValidationError reports a request-shape failure the edge caught
// itself, before ever calling into the Service.
func (s *Server) writeValidationError(w http.ResponseWriter, details ...string) {
	s.writeJSON(w, http.StatusBadRequest, envelope{
		Success:          false,
		Error:            "Invalid parameters",
		ValidationErrors: details,
	})
}
