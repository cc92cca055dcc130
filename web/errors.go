package web

import (
	"encoding/json"
	"net/http"
)

// serverError records the full failure in the server log and answers the
// client with a generic 500. The error detail never reaches the response.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, public string, err error) {
	s.logger.Error(public, "error", err, "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, public)
}

// ErrorResponse is the JSON error envelope for non-HTML endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
