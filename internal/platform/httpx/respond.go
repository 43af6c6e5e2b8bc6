// Package httpx provides JSON response utilities for the admin proxy API.
package httpx

import (
	"encoding/json"
	"net/http"
)

type okBody struct {
	OK bool `json:"ok"`
}

type errorBody struct {
	Error string `json:"error"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends the canonical `{"ok":true}` success body.
func OK(w http.ResponseWriter) {
	JSON(w, http.StatusOK, okBody{OK: true})
}

// Error sends an `{"error":"..."}` body with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorBody{Error: message})
}

// DecodeJSON decodes the request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
