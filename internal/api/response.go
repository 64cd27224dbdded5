// internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"

	"github.com/askdba/dbquery-skill/internal/skillerr"
)

// Response is the JSON body for non-skill endpoints and transport errors.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response with status 200.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// WriteError writes an error JSON response with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{Success: false, Error: message})
}

// WriteCodedError writes an error response carrying a skill error code.
func WriteCodedError(w http.ResponseWriter, code skillerr.Code, message string) {
	WriteJSON(w, StatusForCode(code), Response{Success: false, Error: message, Code: string(code)})
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteMethodNotAllowed writes a 405 Method Not Allowed error response.
func WriteMethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, message)
}

// StatusForCode maps a skill error code to an HTTP status. The empty code
// means success.
func StatusForCode(code skillerr.Code) int {
	switch code {
	case "":
		return http.StatusOK
	case skillerr.CodeMissingParameter, skillerr.CodeInvalidParameter, skillerr.CodeInvalidAction:
		return http.StatusBadRequest
	case skillerr.CodeDatabaseNotAllowed, skillerr.CodeSQLNotAllowed:
		return http.StatusForbidden
	case skillerr.CodeSQLInjectionDetected, skillerr.CodeConfirmationRequired:
		return http.StatusUnprocessableEntity
	case skillerr.CodeProviderNotConfigured:
		return http.StatusServiceUnavailable
	case skillerr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
