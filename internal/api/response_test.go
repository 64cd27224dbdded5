// internal/api/response_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/askdba/dbquery-skill/internal/skillerr"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"status": "ok"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Error != "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestWriteCodedError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCodedError(w, skillerr.CodeInvalidParameter, "bad body")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Code != "INVALID_PARAMETER" || resp.Error != "bad body" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		write func(http.ResponseWriter)
		want  int
	}{
		{func(w http.ResponseWriter) { WriteBadRequest(w, "x") }, http.StatusBadRequest},
		{func(w http.ResponseWriter) { WriteNotFound(w, "x") }, http.StatusNotFound},
		{func(w http.ResponseWriter) { WriteMethodNotAllowed(w, "x") }, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		tt.write(w)
		if w.Code != tt.want {
			t.Errorf("expected %d, got %d", tt.want, w.Code)
		}
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code skillerr.Code
		want int
	}{
		{"", http.StatusOK},
		{skillerr.CodeMissingParameter, http.StatusBadRequest},
		{skillerr.CodeInvalidAction, http.StatusBadRequest},
		{skillerr.CodeDatabaseNotAllowed, http.StatusForbidden},
		{skillerr.CodeSQLNotAllowed, http.StatusForbidden},
		{skillerr.CodeSQLInjectionDetected, http.StatusUnprocessableEntity},
		{skillerr.CodeConfirmationRequired, http.StatusUnprocessableEntity},
		{skillerr.CodeProviderNotConfigured, http.StatusServiceUnavailable},
		{skillerr.CodeTimeout, http.StatusGatewayTimeout},
		{skillerr.CodeQueryFailed, http.StatusBadGateway},
		{skillerr.CodeOperationFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
