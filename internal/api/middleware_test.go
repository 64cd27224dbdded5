// internal/api/middleware_test.go
package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askdba/dbquery-skill/internal/logging"
)

func TestWithCORS(t *testing.T) {
	called := false
	handler := WithCORS(func(w http.ResponseWriter, r *http.Request) {
		called = true
		WriteSuccess(w, nil)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/skill", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS request should return 204, got %d", w.Code)
	}
	if called {
		t.Error("preflight must not reach the handler")
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Error("expected Authorization in allowed headers")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/skill", nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}

func TestRequireGET(t *testing.T) {
	handler := RequireGET(func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, "ok")
	})

	for method, want := range map[string]int{
		http.MethodGet:     http.StatusOK,
		http.MethodHead:    http.StatusOK,
		http.MethodPost:    http.StatusMethodNotAllowed,
		http.MethodOptions: http.StatusOK,
	} {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(method, "/health", nil))
		if w.Code != want {
			t.Errorf("%s: expected %d, got %d", method, want, w.Code)
		}
	}
}

func TestRequirePOST(t *testing.T) {
	handler := RequirePOST(func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, "ok")
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/api/skill", nil))
	if w.Code != http.StatusOK {
		t.Errorf("POST should return 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/skill", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET should return 405, got %d", w.Code)
	}
}

func TestWithTimeout(t *testing.T) {
	handler := WithTimeout(50 * time.Millisecond)(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("expected a deadline on the request context")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Error("deadline too far in the future")
		}
		WriteSuccess(w, nil)
	})
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestWithMaxBody(t *testing.T) {
	handler := WithMaxBody(8)(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		WriteSuccess(w, nil)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	if w.Code != http.StatusOK {
		t.Errorf("small body should pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("large body should fail, got %d", w.Code)
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	handler := WithRequestID(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		WriteSuccess(w, nil)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected generated id in context and header, got %q / %q", seen, w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id-1")
	w = httptest.NewRecorder()
	handler(w, req)
	if seen != "caller-id-1" {
		t.Errorf("expected caller id to be kept, got %q", seen)
	}

	if RequestID(context.Background()) != "" {
		t.Error("expected empty id without middleware")
	}
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logging.SetJSONFormat(true)
	logging.SetOutput(&buf)
	defer func() {
		logging.SetJSONFormat(false)
		logging.SetOutput(nil)
	}()

	handler := Chain(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusBadGateway, "upstream down")
	}, WithRequestID, WithLogging)
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/skill", nil))

	out := buf.String()
	for _, want := range []string{`"status":502`, `"path":"/api/skill"`, `"request_id"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in log line: %s", want, out)
		}
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}
	handler := Chain(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}, mw("first"), mw("second"))
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("unexpected order %v", order)
	}
}
