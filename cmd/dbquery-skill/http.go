// cmd/dbquery-skill/http.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/askdba/dbquery-skill/internal/api"
	"github.com/askdba/dbquery-skill/internal/logging"
	"github.com/askdba/dbquery-skill/internal/policy"
	"github.com/askdba/dbquery-skill/internal/skill"
	"github.com/askdba/dbquery-skill/internal/skillerr"
)

const maxJSONRequestBodyBytes int64 = 1 << 20 // 1 MiB

// decodeSkillRequest validates body against the request schema and decodes
// it. Numbers stay json.Number so limit overrides keep their exact value.
func decodeSkillRequest(body []byte) (skill.Request, error) {
	var req skill.Request
	if err := api.ValidateSkillRequest(body); err != nil {
		return req, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	// Reject trailing data after the object.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return req, fmt.Errorf("request body must contain a single JSON object")
	}
	return req, nil
}

// httpSkill handles POST /api/skill. The body is the skill request and the
// response is the skill envelope; the HTTP status follows the error code.
func (rt *app) httpSkill(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.WriteBadRequest(w, "failed to read request body")
		return
	}

	req, err := decodeSkillRequest(body)
	if err != nil {
		api.WriteCodedError(w, skillerr.CodeInvalidParameter, err.Error())
		return
	}

	resp := rt.handler.Handle(r.Context(), req, rt.host)
	var code skillerr.Code
	if resp.Metadata.Error != nil {
		code = resp.Metadata.Error.Code
	}
	api.WriteJSON(w, api.StatusForCode(code), resp)
}

// httpHealth handles GET /health.
func (rt *app) httpHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, map[string]interface{}{
		"status":    "ok",
		"version":   Version,
		"gateway":   rt.mode,
		"databases": rt.databases(),
	})
}

// httpAPIIndex handles GET /api.
func (rt *app) httpAPIIndex(w http.ResponseWriter, r *http.Request) {
	actions := make([]string, len(policy.Actions))
	for i, a := range policy.Actions {
		actions[i] = string(a)
	}
	api.WriteSuccess(w, map[string]interface{}{
		"name":    "dbquery-skill REST API",
		"version": Version,
		"endpoints": map[string]string{
			"GET  /health":    "Health check",
			"GET  /api":       "This index",
			"POST /api/skill": "Run a skill request (body: {action, sql, database, table, params, confirm, timeoutMs, maxRows, maxCostUsd})",
		},
		"actions": actions,
		"schema":  json.RawMessage(api.SkillRequestSchema),
	})
}

// routes builds the REST handler. limiter may be nil.
func (rt *app) routes(limiter *api.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", api.Chain(rt.httpHealth, api.WithCORS, api.RequireGET))
	mux.HandleFunc("/api", api.Chain(rt.httpAPIIndex, api.WithCORS, api.RequireGET))
	mux.HandleFunc("/api/skill", api.Chain(rt.httpSkill,
		api.WithCORS,
		api.RequirePOST,
		api.WithRateLimit(limiter),
		api.WithMaxBody(maxJSONRequestBodyBytes),
		api.WithTimeout(rt.cfg.HTTPRequestTimeout),
	))

	return api.Chain(mux.ServeHTTP, api.WithRequestID, api.WithLogging)
}

// serveHTTP runs the REST API until ctx is cancelled, then shuts down
// gracefully.
func serveHTTP(ctx context.Context, rt *app) error {
	var limiter *api.RateLimiter
	if rt.cfg.RateLimitEnabled {
		limiter = api.NewRateLimiter(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
		defer limiter.Stop()
		logging.Info("rate limiting enabled", map[string]interface{}{
			"rps":   rt.cfg.RateLimitRPS,
			"burst": rt.cfg.RateLimitBurst,
		})
	}

	addr := fmt.Sprintf(":%d", rt.cfg.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      rt.routes(limiter),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: rt.cfg.HTTPRequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP REST API server starting", map[string]interface{}{
			"port":      rt.cfg.HTTPPort,
			"address":   "http://localhost" + addr,
			"gateway":   rt.mode,
			"databases": rt.databases(),
			"version":   Version,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutdown signal received, stopping server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logging.Info("server stopped gracefully", nil)
	return nil
}
