// internal/skill/handler.go
package skill

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdba/dbquery-skill/internal/gateway"
	"github.com/askdba/dbquery-skill/internal/logging"
	"github.com/askdba/dbquery-skill/internal/policy"
	"github.com/askdba/dbquery-skill/internal/skillerr"
	"github.com/askdba/dbquery-skill/internal/tokens"
	"github.com/askdba/dbquery-skill/internal/util"
)

// DefaultToolName is the tool name recorded in logs and audit entries.
const DefaultToolName = "database_query"

// Handler turns a Request into a Response. It holds no per-call state and is
// safe for concurrent use.
type Handler struct {
	dispatcher   *gateway.Dispatcher
	audit        *logging.AuditLogger
	counter      *tokens.Counter
	strictParser bool
	checkParams  bool
	tool         string
}

// Option configures a Handler.
type Option func(*Handler)

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *gateway.Dispatcher) Option {
	return func(h *Handler) {
		if d != nil {
			h.dispatcher = d
		}
	}
}

// WithAuditLogger records every call to a.
func WithAuditLogger(a *logging.AuditLogger) Option {
	return func(h *Handler) { h.audit = a }
}

// WithTokenCounter enables token estimation in response metadata.
func WithTokenCounter(c *tokens.Counter) Option {
	return func(h *Handler) { h.counter = c }
}

// WithStrictParser adds the AST-level check to read-only actions.
func WithStrictParser(enabled bool) Option {
	return func(h *Handler) { h.strictParser = enabled }
}

// WithCheckParams scans string params with libinjection.
func WithCheckParams(enabled bool) Option {
	return func(h *Handler) { h.checkParams = enabled }
}

// WithToolName sets the tool name used in logs.
func WithToolName(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.tool = name
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		dispatcher: gateway.NewDispatcher(),
		tool:       DefaultToolName,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// call is the per-request scratch state.
type call struct {
	req       Request
	action    policy.Action
	timer     *logging.QueryTimer
	requestID string
}

// Handle runs req through the policy gate, dispatches it to the host's
// gateway client and returns the envelope. It never returns an error: every
// failure is reported with success=false.
func (h *Handler) Handle(ctx context.Context, req Request, host HostContext) Response {
	c := &call{
		req:       req,
		action:    policy.Action(req.Action),
		timer:     logging.NewQueryTimer(h.tool),
		requestID: logging.NewRequestID(),
	}

	action, ok := policy.ParseAction(req.Action)
	if !ok {
		return h.fail(c, nil, skillerr.New(skillerr.CodeInvalidAction,
			"unknown action %q; supported actions: %s", req.Action, supportedActions()))
	}
	c.action = action

	decision := policy.Evaluate(action, policy.StatementRequest{
		SQL:       req.SQL,
		Database:  req.Database,
		Table:     req.Table,
		Params:    req.Params,
		Confirm:   req.Confirm,
		Overrides: policy.LimitSource{TimeoutMs: req.TimeoutMs, MaxRows: req.MaxRows, MaxCostUSD: req.MaxCostUsd},
	}, h.policyConfig(host.Config))
	if !decision.Allowed {
		return h.fail(c, nil, decision.Err)
	}
	limits := decision.Limits

	client := host.client()
	if client == nil {
		return h.fail(c, &limits, skillerr.New(skillerr.CodeProviderNotConfigured,
			"no database provider is configured for this skill"))
	}

	out, err := h.dispatcher.Dispatch(ctx, client, http.MethodPost, action.Endpoint(), requestBody(action, req, limits), limits.Timeout())
	if err != nil {
		return h.fail(c, &limits, upstreamFailure(action, err))
	}

	meta, result, err := formatResult(action, req, out, limits)
	if err != nil {
		return h.fail(c, &limits, skillerr.Wrap(skillerr.CodeOperationFailed, err,
			"malformed %s response from gateway: %v", action, err))
	}
	meta.Limits = &limits
	meta.Database = req.Database
	return h.succeed(c, meta, result)
}

func (h *Handler) policyConfig(sc *SkillConfig) policy.Config {
	cfg := policy.Config{
		StrictParser: h.strictParser,
		CheckParams:  h.checkParams,
	}
	if sc != nil {
		cfg.AllowedDatabases = sc.AllowedDatabases
		cfg.Limits = policy.LimitSource{TimeoutMs: sc.TimeoutMs, MaxRows: sc.MaxRows, MaxCostUSD: sc.MaxCostUsd}
	}
	return cfg
}

func supportedActions() string {
	names := make([]string, len(policy.Actions))
	for i, a := range policy.Actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func requestBody(action policy.Action, req Request, limits policy.EffectiveLimits) map[string]interface{} {
	body := map[string]interface{}{
		"database":  req.Database,
		"timeoutMs": limits.TimeoutMs,
	}
	if action.NeedsSQL() {
		body["sql"] = req.SQL
		if len(req.Params) > 0 {
			body["params"] = req.Params
		}
	}
	switch action {
	case policy.ActionDescribeTable:
		body["table"] = req.Table
	case policy.ActionQuery:
		body["maxRows"] = limits.MaxRows
		body["maxCostUsd"] = limits.MaxCostUSD
	}
	return body
}

// upstreamFailure maps a generic upstream error onto the action's failure
// code. Timeouts and already-classified errors keep their code.
func upstreamFailure(action policy.Action, err error) *skillerr.Error {
	se, ok := skillerr.As(err)
	if !ok {
		return skillerr.Wrap(action.FailureCode(), err, "%s failed: %v", action, err)
	}
	if se.Code != skillerr.CodeUpstream {
		return se
	}
	return skillerr.Wrap(action.FailureCode(), se.Err, "%s failed: %s", action, se.Message)
}

func (h *Handler) succeed(c *call, meta Metadata, result string) Response {
	meta.Success = true
	meta.Action = string(c.action)
	meta.Layer = Layer
	meta.RequestID = c.requestID

	rowCount := 0
	if meta.RowCount != nil {
		rowCount = *meta.RowCount
	}
	usage := h.usage(c.req, meta, rowCount)
	if usage != nil {
		meta.Tokens = usage
		if usage.Efficiency != nil && meta.Limits != nil && usage.Efficiency.CostEstimateUSD > meta.Limits.MaxCostUSD {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf(
				"estimated token cost $%.6f exceeds maxCostUsd $%.2f", usage.Efficiency.CostEstimateUSD, meta.Limits.MaxCostUSD))
		}
	}
	meta.DurationMs = c.timer.ElapsedMs()

	c.timer.LogSuccess(rowCount, c.req.SQL, usage)
	h.record(c, meta, nil)
	return Response{Result: util.Redact(result), Metadata: meta}
}

func (h *Handler) fail(c *call, limits *policy.EffectiveLimits, se *skillerr.Error) Response {
	if se == nil {
		se = skillerr.New(skillerr.CodeOperationFailed, "operation failed")
	}
	message := util.Redact(se.Message)
	meta := Metadata{
		Success:   false,
		Action:    string(c.action),
		Layer:     Layer,
		RequestID: c.requestID,
		Database:  c.req.Database,
		Limits:    limits,
		Error: &ErrorInfo{
			Code:      se.Code,
			Message:   message,
			Retriable: se.Retriable,
			Findings:  se.Findings,
		},
		DurationMs: c.timer.ElapsedMs(),
	}

	c.timer.LogError(fmt.Errorf("%s: %s", se.Code, message), c.req.SQL, nil)
	h.record(c, meta, se)
	return Response{Result: fmt.Sprintf("Error [%s]: %s", se.Code, message), Metadata: meta}
}

func (h *Handler) usage(req Request, meta Metadata, rowCount int) *tokens.Usage {
	if h.counter == nil {
		return nil
	}
	usage, err := h.counter.Usage(req, meta, rowCount)
	if err != nil {
		logging.Warn("token estimation failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return usage
}

func (h *Handler) record(c *call, meta Metadata, se *skillerr.Error) {
	if !h.audit.Enabled() {
		return
	}
	entry := &logging.AuditEntry{
		RequestID:  c.requestID,
		Tool:       h.tool,
		Action:     string(c.action),
		Database:   c.req.Database,
		Query:      c.req.SQL,
		DurationMs: meta.DurationMs,
		Success:    se == nil,
	}
	if meta.RowCount != nil {
		entry.RowCount = *meta.RowCount
	}
	if meta.RowsAffected != nil {
		entry.RowsAffected = *meta.RowsAffected
	}
	if meta.Tokens != nil {
		entry.InputTokens = meta.Tokens.InputEstimated
		entry.OutputTokens = meta.Tokens.OutputEstimated
	}
	if se != nil {
		entry.ErrorCode = string(se.Code)
		entry.Error = se.Message
	}
	h.audit.Log(entry)
}
