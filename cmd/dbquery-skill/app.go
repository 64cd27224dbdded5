// cmd/dbquery-skill/app.go
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/askdba/dbquery-skill/internal/config"
	"github.com/askdba/dbquery-skill/internal/gateway"
	"github.com/askdba/dbquery-skill/internal/logging"
	"github.com/askdba/dbquery-skill/internal/policy"
	"github.com/askdba/dbquery-skill/internal/skill"
	"github.com/askdba/dbquery-skill/internal/sqlgateway"
	"github.com/askdba/dbquery-skill/internal/tokens"
)

// app holds everything a surface (MCP or REST) needs to serve requests.
type app struct {
	cfg     *config.Config
	handler *skill.Handler
	host    skill.HostContext
	mode    string // "remote" or "sql"
	sqlGW   *sqlgateway.Gateway
	audit   *logging.AuditLogger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logging.SetJSONFormat(cfg.JSONLogging)

	audit, err := logging.NewAuditLogger(cfg.AuditLogPath)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg, audit: audit}

	client, err := rt.openGateway(ctx)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}

	opts := []skill.Option{
		skill.WithAuditLogger(audit),
		skill.WithStrictParser(cfg.StrictParser),
		skill.WithCheckParams(cfg.CheckParams),
	}
	if cfg.TokenTracking {
		opts = append(opts, skill.WithTokenCounter(tokens.NewCounter(newEstimator(cfg.TokenModel))))
	}
	rt.handler = skill.NewHandler(opts...)

	rt.host = skill.HostContext{
		GatewayClient: client,
		Config: &skill.SkillConfig{
			TimeoutMs:        cfg.TimeoutMs,
			MaxRows:          cfg.MaxRows,
			MaxCostUsd:       cfg.MaxCostUSD,
			AllowedDatabases: cfg.AllowedDatabases,
		},
	}
	return rt, nil
}

func (rt *app) openGateway(ctx context.Context) (gateway.Client, error) {
	if rt.cfg.GatewayURL != "" {
		rt.mode = "remote"
		opts := []gateway.HTTPOption{gateway.WithUserAgent("dbquery-skill/" + Version)}
		if rt.cfg.GatewayToken != "" {
			opts = append(opts, gateway.WithBearerToken(rt.cfg.GatewayToken))
		}
		client, err := gateway.NewHTTPClient(rt.cfg.GatewayURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("gateway client: %w", err)
		}
		logging.Info("using remote gateway", map[string]interface{}{"url": rt.cfg.GatewayURL})
		return client, nil
	}

	rt.mode = "sql"
	reg := sqlgateway.NewRegistry()
	for _, conn := range rt.cfg.GatewayConnections() {
		if err := reg.Open(ctx, conn, rt.cfg.Pool()); err != nil {
			_ = reg.Close()
			return nil, err
		}
		logging.Info("database connected", map[string]interface{}{
			"name":      conn.Name,
			"driver":    conn.Driver,
			"read_only": conn.ReadOnly,
		})
	}
	// Policy resolves the per-request cap; the gateway only bounds it.
	rt.sqlGW = sqlgateway.New(reg, sqlgateway.Options{MaxRows: policy.MaxRowsCeiling})
	return rt.sqlGW, nil
}

// newEstimator falls back to the byte-length approximation when the tiktoken
// encoding cannot be loaded (offline hosts).
func newEstimator(model string) tokens.Estimator {
	est, err := tokens.NewEstimator(model)
	if err != nil {
		logging.Warn("token estimator unavailable, using approximation", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		return tokens.Approx()
	}
	return est
}

// databases lists the database names the runtime will accept.
func (rt *app) databases() []string {
	if len(rt.cfg.AllowedDatabases) > 0 {
		return rt.cfg.AllowedDatabases
	}
	if rt.sqlGW != nil {
		return rt.sqlGW.Registry().Names()
	}
	return nil
}

func (rt *app) Close() error {
	var errs []error
	if rt.sqlGW != nil {
		errs = append(errs, rt.sqlGW.Close())
	}
	errs = append(errs, rt.audit.Close())
	return errors.Join(errs...)
}
