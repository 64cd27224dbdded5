// cmd/dbquery-skill/mcp.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/dbquery-skill/internal/logging"
	"github.com/askdba/dbquery-skill/internal/skill"
)

const toolDescription = `Run a database action through SQL admission control.
Actions: query (read-only SELECT/WITH/EXPLAIN), execute (writes; requires confirm=true),
describe_table (requires table), list_tables, explain. Every action requires database.`

// wrapTool logs each MCP tool call and turns a panic into a tool error so one
// bad request cannot take down the stdio session.
func wrapTool[I any, O any](toolName string, h mcp.ToolHandlerFor[I, O]) mcp.ToolHandlerFor[I, O] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input I) (res *mcp.CallToolResult, out O, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("internal error in %s", toolName)
				logging.Error("tool panicked", map[string]interface{}{
					"tool":  toolName,
					"panic": fmt.Sprint(r),
				})
			}
			fields := map[string]interface{}{
				"tool":        toolName,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
				logging.Error("tool failed", fields)
				return
			}
			if res != nil && res.IsError {
				fields["is_error"] = true
			}
			logging.Info("tool executed", fields)
		}()
		return h(ctx, req, input)
	}
}

// toolDatabaseQuery adapts the skill handler to an MCP tool. Skill failures
// are reported as tool errors carrying the envelope, not as protocol errors.
func (rt *app) toolDatabaseQuery(ctx context.Context, _ *mcp.CallToolRequest, input skill.Request) (*mcp.CallToolResult, skill.Response, error) {
	resp := rt.handler.Handle(ctx, input, rt.host)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: resp.Result}},
		IsError: !resp.Metadata.Success,
	}, resp, nil
}

func newMCPServer(rt *app) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "dbquery-skill",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        skill.DefaultToolName,
		Description: toolDescription,
	}, wrapTool(skill.DefaultToolName, rt.toolDatabaseQuery))

	return server
}

func runMCP(ctx context.Context, rt *app) error {
	logging.Info("MCP server starting on stdio", map[string]interface{}{
		"version":   Version,
		"gateway":   rt.mode,
		"databases": rt.databases(),
	})
	return newMCPServer(rt).Run(ctx, &mcp.StdioTransport{})
}
