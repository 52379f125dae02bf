package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LuisChen1Q84/agentkernel/core"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProcessTool is a tool transport backed by a local-process MCP server,
// grounded on the pack's own MCP client usage
// (`mcp.NewClient(&mcp.Implementation{...}, nil)` then
// `session.CallTool(ctx, &mcp.CallToolParams{...})`, as exercised in
// marcus-qen-legator's mcpserver client tests).
type ProcessTool struct {
	name     string
	toolName string
	session  *mcpsdk.ClientSession
}

// NewProcessTool wraps an already-connected MCP client session. The caller
// owns the transport/process lifecycle: spawning the local server process,
// picking its transport, and connecting the session are composition-root
// concerns that belong wherever the tool candidate is built, not here.
func NewProcessTool(name, mcpToolName string, session *mcpsdk.ClientSession) *ProcessTool {
	return &ProcessTool{name: name, toolName: mcpToolName, session: session}
}

func (t *ProcessTool) Name() string { return t.name }

// Call invokes the underlying MCP tool and decodes its structured content
// into the ToolResult artifact map.
func (t *ProcessTool) Call(ctx context.Context, params map[string]interface{}, dryRun bool) (ToolResult, error) {
	args := params
	if dryRun {
		args = map[string]interface{}{}
		for k, v := range params {
			args[k] = v
		}
		args["dry_run"] = true
	}

	result, err := t.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return ToolResult{Retryable: true}, core.NewKernelError("ProcessTool.Call", core.ErrorKindServiceUnavailable, err)
	}
	if result.IsError {
		return ToolResult{}, core.NewKernelError("ProcessTool.Call", core.ErrorKindToolTimeout,
			fmt.Errorf("mcp tool %q returned an error result", t.toolName))
	}

	artifacts := map[string]interface{}{}
	if result.StructuredContent != nil {
		b, marshalErr := json.Marshal(result.StructuredContent)
		if marshalErr == nil {
			_ = json.Unmarshal(b, &artifacts)
		}
	}
	return ToolResult{Artifacts: artifacts}, nil
}
