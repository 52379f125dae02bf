package mcp

import (
	"context"
	"errors"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestMCPSession runs an in-process MCP server over an in-memory
// transport pair and connects a client session to it, grounded on the
// pack's own mcp.NewInMemoryTransports/NewClient/Connect pattern
// (marcus-qen-legator's mcpserver connectClient helper). registerTools
// attaches whatever tools the test needs before the server starts serving.
func startTestMCPSession(t *testing.T, registerTools func(*mcpsdk.Server)) *mcpsdk.ClientSession {
	t.Helper()

	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "test"}, nil)
	registerTools(srv)

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
	})
	return session
}

type echoToolInput struct {
	Topic  string `json:"topic"`
	DryRun bool   `json:"dry_run"`
}

type echoToolOutput struct {
	Echoed string `json:"echoed"`
	DryRun bool   `json:"dry_run"`
}

func TestProcessToolCallDecodesStructuredContent(t *testing.T) {
	session := startTestMCPSession(t, func(srv *mcpsdk.Server) {
		mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "echo", Description: "echoes the topic input back"},
			func(_ context.Context, _ *mcpsdk.CallToolRequest, input echoToolInput) (*mcpsdk.CallToolResult, any, error) {
				return nil, echoToolOutput{Echoed: input.Topic, DryRun: input.DryRun}, nil
			})
	})
	tool := NewProcessTool("echo-tool", "echo", session)

	result, err := tool.Call(context.Background(), map[string]interface{}{"topic": "growth"}, false)
	require.NoError(t, err)
	assert.Equal(t, "growth", result.Artifacts["echoed"])
	assert.Equal(t, false, result.Artifacts["dry_run"])
}

func TestProcessToolCallInjectsDryRunFlag(t *testing.T) {
	session := startTestMCPSession(t, func(srv *mcpsdk.Server) {
		mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "echo", Description: "echoes the topic input back"},
			func(_ context.Context, _ *mcpsdk.CallToolRequest, input echoToolInput) (*mcpsdk.CallToolResult, any, error) {
				return nil, echoToolOutput{Echoed: input.Topic, DryRun: input.DryRun}, nil
			})
	})
	tool := NewProcessTool("echo-tool", "echo", session)

	result, err := tool.Call(context.Background(), map[string]interface{}{"topic": "growth"}, true)
	require.NoError(t, err)
	assert.Equal(t, true, result.Artifacts["dry_run"], "dry_run must be injected into the forwarded arguments, not just the local params")
}

func TestProcessToolCallWrapsToolErrorResult(t *testing.T) {
	session := startTestMCPSession(t, func(srv *mcpsdk.Server) {
		mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "fail", Description: "always fails"},
			func(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
				return nil, nil, errors.New("boom")
			})
	})
	tool := NewProcessTool("fail-tool", "fail", session)

	_, err := tool.Call(context.Background(), map[string]interface{}{}, false)
	require.Error(t, err)
}
