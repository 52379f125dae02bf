package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// jsonRPCRequest is the wire shape for the HTTP JSON-RPC tool transport.
type jsonRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
	DryRun  bool                   `json:"dry_run,omitempty"`
	ID      string                 `json:"id"`
}

type jsonRPCResponse struct {
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     *jsonRPCError          `json:"error,omitempty"`
	ID        string                 `json:"id"`
}

type jsonRPCError struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// HTTPTool is a tool transport backed by stdlib net/http, grounded on the
// teacher's AgentCatalog httpClient use — a plain *http.Client, no extra
// HTTP framework.
type HTTPTool struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPTool builds an HTTP JSON-RPC tool against endpoint.
func NewHTTPTool(name, endpoint string, timeout time.Duration) *HTTPTool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTool{name: name, endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTool) Name() string { return t.name }

// Call implements Tool over an HTTP JSON-RPC round trip, matching spec.md
// §6's tool invocation contract (server, tool, params, dry_run in;
// result-or-error-with-retryable out).
func (t *HTTPTool) Call(ctx context.Context, params map[string]interface{}, dryRun bool) (ToolResult, error) {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0", Method: t.name, Params: params, DryRun: dryRun, ID: t.name,
	})
	if err != nil {
		return ToolResult{}, core.NewKernelError("HTTPTool.Call", core.ErrorKindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return ToolResult{}, core.NewKernelError("HTTPTool.Call", core.ErrorKindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return ToolResult{}, core.NewKernelError("HTTPTool.Call", core.ErrorKindServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ToolResult{}, core.NewKernelError("HTTPTool.Call", core.ErrorKindServiceUnavailable,
			fmt.Errorf("http %d from %s", resp.StatusCode, t.endpoint))
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return ToolResult{}, core.NewKernelError("HTTPTool.Call", core.ErrorKindContractViolation, err)
	}

	if rpcResp.Error != nil {
		kind := core.ErrorKindInternal
		if rpcResp.Error.Retryable {
			kind = core.ErrorKindServiceUnavailable
		}
		return ToolResult{Retryable: rpcResp.Error.Retryable}, core.NewKernelError("HTTPTool.Call", kind,
			fmt.Errorf("%s", rpcResp.Error.Message))
	}

	return ToolResult{Artifacts: rpcResp.Result}, nil
}
