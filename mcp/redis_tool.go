package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LuisChen1Q84/agentkernel/core"
	"github.com/go-redis/redis/v8"
)

// RedisTool is an async tool transport: it publishes a request envelope on
// a request channel and waits for a correlated response on a reply channel,
// grounded on the teacher's own go-redis/redis/v8 dependency (used
// elsewhere in the pack for task stores and session managers, repurposed
// here as a pub/sub transport).
type RedisTool struct {
	name          string
	client        *redis.Client
	requestChan   string
	replyChan     string
	replyTimeout  time.Duration
}

// redisToolEnvelope is the wire shape published on the request channel.
type redisToolEnvelope struct {
	CorrelationID string                 `json:"correlation_id"`
	Params        map[string]interface{} `json:"params"`
	DryRun        bool                   `json:"dry_run"`
}

type redisToolReply struct {
	CorrelationID string                 `json:"correlation_id"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Retryable     bool                   `json:"retryable"`
}

// NewRedisTool builds a pub/sub tool transport over an existing client.
func NewRedisTool(name string, client *redis.Client, requestChan, replyChan string, replyTimeout time.Duration) *RedisTool {
	if replyTimeout <= 0 {
		replyTimeout = 10 * time.Second
	}
	return &RedisTool{name: name, client: client, requestChan: requestChan, replyChan: replyChan, replyTimeout: replyTimeout}
}

func (t *RedisTool) Name() string { return t.name }

// Call publishes the request and blocks on the reply channel for a
// correlated response, bounded by replyTimeout and ctx.
func (t *RedisTool) Call(ctx context.Context, params map[string]interface{}, dryRun bool) (ToolResult, error) {
	correlationID := fmt.Sprintf("%s-%d", t.name, time.Now().UnixNano())

	callCtx, cancel := context.WithTimeout(ctx, t.replyTimeout)
	defer cancel()

	sub := t.client.Subscribe(callCtx, t.replyChan)
	defer sub.Close()

	envelope, err := json.Marshal(redisToolEnvelope{CorrelationID: correlationID, Params: params, DryRun: dryRun})
	if err != nil {
		return ToolResult{}, core.NewKernelError("RedisTool.Call", core.ErrorKindInternal, err)
	}
	if err := t.client.Publish(callCtx, t.requestChan, envelope).Err(); err != nil {
		return ToolResult{}, core.NewKernelError("RedisTool.Call", core.ErrorKindServiceUnavailable, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-callCtx.Done():
			return ToolResult{}, core.NewKernelError("RedisTool.Call", core.ErrorKindToolTimeout, callCtx.Err())
		case msg, ok := <-ch:
			if !ok {
				return ToolResult{}, core.NewKernelError("RedisTool.Call", core.ErrorKindServiceUnavailable,
					fmt.Errorf("reply channel closed"))
			}
			var reply redisToolReply
			if err := json.Unmarshal([]byte(msg.Payload), &reply); err != nil {
				continue
			}
			if reply.CorrelationID != correlationID {
				continue
			}
			if reply.Error != "" {
				kind := core.ErrorKindInternal
				if reply.Retryable {
					kind = core.ErrorKindServiceUnavailable
				}
				return ToolResult{Retryable: reply.Retryable}, core.NewKernelError("RedisTool.Call", kind, fmt.Errorf("%s", reply.Error))
			}
			return ToolResult{Artifacts: reply.Result}, nil
		}
	}
}
