package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/workbridge/workbridge/internal/tool"
)

type recordingTool struct {
	name     string
	execs    atomic.Int32
	result   tool.Result
	err      error
	required string
}

func (r *recordingTool) Name() string        { return r.name }
func (r *recordingTool) Description() string { return "test tool" }
func (r *recordingTool) Execute(ctx context.Context, bag *tool.ParameterBag) (tool.Result, error) {
	r.execs.Add(1)
	if r.required != "" {
		if _, err := tool.GetRequired[string](bag, r.required); err != nil {
			return tool.Result{}, err
		}
	}
	return r.result, r.err
}

func testDispatcher(tools ...tool.Tool) *Dispatcher {
	registry := tool.NewRegistry()
	for _, t := range tools {
		registry.Register(t)
	}
	logger := slog.New(slog.DiscardHandler)
	return NewDispatcher(registry, logger, nil)
}

func callRequest(t *testing.T, name string, args map[string]any, id string) *Request {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	req := &Request{JSONRPC: ProtocolVersion, Method: MethodToolsCall, Params: params}
	if id != "" {
		req.ID = json.RawMessage(id)
	}
	return req
}

func TestDispatchRejectsWrongVersion(t *testing.T) {
	d := testDispatcher()
	for _, version := range []string{"", "1.0", "2.1"} {
		resp, hasBody := d.Dispatch(context.Background(), &Request{
			JSONRPC: version,
			Method:  MethodToolsList,
			ID:      json.RawMessage(`1`),
		})
		if !hasBody {
			t.Fatal("expected a response body")
		}
		if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
			t.Fatalf("version %q: error = %+v", version, resp.Error)
		}
		if string(resp.ID) != "1" {
			t.Fatalf("id = %s, want request id echoed", resp.ID)
		}
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	d := testDispatcher()
	resp, _ := d.Dispatch(context.Background(), &Request{
		JSONRPC: ProtocolVersion,
		Method:  "tools/destroy",
		ID:      json.RawMessage(`2`),
	})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("error = %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "tools/destroy") {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestDispatchToolsList(t *testing.T) {
	d := testDispatcher(
		&recordingTool{name: "beta"},
		&recordingTool{name: "alpha"},
	)
	resp, _ := d.Dispatch(context.Background(), &Request{
		JSONRPC: ProtocolVersion,
		Method:  MethodToolsList,
		ID:      json.RawMessage(`3`),
	})
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	tools, ok := result["tools"].([]tool.Descriptor)
	if !ok {
		t.Fatalf("tools type %T", result["tools"])
	}
	if len(tools) != 2 || tools[0].Name != "alpha" || tools[1].Name != "beta" {
		t.Fatalf("tools = %+v", tools)
	}
}

func TestDispatchToolCallSuccess(t *testing.T) {
	rt := &recordingTool{name: "echo", result: tool.Result{Success: true, Data: "pong"}}
	d := testDispatcher(rt)

	resp, hasBody := d.Dispatch(context.Background(), callRequest(t, "echo", nil, "4"))
	if !hasBody {
		t.Fatal("expected a response body")
	}
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	result, ok := resp.Result.(tool.Result)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if !result.Success || result.Data != "pong" {
		t.Fatalf("result = %+v", result)
	}
}

func TestDispatchToolCallBusinessFailureIsNotRPCError(t *testing.T) {
	rt := &recordingTool{
		name:   "flaky",
		result: tool.Result{Success: false, ErrorMessage: "upstream rejected", ErrorCode: 403},
	}
	d := testDispatcher(rt)

	resp, _ := d.Dispatch(context.Background(), callRequest(t, "flaky", nil, "5"))
	if resp.Error != nil {
		t.Fatalf("business failure leaked as RPC error: %+v", resp.Error)
	}
	result := resp.Result.(tool.Result)
	if result.Success || result.ErrorMessage != "upstream rejected" || result.ErrorCode != 403 {
		t.Fatalf("result = %+v", result)
	}
}

func TestDispatchToolCallMissingParameter(t *testing.T) {
	rt := &recordingTool{name: "strict", required: "title"}
	d := testDispatcher(rt)

	resp, _ := d.Dispatch(context.Background(), callRequest(t, "strict", nil, "6"))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "title") {
		t.Fatalf("message = %q, want the parameter name", resp.Error.Message)
	}
}

func TestDispatchToolCallInternalError(t *testing.T) {
	rt := &recordingTool{name: "boom", err: errors.New("connection reset")}
	d := testDispatcher(rt)

	resp, _ := d.Dispatch(context.Background(), callRequest(t, "boom", nil, "7"))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("error = %+v", resp.Error)
	}
	if resp.Error.Data != "connection reset" {
		t.Fatalf("data = %v", resp.Error.Data)
	}
}

func TestDispatchToolCallUnknownTool(t *testing.T) {
	d := testDispatcher()
	resp, _ := d.Dispatch(context.Background(), callRequest(t, "ghost", nil, "8"))
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("error = %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "ghost") {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestDispatchToolCallMissingParams(t *testing.T) {
	d := testDispatcher()
	resp, _ := d.Dispatch(context.Background(), &Request{
		JSONRPC: ProtocolVersion,
		Method:  MethodToolsCall,
		ID:      json.RawMessage(`9`),
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestNotificationExecutesOnceWithoutBody(t *testing.T) {
	rt := &recordingTool{name: "fire", result: tool.Result{Success: true}}
	d := testDispatcher(rt)

	_, hasBody := d.Dispatch(context.Background(), callRequest(t, "fire", nil, ""))
	if hasBody {
		t.Fatal("notification produced a response body")
	}
	if rt.execs.Load() != 1 {
		t.Fatalf("tool executed %d times, want 1", rt.execs.Load())
	}
}

func TestNotificationSuppressesErrorsToo(t *testing.T) {
	d := testDispatcher()
	_, hasBody := d.Dispatch(context.Background(), callRequest(t, "ghost", nil, ""))
	if hasBody {
		t.Fatal("notification error produced a response body")
	}
}

func TestDispatchNilRequest(t *testing.T) {
	d := testDispatcher()
	resp, hasBody := d.Dispatch(context.Background(), nil)
	if !hasBody {
		t.Fatal("expected a response body")
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("error = %+v", resp.Error)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	if !strings.Contains(string(body), `"id":null`) {
		t.Fatalf("body = %s, want id null", body)
	}
}

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc-123")
	if got := TraceID(ctx); got != "abc-123" {
		t.Fatalf("TraceID = %q", got)
	}
	if got := TraceID(context.Background()); got != "" {
		t.Fatalf("TraceID on empty context = %q", got)
	}
}
