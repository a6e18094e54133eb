// Package rpc implements the JSON-RPC 2.0 surface of WorkBridge: the
// request dispatcher and the HTTP transport it rides on.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/workbridge/workbridge/internal/audit"
	"github.com/workbridge/workbridge/internal/telemetry"
	"github.com/workbridge/workbridge/internal/tool"
)

// ProtocolVersion is the only accepted jsonrpc literal.
const ProtocolVersion = "2.0"

const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// JSON-RPC error codes.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type ctxKey string

const ctxKeyTraceID ctxKey = "trace_id"

// WithTraceID attaches a trace id to the context; TraceID reads it back.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, traceID)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyTraceID).(string)
	return id
}

// Request is one decoded JSON-RPC envelope. A nil ID marks a
// notification: the request is executed but no response body is emitted.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response carries exactly one of Result or Error. A nil ID marshals as
// the JSON null required when the request id could not be read.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Dispatcher routes decoded requests to the tool registry. It is
// stateless across calls; the registry is the only shared state it reads.
type Dispatcher struct {
	registry *tool.Registry
	logger   *slog.Logger
	audit    *audit.Store // nil when auditing is not configured
}

func NewDispatcher(registry *tool.Registry, logger *slog.Logger, auditStore *audit.Store) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger, audit: auditStore}
}

// Dispatch handles one request and reports whether a response body should
// be written. Notifications run the full execution path, so side effects
// happen exactly once; only the response is suppressed.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (Response, bool) {
	if req == nil {
		return Response{
			JSONRPC: ProtocolVersion,
			Error:   &Error{Code: CodeInvalidRequest, Message: "invalid request"},
		}, true
	}

	base := Response{JSONRPC: ProtocolVersion, ID: req.ID}
	hasBody := !req.IsNotification()

	if req.JSONRPC != ProtocolVersion {
		base.Error = &Error{Code: CodeInvalidRequest, Message: "Invalid JSON-RPC version"}
		return base, hasBody
	}

	switch req.Method {
	case MethodToolsList:
		base.Result = map[string]any{"tools": d.registry.List()}
	case MethodToolsCall:
		base = d.handleToolCall(ctx, req, base)
	default:
		base.Error = &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
	return base, hasBody
}

type toolCallParams struct {
	Name      string                     `json:"name"`
	Arguments map[string]json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleToolCall(ctx context.Context, req *Request, base Response) Response {
	if len(req.Params) == 0 {
		base.Error = &Error{Code: CodeInvalidParams, Message: "params are required for tools/call"}
		return base
	}
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		base.Error = &Error{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
		return base
	}

	t, ok := d.registry.Get(params.Name)
	if params.Name == "" || !ok {
		base.Error = &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("tool not found: %s", params.Name)}
		return base
	}

	bag := tool.NewParameterBag()
	for key, value := range params.Arguments {
		bag.Add(key, value)
	}

	start := time.Now()
	result, err := t.Execute(ctx, bag)
	duration := time.Since(start)

	status := "ok"
	errText := ""
	switch {
	case err != nil:
		status = "error"
		errText = err.Error()
	case !result.Success:
		status = "failed"
		errText = result.ErrorMessage
	}
	telemetry.IncToolCall(params.Name, status)
	telemetry.ObserveToolDuration(params.Name, duration)
	d.record(ctx, params, status, errText, duration)

	if err != nil {
		var missing *tool.MissingParameterError
		var mismatch *tool.TypeMismatchError
		if errors.As(err, &missing) || errors.As(err, &mismatch) {
			base.Error = &Error{Code: CodeInvalidParams, Message: err.Error()}
			return base
		}
		d.logger.Error("tool execution failed",
			"trace_id", TraceID(ctx),
			"tool_name", params.Name,
			"err", err,
		)
		base.Error = &Error{Code: CodeInternalError, Message: "tool execution failed", Data: err.Error()}
		return base
	}

	d.logger.Info("tool call completed",
		"trace_id", TraceID(ctx),
		"tool_name", params.Name,
		"success", result.Success,
		"duration", fmt.Sprintf("%dms", duration.Milliseconds()),
	)

	// A tool-reported failure is a successful protocol exchange carrying
	// a failure payload, not an RPC error.
	base.Result = result
	return base
}

// record writes the audit entry when a store is configured. Audit is
// best-effort: a write failure is counted and logged, never surfaced to
// the caller.
func (d *Dispatcher) record(ctx context.Context, params toolCallParams, status, errText string, duration time.Duration) {
	if d.audit == nil {
		return
	}
	entry := &audit.Entry{
		CallID:     uuid.New().String(),
		TraceID:    TraceID(ctx),
		ToolName:   params.Name,
		ArgsDigest: audit.DigestArguments(params.Arguments),
		Status:     status,
		ErrorText:  errText,
		Duration:   duration,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.audit.Record(ctx, entry); err != nil {
		telemetry.IncAuditWriteFailure()
		d.logger.Error("audit record failed", "trace_id", entry.TraceID, "err", err)
	}
}
