// Package tool implements the capability layer of WorkBridge: the Tool
// interface, the thread-safe name registry, and the ParameterBag used to
// decode tool-call arguments.
package tool

import "context"

// Tool is a named capability invokable through the JSON-RPC dispatcher.
//
// Execute returns a non-nil error only for protocol-level argument
// failures (MissingParameterError, TypeMismatchError) or unexpected
// internal faults. A failure of the action itself, such as the external
// API rejecting the request, is reported as a Result with Success=false,
// never as an error.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, bag *ParameterBag) (Result, error)
}

// Result is the outcome of a tool execution. When Success is false, Data
// is left empty and ErrorMessage/ErrorCode describe the failure.
type Result struct {
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorCode    int    `json:"errorCode,omitempty"`
}

// Descriptor is the projection of a tool exposed by tools/list.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
