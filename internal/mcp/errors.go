// Package mcp implements the Model Context Protocol (MCP) server exposing
// the C2-C8 pipeline as the spec §6 tool surface.
package mcp

import (
	"context"
	"errors"
	"fmt"

	engerrors "github.com/codeintel-go/engine/internal/errors"
)

// Standard JSON-RPC error codes, plus a few engine-specific ones in the
// -32000 application-defined range.
const (
	ErrCodeIndexNotFound = -32001
	ErrCodeTimeout        = -32003
	ErrCodeFileNotFound   = -32004

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use, independent of engerrors.EngineError.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidParams    = errors.New("invalid parameters")
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error to an MCPError, using the
// EngineError taxonomy's category when available and falling back to
// sentinel/stdlib checks otherwise.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ee *engerrors.EngineError
	if errors.As(err, &ee) {
		return mapEngineError(ee)
	}

	switch {
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// mapEngineError converts an EngineError to an MCPError by category, the
// way the engine's own codes.go groups them.
func mapEngineError(ee *engerrors.EngineError) *MCPError {
	message := ee.Message
	if ee.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ee.Message, ee.Suggestion)
	}

	switch ee.Category {
	case engerrors.CategoryInput:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case engerrors.CategoryState:
		switch ee.Code {
		case engerrors.CodeIndexNotFound, engerrors.CodeWorkspaceNotIndexed:
			return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: message}
		}
	case engerrors.CategoryResource:
		switch ee.Code {
		case engerrors.CodeFileNotFound, engerrors.CodeSymbolNotFound:
			return &MCPError{Code: ErrCodeFileNotFound, Message: message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: message}
		}
	case engerrors.CategoryCapacity:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default: // CategoryExecution and unknown
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}
