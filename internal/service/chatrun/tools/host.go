// Package tools implements the Scoped Tool Host: the per-agent allow/deny
// gate and dispatcher the Turn Runner calls for every tool invocation.
package tools

import (
	"context"
	"fmt"

	"chatrun/internal/domain/models/chatrun"
)

// Executor performs one tool's work. Implementations must be thread-safe
// and respect context cancellation; the returned value must be
// JSON-serializable.
type Executor interface {
	Execute(ctx context.Context, input map[string]interface{}, toolCtx Context) (interface{}, error)
}

// EventStore is the read surface of the Event Sink that history-aware
// tools may use. Typed narrowly here so the tools package never depends on
// the sink's concrete implementation.
type EventStore interface {
	GetEvents(sessionID string) ([]chatrun.ChatEvent, error)
	GetEventsSince(sessionID, afterEventID string) ([]chatrun.ChatEvent, error)
}

// InteractionRequest asks the user for an approval or an input mid-tool.
type InteractionRequest struct {
	Type         string
	Prompt       string
	Schema       map[string]interface{}
	TimeoutMs    int
	Presentation string
}

// UserResponse is what a completed interaction hands back to the tool.
type UserResponse struct {
	Value interface{}
}

// InteractionRequester yields a UserResponse, or an error carrying the
// interaction_timeout / interaction_unavailable code, which the tool turns
// into its own ToolError.
type InteractionRequester interface {
	RequestInteraction(ctx context.Context, req InteractionRequest) (*UserResponse, error)
}

// Context is passed to every tool invocation: the turn's cancel signal,
// identifying ids, collaborator handles, and an onUpdate callback the tool
// may call zero or more times to stream incremental output.
type Context struct {
	Ctx        context.Context
	SessionID  string
	TurnID     string
	ResponseID string
	ToolCallID string

	// Events exposes the session's persisted event log to tools that need
	// history. The Turn Runner always sets it to its Event Sink.
	Events EventStore

	// Broadcast sends a client-visible frame to the tool's own session.
	Broadcast func(msg chatrun.ServerMessage)

	// Interactions requests an approval or input from the user. Nil when
	// no interaction registry is attached; tools must treat that as
	// interaction_unavailable.
	Interactions InteractionRequester

	// OnUpdate delivers an incremental output chunk for long-running tools
	// (e.g. a shell command's stdout). Tools that complete synchronously
	// may never call it.
	OnUpdate func(delta string)
}

// ToolError is a typed failure a tool may return instead of a generic
// error, carrying a stable code the client can react to.
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// Scope gates which tool names an agent may invoke. A nil Scope allows
// everything.
type Scope struct {
	Allow map[string]bool
	Deny  map[string]bool
}

func (s *Scope) permits(name string) bool {
	if s == nil {
		return true
	}
	if s.Deny != nil && s.Deny[name] {
		return false
	}
	if s.Allow != nil {
		return s.Allow[name]
	}
	return true
}

// Host is the Scoped Tool Host: a registry of Executors plus the
// per-invocation allow/deny gating. Rate limiting is not done here; the
// Turn Runner applies its own limiter before calling Invoke.
type Host struct {
	executors map[string]Executor
}

func NewHost() *Host {
	return &Host{executors: make(map[string]Executor)}
}

func (h *Host) Register(name string, executor Executor) {
	h.executors[name] = executor
}

func (h *Host) Definitions() []chatrun.ToolDefinition {
	defs := make([]chatrun.ToolDefinition, 0, len(h.executors))
	for name := range h.executors {
		defs = append(defs, chatrun.ToolDefinition{Name: name})
	}
	return defs
}

// Invoke runs one tool call within scope, normalizing any failure into
// chatrun.ToolResultPayload: a *ToolError
// becomes {code, message}; any other error normalizes to tool_error.
func (h *Host) Invoke(scope *Scope, name string, input map[string]interface{}, toolCtx Context) chatrun.ToolResultPayload {
	if !scope.permits(name) {
		return chatrun.ToolResultPayload{
			OK:    false,
			Error: &chatrun.ToolErrorInfo{Code: chatrun.ErrToolNotAllowed, Message: fmt.Sprintf("tool %q is not allowed for this agent", name)},
		}
	}

	executor, ok := h.executors[name]
	if !ok {
		return chatrun.ToolResultPayload{
			OK:    false,
			Error: &chatrun.ToolErrorInfo{Code: chatrun.ErrToolGeneric, Message: fmt.Sprintf("tool %q is not registered", name)},
		}
	}

	result, err := executor.Execute(toolCtx.Ctx, input, toolCtx)
	if err == nil {
		return chatrun.ToolResultPayload{OK: true, Result: result}
	}

	var toolErr *ToolError
	if te, ok := err.(*ToolError); ok {
		toolErr = te
		return chatrun.ToolResultPayload{OK: false, Error: &chatrun.ToolErrorInfo{Code: toolErr.Code, Message: toolErr.Message}}
	}
	return chatrun.ToolResultPayload{OK: false, Error: &chatrun.ToolErrorInfo{Code: chatrun.ErrToolGeneric, Message: "Tool call failed"}}
}
