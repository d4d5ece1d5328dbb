package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
	"chatrun/internal/service/chatrun/agent"
	"chatrun/internal/service/chatrun/tools"
)

// ReaderFactory builds the Reader a turn should drive for an agent's chat
// config. *agent.ReaderFactory is the production implementation; tests
// substitute a fake to exercise the Turn Runner without a real provider.
type ReaderFactory interface {
	BuildReader(cfg *chatrun.ChatAgentConfig, attrs chatrun.SessionAttributes, ourSessionID, userText string) (domainchatrun.Reader, error)
}

var _ ReaderFactory = (*agent.ReaderFactory)(nil)

// TurnRunner is the concrete Turn Runner: it drives one
// full turn, dispatching to the in-process iteration loop or a single CLI
// invocation depending on the agent's ProviderIdentity, and owns the
// ActiveRun's lifecycle on the session.
type TurnRunner struct {
	handler        *StreamHandler
	readers        ReaderFactory
	toolHost       *tools.Host
	limiter        domainchatrun.ToolCallLimiter
	messageBuilder domainchatrun.MessageBuilder
	codexStore     *CodexSessionStore
	interactions   tools.InteractionRequester
	logger         *slog.Logger
}

// SetInteractionRequester attaches an interaction registry; without one,
// tools see a nil Interactions handle and must fail interaction requests
// with interaction_unavailable.
func (r *TurnRunner) SetInteractionRequester(requester tools.InteractionRequester) {
	r.interactions = requester
}

func NewTurnRunner(
	handler *StreamHandler,
	readers ReaderFactory,
	toolHost *tools.Host,
	limiter domainchatrun.ToolCallLimiter,
	messageBuilder domainchatrun.MessageBuilder,
	codexStore *CodexSessionStore,
	logger *slog.Logger,
) *TurnRunner {
	return &TurnRunner{
		handler:        handler,
		readers:        readers,
		toolHost:       toolHost,
		limiter:        limiter,
		messageBuilder: messageBuilder,
		codexStore:     codexStore,
		logger:         logger,
	}
}

var _ domainchatrun.TurnRunner = (*TurnRunner)(nil)

// RunTurn implements domainchatrun.TurnRunner.
func (r *TurnRunner) RunTurn(ctx context.Context, session *chatrun.Session, req domainchatrun.RunTurnRequest) (domainchatrun.RunTurnResult, error) {
	if req.Agent == nil || req.Agent.Chat == nil {
		return domainchatrun.RunTurnResult{}, fmt.Errorf("turn runner requires a type=chat agent definition")
	}
	cfg := req.Agent.Chat

	turnCtx, cancel := context.WithCancel(ctx)
	run := chatrun.NewActiveRun(req.ResponseID, uuid.NewString(), cancel)
	run.AgentExchangeID = req.AgentExchangeID
	run.ForwardChunksTo = req.ForwardChunksTo

	session.Lock()
	session.ActiveRun = run
	sessionID := session.ID
	session.Messages = append(session.Messages, chatrun.ChatMessage{Role: chatrun.RoleUser, Content: req.Text})
	session.Unlock()

	defer func() {
		session.Lock()
		session.ActiveRun = nil
		session.Unlock()
		cancel()
	}()

	r.appendEvent(turnCtx, sessionID, run, chatrun.EventTurnStart, chatrun.TurnStartPayload{Trigger: req.Trigger})
	if req.Trigger != chatrun.TriggerCallback {
		r.appendEvent(turnCtx, sessionID, run, chatrun.EventUserMessage, chatrun.UserMessagePayload{Text: req.Text})
	}

	var (
		aborted           bool
		finalText         string
		providerBlob      []byte
		iterationLimitHit bool
		runErr            error
	)

	if cfg.Provider == chatrun.ProviderInProcess {
		res, err := r.runInProcess(turnCtx, session, run, cfg, req.Text, sessionID)
		aborted, finalText, providerBlob, iterationLimitHit, runErr = res.aborted, res.finalText, res.providerBlob, res.iterationLimitHit, err
	} else {
		aborted, finalText, runErr = r.runCLI(turnCtx, session, run, cfg, req, sessionID)
	}

	if runErr != nil {
		r.handler.EmitErrorFrame(sessionID, "provider_error", runErr.Error(), true)
		r.appendEvent(turnCtx, sessionID, run, chatrun.EventTurnEnd, chatrun.TurnEndPayload{Reason: "error"})
		return domainchatrun.RunTurnResult{Aborted: true}, runErr
	}

	if aborted {
		// A cancel mid-tool-batch leaves the assistant's partial text
		// referring to tool results that never landed; only push it to
		// history when no tool call was still in flight. A cancel through
		// the Hub has already made that choice (and answered the in-flight
		// calls, emptying ActiveToolCalls), so it is not pushed again here.
		if !run.OutputCancelled && len(run.ActiveToolCalls) == 0 && finalText != "" {
			session.Lock()
			session.Messages = append(session.Messages, chatrun.ChatMessage{Role: chatrun.RoleAssistant, Content: finalText, ProviderBlob: providerBlob})
			session.Unlock()
		}
		r.appendEvent(turnCtx, sessionID, run, chatrun.EventTurnEnd, chatrun.TurnEndPayload{Reason: "cancelled"})
		return domainchatrun.RunTurnResult{Aborted: true, FinalText: finalText}, nil
	}

	// The in-process loop pushes a history entry for every tool-calling
	// iteration itself; the turn's final reply (in-process or CLI) is
	// pushed once here, carrying the provider-native blob if applicable.
	session.Lock()
	session.Messages = append(session.Messages, chatrun.ChatMessage{Role: chatrun.RoleAssistant, Content: finalText, ProviderBlob: providerBlob})
	session.Unlock()

	r.appendEvent(turnCtx, sessionID, run, chatrun.EventAssistantDone, chatrun.AssistantDonePayload{Text: finalText})
	r.handler.broadcaster.BroadcastToSession(sessionID, chatrun.ServerTextDoneMessage{ResponseID: run.ResponseID, Text: finalText, AgentExchangeID: run.AgentExchangeID})

	if run.TTSSession != nil {
		if err := run.TTSSession.Finalize(); err != nil {
			r.logger.Warn("tts finalize failed, swallowing", "session_id", sessionID, "error", err)
		}
	}
	session.RecordActivity(finalText)

	reason := ""
	if iterationLimitHit {
		reason = "tool_iteration_limit"
		r.handler.EmitErrorFrame(sessionID, "tool_iteration_limit",
			fmt.Sprintf("maximum tool iterations (%d) reached for this turn", cfg.EffectiveMaxToolIterations()), false)
	}
	r.appendEvent(turnCtx, sessionID, run, chatrun.EventTurnEnd, chatrun.TurnEndPayload{Reason: reason})

	return domainchatrun.RunTurnResult{FinalText: finalText}, nil
}

type inProcessResult struct {
	aborted           bool
	finalText         string
	providerBlob      []byte
	iterationLimitHit bool
}

// runInProcess drives the iteration loop: one Reader.Run call per round,
// dispatching every returned tool call through the Scoped Tool Host before
// looping back with the tool results appended to history.
func (r *TurnRunner) runInProcess(turnCtx context.Context, session *chatrun.Session, run *chatrun.ActiveRun, cfg *chatrun.ChatAgentConfig, userText, sessionID string) (inProcessResult, error) {
	// In-process providers replay the turn's text from session history
	// (BuildMessages below), not from a CLI argument; userText only matters
	// to the CLI path, but BuildReader's signature is shared.
	reader, err := r.readers.BuildReader(cfg, chatrun.SessionAttributes{}, sessionID, userText)
	if err != nil {
		return inProcessResult{}, fmt.Errorf("agent_config_error: %w", err)
	}

	scope := scopeFor(cfg)
	maxIterations := cfg.EffectiveMaxToolIterations()
	toolDefs := r.toolHost.Definitions()

	for iteration := 0; iteration < maxIterations; iteration++ {
		session.Lock()
		history, buildErr := r.messageBuilder.BuildMessages(session.Messages)
		session.Unlock()
		if buildErr != nil {
			return inProcessResult{finalText: run.AccumulatedText}, fmt.Errorf("build messages: %w", buildErr)
		}

		readReq := domainchatrun.ReadRequest{
			Messages:  history,
			Tools:     toolDefs,
			Model:     cfg.Model,
			Reasoning: cfg.ReasoningLevel,
		}

		result, runErr := reader.Run(turnCtx, readReq, func(ev chatrun.StreamEvent) {
			r.handler.Handle(turnCtx, sessionID, run, ev)
		})
		if runErr != nil {
			return inProcessResult{aborted: result.Aborted, finalText: result.AccumulatedText}, runErr
		}
		if result.Aborted {
			return inProcessResult{aborted: true, finalText: result.AccumulatedText}, nil
		}

		if len(result.ToolCalls) == 0 {
			// This is the turn's winning reply: leave it for the caller to
			// push into history once (with ProviderBlob attached), instead
			// of pushing it here too and leaving the caller to push it
			// again — that would record it in session history twice.
			return inProcessResult{finalText: result.AccumulatedText, providerBlob: result.ProviderBlob}, nil
		}

		assistantMsg := chatrun.ChatMessage{Role: chatrun.RoleAssistant, Content: result.AccumulatedText, ProviderBlob: result.ProviderBlob}
		for _, call := range result.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, chatrun.ToolCallRequest{
				ID:           call.ID,
				ToolName:     call.Name,
				ArgumentsRaw: call.ArgumentsRaw.String(),
			})
		}
		session.Lock()
		session.Messages = append(session.Messages, assistantMsg)
		session.Unlock()

		if interrupted := r.dispatchToolCalls(turnCtx, session, run, scope, result.ToolCalls, sessionID); interrupted {
			return inProcessResult{aborted: true, finalText: run.AccumulatedText}, nil
		}
	}

	return inProcessResult{finalText: run.AccumulatedText, iterationLimitHit: true}, nil
}

// dispatchToolCalls invokes each call against the Scoped Tool Host in
// order, gated by the per-session rate limiter (step 1), and reports
// whether the batch was cut short by cancellation.
func (r *TurnRunner) dispatchToolCalls(turnCtx context.Context, session *chatrun.Session, run *chatrun.ActiveRun, scope *tools.Scope, calls []chatrun.ToolCallState, sessionID string) (interrupted bool) {
	for _, call := range calls {
		if turnCtx.Err() != nil || run.OutputCancelled {
			return true
		}

		if !r.limiter.Allow(turnCtx, sessionID) {
			errInfo := &chatrun.ToolErrorInfo{Code: chatrun.ErrRateLimitTools, Message: "tool call rate limit exceeded for this session"}
			r.handler.Handle(turnCtx, sessionID, run, chatrun.ToolResult{CallID: call.ID, ToolName: call.Name, OK: false, Err: errInfo})
			r.appendToolMessage(session, call.ID, chatrun.ToolResultPayload{OK: false, Error: errInfo})
			r.handler.EmitErrorFrame(sessionID, chatrun.ErrRateLimitTools, "tool call rate limit exceeded for this session", false)
			continue
		}

		var input map[string]interface{}
		if raw := call.ArgumentsRaw.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &input); err != nil {
				input = map[string]interface{}{}
			}
		}

		callID, toolName := call.ID, call.Name
		toolCtx := tools.Context{
			Ctx:          turnCtx,
			SessionID:    sessionID,
			TurnID:       run.TurnID,
			ResponseID:   run.ResponseID,
			ToolCallID:   callID,
			Events:       r.handler.sink,
			Interactions: r.interactions,
			Broadcast: func(msg chatrun.ServerMessage) {
				r.handler.broadcaster.BroadcastToSession(sessionID, msg)
			},
			OnUpdate: func(delta string) {
				r.handler.Handle(turnCtx, sessionID, run, chatrun.ToolOutputDelta{CallID: callID, ToolName: toolName, Chunk: delta, Stream: chatrun.ToolOutputStdout})
			},
		}

		payload := r.toolHost.Invoke(scope, toolName, input, toolCtx)
		if turnCtx.Err() != nil || run.OutputCancelled {
			// The cancel handler has already answered this call in history.
			return true
		}
		r.handler.Handle(turnCtx, sessionID, run, chatrun.ToolResult{CallID: callID, ToolName: toolName, OK: payload.OK, Result: payload.Result, Err: payload.Error})
		r.appendToolMessage(session, callID, payload)
	}
	return false
}

// runCLI dispatches a single CLI invocation: the subprocess owns its own
// tool execution and transcript, so the Turn Runner only relays stream
// events and persists session continuity state.
func (r *TurnRunner) runCLI(turnCtx context.Context, session *chatrun.Session, run *chatrun.ActiveRun, cfg *chatrun.ChatAgentConfig, req domainchatrun.RunTurnRequest, sessionID string) (aborted bool, finalText string, err error) {
	session.Lock()
	attrs := session.Attributes
	session.Unlock()

	if cfg.Provider == chatrun.ProviderCLIB && attrs.CLISessionID == "" {
		if cliSessionID, ok := r.codexStore.Get(sessionID); ok {
			attrs.CLISessionID = cliSessionID
		}
	}
	if attrs.WorkingDir == "" {
		attrs.WorkingDir = resolveWorkingDir(cfg)
	}

	reader, buildErr := r.readers.BuildReader(cfg, attrs, sessionID, req.Text)
	if buildErr != nil {
		return false, "", fmt.Errorf("agent_config_error: %w", buildErr)
	}

	readReq := domainchatrun.ReadRequest{
		Model:             cfg.Model,
		SessionAttributes: attrs,
	}

	result, runErr := reader.Run(turnCtx, readReq, func(ev chatrun.StreamEvent) {
		if info, ok := ev.(chatrun.SessionInfo); ok {
			r.recordSessionInfo(session, sessionID, cfg, info)
			return
		}
		r.handler.Handle(turnCtx, sessionID, run, ev)
	})
	if runErr != nil {
		return result.Aborted, result.AccumulatedText, runErr
	}
	return result.Aborted, result.AccumulatedText, nil
}

func (r *TurnRunner) recordSessionInfo(session *chatrun.Session, sessionID string, cfg *chatrun.ChatAgentConfig, info chatrun.SessionInfo) {
	session.Lock()
	if info.SessionID != "" {
		session.Attributes.CLISessionID = info.SessionID
	}
	if info.Cwd != "" {
		session.Attributes.WorkingDir = info.Cwd
	}
	session.Unlock()

	if cfg.Provider == chatrun.ProviderCLIB && info.SessionID != "" {
		if err := r.codexStore.Set(sessionID, info.SessionID); err != nil {
			r.logger.Warn("codex session store write failed", "session_id", sessionID, "error", err)
		}
		rewriteCodexTranscriptSource(info.SessionID, r.logger)
	}
}

func (r *TurnRunner) appendToolMessage(session *chatrun.Session, callID string, payload chatrun.ToolResultPayload) {
	session.Lock()
	defer session.Unlock()
	session.Messages = append(session.Messages, chatrun.ChatMessage{
		Role:       chatrun.RoleTool,
		Content:    chatrun.EncodeToolResultPayload(payload),
		ToolCallID: callID,
	})
}

func (r *TurnRunner) appendEvent(ctx context.Context, sessionID string, run *chatrun.ActiveRun, eventType chatrun.EventType, payload interface{}) {
	if err := r.handler.sink.Append(ctx, sessionID, chatrun.ChatEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UnixMilli(),
		SessionID:  sessionID,
		TurnID:     run.TurnID,
		ResponseID: run.ResponseID,
		Type:       eventType,
		Payload:    chatrun.EncodePayload(payload),
	}); err != nil {
		r.logger.Error("event sink append failed", "session_id", sessionID, "type", eventType, "error", err)
	}
}

func scopeFor(cfg *chatrun.ChatAgentConfig) *tools.Scope {
	if cfg.AllowedTools == nil && cfg.DeniedTools == nil {
		return nil
	}
	scope := &tools.Scope{}
	if cfg.AllowedTools != nil {
		scope.Allow = make(map[string]bool, len(cfg.AllowedTools))
		for _, name := range cfg.AllowedTools {
			scope.Allow[name] = true
		}
	}
	if cfg.DeniedTools != nil {
		scope.Deny = make(map[string]bool, len(cfg.DeniedTools))
		for _, name := range cfg.DeniedTools {
			scope.Deny[name] = true
		}
	}
	return scope
}

// resolveWorkingDir falls back from the agent's configured working
// directory to the operator's home directory, then the process cwd.
func resolveWorkingDir(cfg *chatrun.ChatAgentConfig) string {
	if cfg.WorkingDir != "" {
		return cfg.WorkingDir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return ""
}
