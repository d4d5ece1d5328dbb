package turn

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
	"chatrun/internal/service/chatrun/events"
	"chatrun/internal/service/chatrun/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToSession(sessionID string, msg chatrun.ServerMessage) {}

type alwaysAllow struct{}

func (alwaysAllow) Allow(ctx context.Context, sessionID string) bool { return true }

func newTestSink(t *testing.T) *events.Sink {
	t.Helper()
	return events.New(t.TempDir(), events.AlwaysPersist{}, noopBroadcaster{}, testLogger())
}

// fakeReader returns a scripted sequence of ReadResults, one per call,
// letting a test drive the in-process iteration loop precisely.
type fakeReader struct {
	mu      sync.Mutex
	results []domainchatrun.ReadResult
	calls   int
}

func (r *fakeReader) Run(ctx context.Context, req domainchatrun.ReadRequest, onEvent func(chatrun.StreamEvent)) (domainchatrun.ReadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	if idx >= len(r.results) {
		idx = len(r.results) - 1
	}
	r.calls++
	return r.results[idx], nil
}

// fakeReaderFactory always hands back the same Reader, regardless of agent
// config, so tests can script the reader's behavior directly.
type fakeReaderFactory struct {
	reader domainchatrun.Reader
}

func (f *fakeReaderFactory) BuildReader(cfg *chatrun.ChatAgentConfig, attrs chatrun.SessionAttributes, ourSessionID, userText string) (domainchatrun.Reader, error) {
	return f.reader, nil
}

// echoTool returns a fixed result for every invocation, recording how many
// times it was called.
type echoTool struct {
	mu    sync.Mutex
	calls int
}

func (e *echoTool) Execute(ctx context.Context, input map[string]interface{}, toolCtx tools.Context) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return "ok", nil
}

func testChatConfig() *chatrun.ChatAgentConfig {
	return &chatrun.ChatAgentConfig{Provider: chatrun.ProviderInProcess, Model: "lorem-fast"}
}

func newRunnerWithReader(t *testing.T, reader domainchatrun.Reader, host *tools.Host) (*TurnRunner, *events.Sink) {
	t.Helper()
	sink := newTestSink(t)
	handler := NewStreamHandler(sink, noopBroadcaster{}, testLogger())
	runner := NewTurnRunner(handler, &fakeReaderFactory{reader: reader}, host, alwaysAllow{}, DefaultMessageBuilder{}, NewCodexSessionStore(t.TempDir()), testLogger())
	return runner, sink
}

func TestRunTurn_NoToolCalls(t *testing.T) {
	reader := &fakeReader{results: []domainchatrun.ReadResult{{AccumulatedText: "hello there"}}}
	runner, _ := newRunnerWithReader(t, reader, tools.NewHost())

	session := chatrun.NewSession("s1", "assistant", "lorem-fast")
	def := &chatrun.AgentDefinition{ID: "assistant", Type: chatrun.AgentTypeChat, Chat: testChatConfig()}

	result, err := runner.RunTurn(context.Background(), session, domainchatrun.RunTurnRequest{
		Text: "hi", ResponseID: "r1", Trigger: chatrun.TriggerUser, Agent: def,
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.FinalText != "hello there" {
		t.Fatalf("FinalText = %q, want %q", result.FinalText, "hello there")
	}
	if session.ActiveRun != nil {
		t.Fatal("ActiveRun should be cleared after the turn completes")
	}

	if len(session.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 (user + assistant)", len(session.Messages))
	}
	if session.Messages[0].Role != chatrun.RoleUser || session.Messages[1].Role != chatrun.RoleAssistant {
		t.Fatalf("unexpected message roles: %+v", session.Messages)
	}
}

// TestRunTurn_ToolCallBalance verifies the tool-balance invariant: every
// assistant tool call gets exactly one corresponding tool-role message.
func TestRunTurn_ToolCallBalance(t *testing.T) {
	call := chatrun.ToolCallState{ID: "call-1", Name: "echo"}
	call.ArgumentsRaw.WriteString(`{"x":1}`)

	reader := &fakeReader{results: []domainchatrun.ReadResult{
		{AccumulatedText: "", ToolCalls: []chatrun.ToolCallState{call}},
		{AccumulatedText: "done"},
	}}

	host := tools.NewHost()
	tool := &echoTool{}
	host.Register("echo", tool)

	runner, _ := newRunnerWithReader(t, reader, host)
	session := chatrun.NewSession("s1", "assistant", "lorem-fast")
	def := &chatrun.AgentDefinition{ID: "assistant", Type: chatrun.AgentTypeChat, Chat: testChatConfig()}

	result, err := runner.RunTurn(context.Background(), session, domainchatrun.RunTurnRequest{
		Text: "hi", ResponseID: "r1", Trigger: chatrun.TriggerUser, Agent: def,
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.FinalText != "done" {
		t.Fatalf("FinalText = %q, want %q", result.FinalText, "done")
	}
	if tool.calls != 1 {
		t.Fatalf("tool invoked %d times, want 1", tool.calls)
	}

	var toolCallCount, toolResultCount int
	for _, msg := range session.Messages {
		toolCallCount += len(msg.ToolCalls)
		if msg.Role == chatrun.RoleTool {
			toolResultCount++
		}
	}
	if toolCallCount != toolResultCount {
		t.Fatalf("tool call balance violated: %d calls, %d results", toolCallCount, toolResultCount)
	}
	if toolCallCount != 1 {
		t.Fatalf("expected exactly one tool call, got %d", toolCallCount)
	}
}

// TestRunTurn_IterationLimitEmitsTurnEnd: a turn_end event is always
// emitted, even when the tool-iteration ceiling is hit, so clients never
// have to special-case this failure path.
func TestRunTurn_IterationLimitEmitsTurnEnd(t *testing.T) {
	call := chatrun.ToolCallState{ID: "call-1", Name: "echo"}
	reader := &fakeReader{results: []domainchatrun.ReadResult{
		{AccumulatedText: "", ToolCalls: []chatrun.ToolCallState{call}},
	}}

	host := tools.NewHost()
	host.Register("echo", &echoTool{})

	runner, sink := newRunnerWithReader(t, reader, host)
	session := chatrun.NewSession("s1", "assistant", "lorem-fast")
	cfg := testChatConfig()
	cfg.MaxToolIterations = 1
	def := &chatrun.AgentDefinition{ID: "assistant", Type: chatrun.AgentTypeChat, Chat: cfg}

	if _, err := runner.RunTurn(context.Background(), session, domainchatrun.RunTurnRequest{
		Text: "hi", ResponseID: "r1", Trigger: chatrun.TriggerUser, Agent: def,
	}); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	events, err := sink.GetEvents("s1")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}

	var sawTurnEnd bool
	for _, ev := range events {
		if ev.Type == chatrun.EventTurnEnd {
			sawTurnEnd = true
			var payload chatrun.TurnEndPayload
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				t.Fatalf("unmarshal turn_end payload: %v", err)
			}
			if payload.Reason != "tool_iteration_limit" {
				t.Fatalf("turn_end reason = %q, want tool_iteration_limit", payload.Reason)
			}
		}
	}
	if !sawTurnEnd {
		t.Fatal("expected a turn_end event even when the iteration ceiling was hit")
	}
}
