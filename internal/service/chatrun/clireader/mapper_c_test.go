package clireader

import (
	"strings"
	"testing"

	"chatrun/internal/domain/models/chatrun"
)

func TestMapperC_SessionHeaderReportsIDAndCwd(t *testing.T) {
	events := collectEvents(t, NewMapperC(), []string{
		`{"type":"session_header","session":{"id":"P1","cwd":"/work"}}`,
	})
	info := events[0].(chatrun.SessionInfo)
	if info.SessionID != "P1" || info.Cwd != "/work" {
		t.Fatalf("info = %+v", info)
	}
}

// TestMapperC_ToolExecutionUpdateEmitsDeltas verifies the cumulative-output
// delta computation: updates carry the full output so far, and only the new
// suffix may reach the client as a chunk.
func TestMapperC_ToolExecutionUpdateEmitsDeltas(t *testing.T) {
	m := NewMapperC()
	lines := []string{
		`{"type":"message_update","message_update":{"assistantMessageEvent":{"type":"tool_execution_start","call_id":"c1","tool_name":"shell"}}}`,
		`{"type":"message_update","message_update":{"assistantMessageEvent":{"type":"tool_execution_update","call_id":"c1","tool_name":"shell","text":"line1\n"}}}`,
		`{"type":"message_update","message_update":{"assistantMessageEvent":{"type":"tool_execution_update","call_id":"c1","tool_name":"shell","text":"line1\nline2\n"}}}`,
	}
	events := collectEvents(t, m, lines)

	var chunks []string
	for _, ev := range events {
		if d, ok := ev.(chatrun.ToolOutputDelta); ok {
			chunks = append(chunks, d.Chunk)
		}
	}
	want := []string{"line1\n", "line2\n"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunks[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

// TestMapperC_ToolExecutionEndExtractsMCPContent covers the MCP-style
// result shape: textual content is concatenated from result.content[].text.
func TestMapperC_ToolExecutionEndExtractsMCPContent(t *testing.T) {
	m := NewMapperC()
	lines := []string{
		`{"type":"message_update","message_update":{"assistantMessageEvent":{"type":"tool_execution_start","call_id":"c1","tool_name":"search"}}}`,
		`{"type":"message_update","message_update":{"assistantMessageEvent":{"type":"tool_execution_end","call_id":"c1","tool_name":"search","result":{"content":[{"type":"text","text":"first "},{"type":"text","text":"second"}],"is_error":false}}}}`,
	}
	events := collectEvents(t, m, lines)

	result := events[len(events)-1].(chatrun.ToolResult)
	if !result.OK {
		t.Fatal("ok = false, want true")
	}
	if result.Result != "first second" {
		t.Fatalf("result = %q, want %q", result.Result, "first second")
	}
	if ids := m.ActiveToolCallIDs(); len(ids) != 0 {
		t.Fatalf("ActiveToolCallIDs = %v, want empty", ids)
	}
}

func TestOutputDelta(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want string
	}{
		{"strict prefix extension", "abc", "abcdef", "def"},
		{"identical", "abc", "abc", ""},
		{"trailing overlap", "the quick brown", "brown fox", " fox"},
		{"no overlap", "abc", "xyz", "xyz"},
		{"empty prev", "", "hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputDelta(tt.prev, tt.next); got != tt.want {
				t.Fatalf("outputDelta(%q, %q) = %q, want %q", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

// TestOutputDelta_OverlapSearchWindow pins that only an overlap at prev's
// tail counts: next matches a run of prev that lies deeper than the 8KB
// window, not its tail, so the whole next value is treated as new content.
func TestOutputDelta_OverlapSearchWindow(t *testing.T) {
	head := strings.Repeat("x", maxOverlapSearch+100)
	prev := head + "marker"
	next := head[:50] + "new tail"

	if got := outputDelta(prev, next); got != next {
		t.Fatalf("outputDelta beyond the search window = %q, want full next value", got)
	}
}
