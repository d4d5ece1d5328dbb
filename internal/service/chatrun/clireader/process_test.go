package clireader

import (
	"context"
	"testing"
	"time"

	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
)

// echoDeltaMapper treats every stdout line as a raw text delta, the
// minimal LineMapper needed to exercise the shared Run-level text
// accumulation independent of any one CLI's vocabulary.
type echoDeltaMapper struct{}

func (echoDeltaMapper) HandleLine(line string, emit func(chatrun.StreamEvent)) error {
	emit(chatrun.TextDelta{Delta: line})
	return nil
}

func (echoDeltaMapper) ActiveToolCallIDs() []string { return nil }

// TestReaderRun_AccumulatesTextAcrossDeltas guards against a bug where no
// CLI mapper ever set TextDelta.Cumulative, which meant
// ActiveRun.AccumulatedText (set via StreamHandler's overwrite-with-
// cumulative semantics) was reset to "" on every delta for CLI-backed
// turns. Run must track the running total itself and stamp it onto every
// TextDelta before the caller sees it, and return the same total in
// ReadResult.AccumulatedText.
func TestReaderRun_AccumulatesTextAcrossDeltas(t *testing.T) {
	spec := Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "printf 'hello\\nworld\\n'"},
	}
	reader := New(spec, echoDeltaMapper{})

	var cumulativeSeen []string
	result, err := reader.Run(context.Background(), domainchatrun.ReadRequest{}, func(ev chatrun.StreamEvent) {
		if td, ok := ev.(chatrun.TextDelta); ok {
			cumulativeSeen = append(cumulativeSeen, td.Cumulative)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"hello", "helloworld"}
	if len(cumulativeSeen) != len(want) {
		t.Fatalf("cumulative snapshots = %v, want %v", cumulativeSeen, want)
	}
	for i, w := range want {
		if cumulativeSeen[i] != w {
			t.Fatalf("cumulative[%d] = %q, want %q", i, cumulativeSeen[i], w)
		}
	}
	if result.AccumulatedText != "helloworld" {
		t.Fatalf("ReadResult.AccumulatedText = %q, want %q", result.AccumulatedText, "helloworld")
	}
}

// stuckToolMapper reports one permanently in-flight tool call, simulating a
// CLI killed mid-execution.
type stuckToolMapper struct{}

func (stuckToolMapper) HandleLine(line string, emit func(chatrun.StreamEvent)) error { return nil }
func (stuckToolMapper) ActiveToolCallIDs() []string                                  { return []string{"c1"} }

// TestReaderRun_CancelSynthesizesInterruptedToolResults: cancelling a turn
// terminates the child's process group and emits a tool_interrupted
// ToolResult for every call the mapper still had open, so the Turn Runner
// always sees a result for every started call.
func TestReaderRun_CancelSynthesizesInterruptedToolResults(t *testing.T) {
	spec := Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
	}
	reader := New(spec, stuckToolMapper{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	var results []chatrun.ToolResult
	start := time.Now()
	result, err := reader.Run(ctx, domainchatrun.ReadRequest{}, func(ev chatrun.StreamEvent) {
		if tr, ok := ev.(chatrun.ToolResult); ok {
			results = append(results, tr)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Aborted {
		t.Fatal("expected Aborted = true")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancel took %v, want under 5s", elapsed)
	}
	if len(results) != 1 {
		t.Fatalf("synthesized results = %d, want 1", len(results))
	}
	if results[0].CallID != "c1" || results[0].OK || results[0].Err == nil || results[0].Err.Code != chatrun.ErrToolInterrupted {
		t.Fatalf("result = %+v, want a tool_interrupted error for c1", results[0])
	}
}
