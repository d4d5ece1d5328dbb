package turn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollout-2026-01-01-sess.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func TestRewriteFirstLineSource(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"session_meta","payload":{"id":"T","source":"exec"}}`,
		`{"type":"event","payload":{"text":"hi"}}`,
	)

	if err := rewriteFirstLineSource(path); err != nil {
		t.Fatalf("rewriteFirstLineSource: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if got := gjson.Get(lines[0], "payload.source").String(); got != "cli" {
		t.Fatalf("payload.source = %q, want cli", got)
	}
	if !strings.Contains(lines[1], `"text":"hi"`) {
		t.Fatalf("second line was modified: %s", lines[1])
	}
}

// TestRewriteFirstLineSource_LeavesClaimedTranscriptAlone: only "exec" and
// "unknown" sources are rewritten.
func TestRewriteFirstLineSource_LeavesClaimedTranscriptAlone(t *testing.T) {
	path := writeTranscript(t, `{"type":"session_meta","payload":{"id":"T","source":"vscode"}}`)

	if err := rewriteFirstLineSource(path); err != nil {
		t.Fatalf("rewriteFirstLineSource: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got := gjson.Get(strings.TrimSpace(string(b)), "payload.source").String(); got != "vscode" {
		t.Fatalf("payload.source = %q, want vscode untouched", got)
	}
}

func TestCodexSessionStore_RoundTrip(t *testing.T) {
	store := NewCodexSessionStore(t.TempDir())

	if _, ok := store.Get("s1"); ok {
		t.Fatal("expected a miss for an unknown session")
	}
	if err := store.Set("s1", "T"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	id, ok := store.Get("s1")
	if !ok || id != "T" {
		t.Fatalf("Get = %q, %v; want T, true", id, ok)
	}

	// A second store over the same file sees the persisted mapping.
	reopened := &CodexSessionStore{path: store.path}
	id, ok = reopened.Get("s1")
	if !ok || id != "T" {
		t.Fatalf("reopened Get = %q, %v; want T, true", id, ok)
	}
}
