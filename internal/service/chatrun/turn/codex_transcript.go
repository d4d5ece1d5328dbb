package turn

import (
	"bufio"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// rewriteCodexTranscriptSource marks CLI B's own on-disk session transcript
// as orchestrator-driven: the meta line's payload.source is flipped from
// "exec" or "unknown" to "cli" so downstream transcript readers know the
// session was not a bare codex-exec run. This is best-effort bookkeeping on
// a file CLI B owns; any failure is logged and swallowed, never surfaced to
// the turn.
func rewriteCodexTranscriptSource(cliSessionID string, logger *slog.Logger) {
	root := os.Getenv("CODEX_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		root = filepath.Join(home, ".codex")
	}

	path, err := findTranscriptFile(filepath.Join(root, "sessions"), cliSessionID)
	if err != nil || path == "" {
		if err != nil {
			logger.Debug("codex transcript lookup failed", "cli_session_id", cliSessionID, "error", err)
		}
		return
	}

	if err := rewriteFirstLineSource(path); err != nil {
		logger.Warn("codex transcript source rewrite failed", "path", path, "error", err)
	}
}

func findTranscriptFile(sessionsDir, cliSessionID string) (string, error) {
	var (
		match  string
		newest time.Time
	)
	err := filepath.WalkDir(sessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), cliSessionID+".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if match == "" || info.ModTime().After(newest) {
			match = path
			newest = info.ModTime()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return "", nil
	}
	return match, err
}

// rewriteFirstLineSource rewrites the meta line's payload.source field
// in-place, leaving every other line untouched. Only the two values a
// fresh codex-exec run writes ("exec", "unknown") are rewritten; anything
// else means someone already claimed the transcript.
func rewriteFirstLineSource(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	lines := make([]string, 0, 64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	if !gjson.Valid(lines[0]) {
		return nil
	}
	source := gjson.Get(lines[0], "payload.source").String()
	if source != "exec" && source != "unknown" {
		return nil
	}
	rewritten, err := sjson.Set(lines[0], "payload.source", "cli")
	if err != nil {
		return err
	}
	lines[0] = rewritten

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			out.Close()
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
