package agent

import (
	"testing"

	"chatrun/internal/domain/models/chatrun"
)

func TestResumeArgs(t *testing.T) {
	tests := []struct {
		name     string
		provider chatrun.ProviderIdentity
		id       string
		want     []string
	}{
		{"cli A resume flag", chatrun.ProviderCLIA, "sess-a", []string{"--resume", "sess-a"}},
		{"cli B resume subcommand", chatrun.ProviderCLIB, "T", []string{"resume", "T"}},
		{"cli C session flag", chatrun.ProviderCLIC, "sess-c", []string{"--session", "sess-c"}},
		{"no prior session", chatrun.ProviderCLIA, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resumeArgs(tt.provider, tt.id)
			if len(got) != len(tt.want) {
				t.Fatalf("resumeArgs = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("resumeArgs = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuildReader_RejectsInvalidProvider(t *testing.T) {
	f := NewReaderFactory("", "", nil)
	if _, err := f.BuildReader(&chatrun.ChatAgentConfig{Provider: "bogus"}, chatrun.SessionAttributes{}, "s1", "hi"); err == nil {
		t.Fatal("expected an error for an invalid provider identity")
	}
}

func TestBuildReader_RejectsUnconfiguredCLI(t *testing.T) {
	f := NewReaderFactory("", "", map[chatrun.ProviderIdentity]CLIBinary{})
	cfg := &chatrun.ChatAgentConfig{Provider: chatrun.ProviderCLIA, Model: "claude-x"}
	if _, err := f.BuildReader(cfg, chatrun.SessionAttributes{}, "s1", "hi"); err == nil {
		t.Fatal("expected an error when no CLI binary is configured")
	}
}

func TestBuildReader_LoremModelSelectsLoremReader(t *testing.T) {
	f := NewReaderFactory("", "", nil)
	cfg := &chatrun.ChatAgentConfig{Provider: chatrun.ProviderInProcess, Model: "lorem-fast"}
	reader, err := f.BuildReader(cfg, chatrun.SessionAttributes{}, "s1", "hi")
	if err != nil {
		t.Fatalf("BuildReader: %v", err)
	}
	if reader != f.loremReader {
		t.Fatalf("reader = %T, want the shared lorem reader", reader)
	}
}
