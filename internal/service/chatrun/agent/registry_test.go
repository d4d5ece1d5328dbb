package agent

import (
	"os"
	"path/filepath"
	"testing"

	"chatrun/internal/domain/models/chatrun"
)

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	yaml := `agents:
  - id: assistant
    type: chat
    chat:
      provider: in_process
      model: claude-sonnet-4-5
      max_tool_iterations: 25
  - id: coder
    type: chat
    chat:
      provider: cli_A
      working_dir: /work
      extra_args: ["--model", "opus"]
  - id: notifier
    type: external
    external:
      url: https://example.test/hook
      headers:
        X-Token: abc
`
	if err := os.WriteFile(filepath.Join(dir, "agents.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write agents.yaml: %v", err)
	}

	reg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	assistant, err := reg.Get("assistant")
	if err != nil {
		t.Fatalf("Get assistant: %v", err)
	}
	if assistant.Chat.Provider != chatrun.ProviderInProcess {
		t.Fatalf("provider = %q", assistant.Chat.Provider)
	}
	if assistant.Chat.EffectiveMaxToolIterations() != 25 {
		t.Fatalf("max tool iterations = %d, want 25", assistant.Chat.EffectiveMaxToolIterations())
	}

	coder, err := reg.Get("coder")
	if err != nil {
		t.Fatalf("Get coder: %v", err)
	}
	if coder.Chat.Provider != chatrun.ProviderCLIA || coder.Chat.WorkingDir != "/work" {
		t.Fatalf("coder config = %+v", coder.Chat)
	}
	// Unset ceiling falls back to the default of 100.
	if coder.Chat.EffectiveMaxToolIterations() != 100 {
		t.Fatalf("default max tool iterations = %d, want 100", coder.Chat.EffectiveMaxToolIterations())
	}

	notifier, err := reg.Get("notifier")
	if err != nil {
		t.Fatalf("Get notifier: %v", err)
	}
	if notifier.Type != chatrun.AgentTypeExternal || notifier.External.URL != "https://example.test/hook" {
		t.Fatalf("notifier = %+v", notifier)
	}
}

func TestAdd_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  chatrun.AgentDefinition
	}{
		{"missing id", chatrun.AgentDefinition{Type: chatrun.AgentTypeChat, Chat: &chatrun.ChatAgentConfig{Provider: chatrun.ProviderInProcess}}},
		{"chat without config", chatrun.AgentDefinition{ID: "a", Type: chatrun.AgentTypeChat}},
		{"invalid provider", chatrun.AgentDefinition{ID: "a", Type: chatrun.AgentTypeChat, Chat: &chatrun.ChatAgentConfig{Provider: "nope"}}},
		{"external without config", chatrun.AgentDefinition{ID: "a", Type: chatrun.AgentTypeExternal}},
		{"unknown type", chatrun.AgentDefinition{ID: "a", Type: "weird"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			def := tt.def
			if err := reg.Add(&def); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestAdd_RejectsDuplicateID(t *testing.T) {
	reg := NewRegistry()
	def := chatrun.AgentDefinition{ID: "a", Type: chatrun.AgentTypeChat, Chat: &chatrun.ChatAgentConfig{Provider: chatrun.ProviderInProcess}}
	if err := reg.Add(&def); err != nil {
		t.Fatalf("first add: %v", err)
	}
	dup := def
	if err := reg.Add(&dup); err == nil {
		t.Fatal("expected a duplicate-id error")
	}
}
