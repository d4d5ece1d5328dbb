package agent

import (
	"fmt"

	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
	"chatrun/internal/service/chatrun/clireader"
	"chatrun/internal/service/chatrun/httpreader"
)

// CLIBinary is the fixed, operator-configured invocation surface for one CLI
// provider identity: the binary path and the baseline arguments it's always
// launched with (agent-specific ExtraArgs are appended on top).
type CLIBinary struct {
	Path string
	Args []string
}

// ReaderFactory builds the uniform domainchatrun.Reader for an agent's chat
// config, dispatching on ProviderIdentity. One factory instance is shared across sessions; it holds no
// per-turn state.
type ReaderFactory struct {
	anthropicAPIKey  string
	anthropicBaseURL string
	loremReader      *httpreader.LoremReader

	cliBinaries map[chatrun.ProviderIdentity]CLIBinary
}

func NewReaderFactory(anthropicAPIKey, anthropicBaseURL string, cliBinaries map[chatrun.ProviderIdentity]CLIBinary) *ReaderFactory {
	return &ReaderFactory{
		anthropicAPIKey:  anthropicAPIKey,
		anthropicBaseURL: anthropicBaseURL,
		loremReader:      httpreader.NewLoremReader(),
		cliBinaries:      cliBinaries,
	}
}

// BuildReader returns the Reader to drive one turn for the given chat
// agent config and the session's prior CLI continuity state. ourSessionID
// is the orchestrator's own session id, needed only by CLI B, which gets
// it injected as ASSISTANT_SESSION_ID in the child environment. userText is
// the turn's prompt; every CLI takes it as a trailing command-line
// argument rather than over stdin.
func (f *ReaderFactory) BuildReader(cfg *chatrun.ChatAgentConfig, attrs chatrun.SessionAttributes, ourSessionID, userText string) (domainchatrun.Reader, error) {
	if !cfg.Provider.Valid() {
		return nil, fmt.Errorf("invalid provider identity %q", cfg.Provider)
	}

	if cfg.Provider == chatrun.ProviderInProcess {
		kind, err := ResolveReaderKind(cfg.Model)
		if err != nil {
			return nil, err
		}
		switch kind {
		case ReaderKindLorem:
			return f.loremReader, nil
		case ReaderKindAnthropic:
			baseURL := cfg.BaseURL
			if baseURL == "" {
				baseURL = f.anthropicBaseURL
			}
			return httpreader.NewReader(f.anthropicAPIKey, baseURL)
		default:
			return nil, fmt.Errorf("unhandled reader kind %q", kind)
		}
	}

	binary, ok := f.cliBinaries[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("no CLI binary configured for provider %q", cfg.Provider)
	}

	mapper, err := clireader.NewMapper(cfg.Provider)
	if err != nil {
		return nil, err
	}

	workingDir := attrs.WorkingDir
	if workingDir == "" {
		workingDir = cfg.WorkingDir
	}

	args := append([]string(nil), binary.Args...)
	args = append(args, resumeArgs(cfg.Provider, attrs.CLISessionID)...)
	args = append(args, cfg.ExtraArgs...)
	// The user's turn text is a trailing CLI argument for every CLI,
	// never stdin. CLI C requires an explicit -p flag ahead of it; CLI A
	// and CLI B take it bare.
	if cfg.Provider == chatrun.ProviderCLIC {
		args = append(args, "-p")
	}
	args = append(args, userText)

	extraEnv := map[string]string{}
	if cfg.Provider == chatrun.ProviderCLIB {
		// ASSISTANT_SESSION_ID lets the codex session store
		// correlate the child's own transcript back to our session.
		extraEnv["ASSISTANT_SESSION_ID"] = ourSessionID
	}

	spec := clireader.Spec{
		Command:    binary.Path,
		Args:       args,
		WorkingDir: workingDir,
		ExtraEnv:   extraEnv,
	}
	if cfg.Wrapper != nil {
		spec.Wrapper = *cfg.Wrapper
	}

	return clireader.New(spec, mapper), nil
}

// resumeArgs builds the provider-specific resume marker: CLI A takes
// --resume, CLI B's --json must precede its "resume" subcommand (already
// guaranteed since --json lives in the CLI's BaseArgs ahead of these), and
// CLI C takes --session. No prior CLI session id means this is the first
// turn and no resume marker is emitted at all.
func resumeArgs(provider chatrun.ProviderIdentity, cliSessionID string) []string {
	if cliSessionID == "" {
		return nil
	}
	switch provider {
	case chatrun.ProviderCLIA:
		return []string{"--resume", cliSessionID}
	case chatrun.ProviderCLIB:
		return []string{"resume", cliSessionID}
	case chatrun.ProviderCLIC:
		return []string{"--session", cliSessionID}
	default:
		return nil
	}
}
