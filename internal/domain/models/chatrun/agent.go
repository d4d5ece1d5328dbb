package chatrun

import "time"

// AgentType selects whether an agent drives the model loop or forwards the
// user text to an external HTTP endpoint.
type AgentType string

const (
	AgentTypeChat     AgentType = "chat"
	AgentTypeExternal AgentType = "external"
)

// WrapperConfig is an optional prefix command that runs the provider CLI
// inside a sandbox, contributing its own PATH/env.
type WrapperConfig struct {
	Path string            `yaml:"path"`
	Env  map[string]string `yaml:"env"`
}

// ChatAgentConfig is the provider-specific configuration carried by a
// type=chat agent definition.
type ChatAgentConfig struct {
	Provider ProviderIdentity `yaml:"provider"`

	Model          string        `yaml:"model"`
	CredentialEnv  string        `yaml:"credential_env"`
	BaseURL        string        `yaml:"base_url"`
	ExtraHeaders   map[string]string `yaml:"extra_headers"`
	Timeout        time.Duration `yaml:"timeout"`
	ReasoningLevel string        `yaml:"reasoning_level"`

	WorkingDir string        `yaml:"working_dir"`
	ExtraArgs  []string      `yaml:"extra_args"`
	Wrapper    *WrapperConfig `yaml:"wrapper"`

	MaxToolIterations int `yaml:"max_tool_iterations"`

	// AllowedTools / DeniedTools configure the Scoped Tool Host's per-agent
	// gate. A nil
	// AllowedTools means no allow-list restriction.
	AllowedTools []string `yaml:"allowed_tools"`
	DeniedTools  []string `yaml:"denied_tools"`
}

// ExternalAgentConfig configures a type=external agent: the user text is
// POSTed to an endpoint and the turn returns immediately (fire-and-forget;
// the endpoint is an out-of-scope external collaborator).
type ExternalAgentConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// AgentDefinition is the configuration unit a Session's AgentID resolves to.
type AgentDefinition struct {
	ID   string    `yaml:"id"`
	Type AgentType `yaml:"type"`

	Chat     *ChatAgentConfig     `yaml:"chat,omitempty"`
	External *ExternalAgentConfig `yaml:"external,omitempty"`
}

// EffectiveMaxToolIterations applies the default ceiling of 100 when unset.
func (c *ChatAgentConfig) EffectiveMaxToolIterations() int {
	if c.MaxToolIterations > 0 {
		return c.MaxToolIterations
	}
	return 100
}
