package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"chatrun/internal/domain/models/chatrun"
)

// agentFile is the on-disk shape of one YAML agent definitions file: a list
// under the "agents" key so multiple definitions can share one file.
type agentFile struct {
	Agents []chatrun.AgentDefinition `yaml:"agents"`
}

// Registry holds the agent definitions a Session's AgentID resolves to,
// loaded once at startup from YAML.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*chatrun.AgentDefinition
}

// NewRegistry returns an empty registry; use LoadDir or Add to populate it.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*chatrun.AgentDefinition)}
}

// LoadDir reads every *.yaml/*.yml file in dir and registers its agents.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read agent config dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var parsed agentFile
		if err := yaml.Unmarshal(b, &parsed); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		for i := range parsed.Agents {
			def := parsed.Agents[i]
			if err := r.Add(&def); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	return r, nil
}

// Add registers one agent definition, rejecting duplicate ids and
// definitions missing the config block their type requires.
func (r *Registry) Add(def *chatrun.AgentDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("agent definition missing id")
	}
	switch def.Type {
	case chatrun.AgentTypeChat:
		if def.Chat == nil {
			return fmt.Errorf("agent %q: type=chat requires a chat config block", def.ID)
		}
		if !def.Chat.Provider.Valid() {
			return fmt.Errorf("agent %q: invalid provider %q", def.ID, def.Chat.Provider)
		}
	case chatrun.AgentTypeExternal:
		if def.External == nil {
			return fmt.Errorf("agent %q: type=external requires an external config block", def.ID)
		}
	default:
		return fmt.Errorf("agent %q: unknown type %q", def.ID, def.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[def.ID]; exists {
		return fmt.Errorf("duplicate agent id %q", def.ID)
	}
	r.agents[def.ID] = def
	return nil
}

// Get returns the agent definition for an id, or an error if unknown.
func (r *Registry) Get(id string) (*chatrun.AgentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("unknown agent id %q", id)
	}
	return def, nil
}

// Validate ensures the registry has at least one agent registered; called
// at startup to fail fast if misconfigured.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.agents) == 0 {
		return fmt.Errorf("no agents registered")
	}
	return nil
}

// List returns every registered agent id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}
