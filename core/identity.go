package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Identity describes the agent persona for a session: a name, a role
// statement, and an ordered list of goals. It is immutable after
// construction and owned by the session that was started with it.
type Identity struct {
	Name  string   `yaml:"ai_name"`
	Role  string   `yaml:"ai_role"`
	Goals []string `yaml:"ai_goals"`
}

// LoadIdentity reads an identity from a YAML file.
func LoadIdentity(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("read identity file: %w", err)
	}
	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parse identity file: %w", err)
	}
	if id.Name == "" {
		return Identity{}, fmt.Errorf("identity file %s: ai_name is required", path)
	}
	return id, nil
}

// Save writes the identity back to a YAML file.
func (id Identity) Save(path string) error {
	data, err := yaml.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

const promptStart = "Your decisions must always be made independently without " +
	"seeking user assistance. Play to your strengths as an LLM and pursue " +
	"simple strategies with no legal complications."

// FullPrompt renders the identity preamble used at the top of the system
// prompt: persona line, standing instructions, and the numbered goal list.
func (id Identity) FullPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s\n%s\n\nGOALS:\n\n", id.Name, id.Role, promptStart)
	for i, goal := range id.Goals {
		fmt.Fprintf(&b, "%d. %s\n", i+1, goal)
	}
	return b.String()
}
