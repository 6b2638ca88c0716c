package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const policyFileName = "policy.yaml"
const policyDir = ".claude-gui"

// Policy is an optional per-project permission policy. It seeds the
// arbitration service's decision memory so that tools a project trusts are
// granted without prompting.
type Policy struct {
	// AlwaysAllow lists tool names granted for the life of the process.
	AlwaysAllow []string `yaml:"always_allow"`

	// AlwaysDeny lists tool names refused without prompting.
	AlwaysDeny []string `yaml:"always_deny"`
}

// LoadPolicy reads and parses .claude-gui/policy.yaml from the given project
// path. Returns nil, nil if the file does not exist.
func LoadPolicy(projectPath string) (*Policy, error) {
	fp := filepath.Join(projectPath, policyDir, policyFileName)

	data, err := os.ReadFile(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read permission policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse permission policy: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks that the policy does not both allow and deny a tool.
func (p *Policy) Validate() error {
	denied := make(map[string]bool, len(p.AlwaysDeny))
	for _, t := range p.AlwaysDeny {
		denied[t] = true
	}
	for _, t := range p.AlwaysAllow {
		if denied[t] {
			return fmt.Errorf("permission policy lists %q in both always_allow and always_deny", t)
		}
	}
	return nil
}
