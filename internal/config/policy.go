package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"symptomcheck/internal/policy"
)

// LoadPolicy reads the questionnaire policy from a YAML file. A missing file
// yields the default policy; keys absent from the file keep their defaults.
func LoadPolicy(path string) (policy.Rules, error) {
	rules := policy.DefaultRules()

	if path == "" {
		return rules, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Rules{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return policy.Rules{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return policy.Rules{}, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return rules, nil
}
