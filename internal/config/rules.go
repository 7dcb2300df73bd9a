package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jason-s-yu/blackjack/internal/game"
	"gopkg.in/yaml.v3"
)

// LoadRules reads table rules from a YAML file on top of game.DefaultRules.
// An empty path returns the defaults.
func LoadRules(path string) (game.Rules, error) {
	rules := game.DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules. Unknown keys are rejected so typos do not silently fall back to defaults.
func ParseRules(data []byte) (game.Rules, error) {
	rules := game.DefaultRules()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return rules, fmt.Errorf("invalid rules file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}
