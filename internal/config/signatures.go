package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SignatureRule is a single (binary, pattern) -> symptom classification
// override, loaded from a --signatures YAML file ahead of the built-in
// table in internal/rpmprobe. This lets the classification table (spec.md
// design note: "consolidate into a table... so new signatures can be added
// without touching the state machine") be seeded per-distribution without a
// rebuild.
type SignatureRule struct {
	Binary        string `yaml:"binary"`
	StderrPattern string `yaml:"stderr_pattern"`
	StdoutPattern string `yaml:"stdout_pattern"`
	Symptom       string `yaml:"symptom"`
}

// SignatureOverlay is the top-level shape of a --signatures file.
type SignatureOverlay struct {
	Rules []SignatureRule `yaml:"rules"`
}

// LoadSignatureOverlay reads and parses a --signatures YAML file. An empty
// path returns a nil overlay without error, since the flag is optional.
func LoadSignatureOverlay(path string) (*SignatureOverlay, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signatures file %s: %w", path, err)
	}

	var overlay SignatureOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse signatures file %s: %w", path, err)
	}

	for i, rule := range overlay.Rules {
		if rule.Binary == "" {
			return nil, fmt.Errorf("signatures file %s: rule %d missing binary", path, i)
		}
		if rule.Symptom == "" {
			return nil, fmt.Errorf("signatures file %s: rule %d missing symptom", path, i)
		}
		if rule.StderrPattern == "" && rule.StdoutPattern == "" {
			return nil, fmt.Errorf("signatures file %s: rule %d has neither stdout_pattern nor stderr_pattern", path, i)
		}
	}

	return &overlay, nil
}
