package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses a Config from YAML bytes and validates it.
// This is used for APIs where config is provided as payload (not via
// filesystem).
func ParseConfigYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ParseConfigYAMLString parses a Config from a YAML string and validates it.
func ParseConfigYAMLString(yamlText string) (*Config, error) {
	return ParseConfigYAML([]byte(yamlText))
}

// MarshalParamsYAML serializes a full parameter map, used by the
// parameter-sync sink to keep on-disk snapshots current.
func MarshalParamsYAML(params map[string]float64) ([]byte, error) {
	out, err := yaml.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	return out, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Simulation.MPICmd == "" {
		cfg.Simulation.MPICmd = "mpiexec"
	}
	if cfg.Simulation.Trials == 0 {
		cfg.Simulation.Trials = 1
	}
	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		for j := range step.Ranges {
			r := &step.Ranges[j]
			if r.Initial == nil {
				if v, ok := cfg.Parameters[r.Name]; ok {
					initial := v
					r.Initial = &initial
				}
			}
		}
		// A step with no explicit weighting scores its whole interval
		// with unit weight.
		if len(step.Weights) == 0 {
			step.Weights = []WeightConfig{{Start: step.Start, End: step.End, Weight: 1}}
		}
	}
}
