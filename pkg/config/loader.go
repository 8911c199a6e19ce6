package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if err := validateSimulation(&cfg.Simulation); err != nil {
		return fmt.Errorf("simulation validation failed: %w", err)
	}

	if cfg.Reference.Path == "" {
		return fmt.Errorf("reference.path is required")
	}

	if len(cfg.Parameters) == 0 {
		return fmt.Errorf("at least one parameter must be defined")
	}

	if len(cfg.Steps) == 0 {
		return fmt.Errorf("at least one optimization step must be defined")
	}
	for i := range cfg.Steps {
		if err := validateStep(&cfg.Steps[i], cfg); err != nil {
			return fmt.Errorf("step %d validation failed: %w", i+1, err)
		}
	}

	return nil
}

// validateSimulation validates the simulator invocation settings
func validateSimulation(s *SimulationConfig) error {
	if s.Command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", s.Trials)
	}
	if s.TStop <= 0 {
		return fmt.Errorf("tstop must be positive, got %f", s.TStop)
	}
	return nil
}

// validateStep validates one optimization step
func validateStep(step *StepConfig, cfg *Config) error {
	if step.Start < 0 {
		return fmt.Errorf("start cannot be negative, got %f", step.Start)
	}
	if step.End <= step.Start {
		return fmt.Errorf("end (%f) must be greater than start (%f)", step.End, step.Start)
	}
	if step.End > cfg.Simulation.TStop {
		return fmt.Errorf("end (%f) exceeds tstop (%f)", step.End, cfg.Simulation.TStop)
	}
	if step.NumSims < 0 {
		return fmt.Errorf("num_sims cannot be negative, got %d", step.NumSims)
	}

	seen := make(map[string]bool)
	for _, r := range step.Ranges {
		if r.Name == "" {
			return fmt.Errorf("range name cannot be empty")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate range for parameter: %s", r.Name)
		}
		seen[r.Name] = true

		if _, ok := cfg.Parameters[r.Name]; !ok {
			return fmt.Errorf("range references unknown parameter: %s", r.Name)
		}
		if r.Max < r.Min {
			return fmt.Errorf("parameter %s: maxval (%f) below minval (%f)", r.Name, r.Max, r.Min)
		}
		if r.Initial != nil && (*r.Initial < r.Min || *r.Initial > r.Max) {
			return fmt.Errorf("parameter %s: initial (%f) outside [%f, %f]", r.Name, *r.Initial, r.Min, r.Max)
		}
	}

	for i, w := range step.Weights {
		if w.Weight < 0 {
			return fmt.Errorf("weight %d: weight cannot be negative, got %f", i, w.Weight)
		}
		if w.End <= w.Start {
			return fmt.Errorf("weight %d: end (%f) must be greater than start (%f)", i, w.End, w.Start)
		}
		if w.Start < step.Start || w.End > step.End {
			return fmt.Errorf("weight %d: window [%f, %f] outside step interval [%f, %f]",
				i, w.Start, w.End, step.Start, step.End)
		}
	}

	return nil
}
