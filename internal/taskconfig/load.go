package taskconfig

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region load

// Load reads and validates a task configuration from a YAML file.
// Invalid configurations are fatal here, never at dispatch time.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML task configuration document.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion load

// #region validate

// Validate performs structural validation: state references, timeout specs,
// initial state, and parameters. Handler names are validated separately by
// the machine against its action tables.
func (c *Config) Validate() error {
	if len(c.States) == 0 {
		return fmt.Errorf("no states configured")
	}

	seen := make(map[string]bool, len(c.States))
	for _, s := range c.States {
		if s.Name == "" {
			return fmt.Errorf("state with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate state %q", s.Name)
		}
		seen[s.Name] = true
	}

	for _, s := range c.States {
		if err := s.Timeout.validate(); err != nil {
			return fmt.Errorf("state %q: %w", s.Name, err)
		}
		for _, t := range s.Transitions {
			if t.Trigger == "" {
				return fmt.Errorf("state %q: transition with empty trigger", s.Name)
			}
			if t.Name == "" {
				return fmt.Errorf("state %q: trigger %q names no action", s.Name, t.Trigger)
			}
			if !seen[t.Dest] {
				return fmt.Errorf("state %q: trigger %q dest %q is not a configured state", s.Name, t.Trigger, t.Dest)
			}
		}
	}

	if !seen[c.State.Cur] {
		return fmt.Errorf("initial state %q is not a configured state", c.State.Cur)
	}
	if c.State.Prev != "" && !seen[c.State.Prev] {
		return fmt.Errorf("initial prev %q is not a configured state", c.State.Prev)
	}
	if c.State.Prev2 != "" && !seen[c.State.Prev2] {
		return fmt.Errorf("initial prev_ %q is not a configured state", c.State.Prev2)
	}

	if len(c.Parameters.Targets) == 0 {
		return fmt.Errorf("parameters.targets is empty")
	}
	if c.Parameters.NOvershootsAllowed < 0 {
		return fmt.Errorf("parameters.n_overshoots_allowed is negative")
	}

	return nil
}

func (ts TimeoutSpec) validate() error {
	if !ts.Enabled {
		return nil
	}
	switch ts.Mode {
	case TimeoutFixed:
		if ts.Value <= 0 {
			return fmt.Errorf("fixed timeout requires value > 0, got %v", ts.Value)
		}
	case TimeoutExp:
		if ts.Min <= 0 || ts.Max < ts.Min {
			return fmt.Errorf("exp timeout requires 0 < min <= max, got min=%v max=%v", ts.Min, ts.Max)
		}
	default:
		return fmt.Errorf("unknown timeout mode %q", ts.Mode)
	}
	return nil
}

// #endregion validate
