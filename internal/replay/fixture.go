package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay run: a task
// configuration, a timed event script, and expected results.
type Fixture struct {
	Description string `json:"description"`
	Seed        int64  `json:"seed"`

	// Exactly one of ConfigYAML (inline document) or ConfigPath (relative to
	// the fixture file) must be set.
	ConfigYAML string `json:"config_yaml,omitempty"`
	ConfigPath string `json:"config_path,omitempty"`

	// RunUntilMS extends the run past the last scripted event so pending
	// timeouts still fire.
	RunUntilMS int64 `json:"run_until_ms,omitempty"`

	Events   []FixtureEvent `json:"events"`
	Expected []ExpectedStep `json:"expected,omitempty"`
	Final    *ExpectedStep  `json:"final,omitempty"`
}

// FixtureEvent is one scripted surface event. Timeout events are never
// scripted; the harness synthesizes them when the armed deadline passes.
type FixtureEvent struct {
	AtMS    int64  `json:"at_ms"`
	Trigger string `json:"trigger"`
}

// ExpectedStep pins machine state after the Nth processed step (1-based,
// synthesized timeouts included). Nil fields are not checked. In Final,
// After is ignored.
type ExpectedStep struct {
	After      int    `json:"after,omitempty"`
	Cur        string `json:"cur,omitempty"`
	Total      *int   `json:"total,omitempty"`
	Successful *int   `json:"successful,omitempty"`
	Overshoot  *int   `json:"overshoot,omitempty"`
	Direction  *int   `json:"direction,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a fixture JSON file.
func LoadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if (fx.ConfigYAML == "") == (fx.ConfigPath == "") {
		return Fixture{}, fmt.Errorf("fixture %s: exactly one of config_yaml or config_path required", path)
	}
	return fx, nil
}

// Config resolves the fixture's task configuration. baseDir anchors a
// relative ConfigPath (use the fixture file's directory).
func (f Fixture) Config(baseDir string) (taskconfig.Config, error) {
	if f.ConfigYAML != "" {
		return taskconfig.Parse([]byte(f.ConfigYAML))
	}
	path := f.ConfigPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return taskconfig.Load(path)
}

// #endregion fixture-loader

// #region template

const templateConfigYAML = `task:
  name: center-out
states:
  - name: idle
    timeout: {enabled: false}
  - name: t1_pre
    timeout: {enabled: true, mode: exp, min: 0.5, max: 1.5}
    transitions:
      - {trigger: enter_t1, name: next, dest: t1_hold}
      - {trigger: timeout, name: fail, dest: t1_pre}
    on_enter: [show_t1, show_cursor]
  - name: t1_hold
    timeout: {enabled: true, mode: fixed, value: 0.5}
    transitions:
      - {trigger: timeout, name: next, dest: t2_pre}
      - {trigger: exit_t1, name: fail, dest: t1_pre}
  - name: t2_pre
    timeout: {enabled: true, mode: fixed, value: 2.0}
    transitions:
      - {trigger: enter_t2, name: next, dest: t2_hold}
      - {trigger: exit_ring, name: overshoot, dest: t2_pre}
      - {trigger: timeout, name: fail, dest: t1_pre}
    on_enter: [hide_t1, show_t2, cue_go]
  - name: t2_hold
    timeout: {enabled: true, mode: fixed, value: 0.4}
    transitions:
      - {trigger: timeout, name: succeed, dest: t1_pre}
      - {trigger: exit_t2, name: fail, dest: t1_pre}
parameters:
  targets: [0, 45, 90, 135, 180, 225, 270, 315]
  n_overshoots_allowed: 2
state:
  cur: t1_pre
  prev: ""
  prev_: ""
`

// Template returns a runnable example fixture, used by cmd/fixture-export.
// Script: engage center at 100ms, hold completes at 600ms, reach the outer
// target at 1200ms, hold completes at 1600ms (succeed).
func Template() Fixture {
	one := 1
	return Fixture{
		Description: "single successful center-out trial",
		Seed:        7,
		ConfigYAML:  templateConfigYAML,
		RunUntilMS:  1700,
		Events: []FixtureEvent{
			{AtMS: 100, Trigger: "enter_t1"},
			{AtMS: 1200, Trigger: "enter_t2"},
		},
		Final: &ExpectedStep{
			Cur:        "t1_pre",
			Total:      &one,
			Successful: &one,
		},
	}
}

// #endregion template
