package taskconfig

// #region timeout-spec

// TimeoutMode selects how a state's timeout value is produced.
type TimeoutMode string

const (
	// TimeoutFixed uses Value verbatim on every trial.
	TimeoutFixed TimeoutMode = "fixed"
	// TimeoutExp draws a bounded-exponential value in [Min, Max] per trial.
	TimeoutExp TimeoutMode = "exp"
)

// TimeoutSpec describes a state's timeout policy. Disabled states never arm
// a timer. All values are in seconds.
type TimeoutSpec struct {
	Enabled bool        `yaml:"enabled"`
	Mode    TimeoutMode `yaml:"mode,omitempty"`
	Value   float64     `yaml:"value,omitempty"`
	Min     float64     `yaml:"min,omitempty"`
	Max     float64     `yaml:"max,omitempty"`
}

// #endregion timeout-spec

// #region transition

// Transition maps a trigger to a named action handler and a destination state.
// Name identifies a handler in the machine's closed action table ("next",
// "succeed", "fail", "overshoot").
type Transition struct {
	Trigger string `yaml:"trigger"`
	Name    string `yaml:"name"`
	Dest    string `yaml:"dest"`
}

// #endregion transition

// #region state-descriptor

// StateDescriptor is one configured task state: its timeout policy, ordered
// transition list, and ordered on-enter action names.
type StateDescriptor struct {
	Name        string       `yaml:"name"`
	Timeout     TimeoutSpec  `yaml:"timeout"`
	Transitions []Transition `yaml:"transitions,omitempty"`
	OnEnter     []string     `yaml:"on_enter,omitempty"`
}

// #endregion state-descriptor

// #region parameters

// Parameters holds task-level tuning shared across states.
type Parameters struct {
	// Targets are outer-target angles in degrees.
	Targets []float64 `yaml:"targets"`
	// NOvershootsAllowed caps recoverable overshoots per trial; exceeding it
	// forces the fail escape path.
	NOvershootsAllowed int `yaml:"n_overshoots_allowed"`
}

// #endregion parameters

// #region task-info

// TaskInfo is free-form task metadata carried through to the trial log.
type TaskInfo struct {
	Name  string            `yaml:"name"`
	Notes map[string]string `yaml:"notes,omitempty"`
}

// #endregion task-info

// #region initial-state

// InitialState seeds the machine's history stack at construction.
type InitialState struct {
	Cur   string `yaml:"cur"`
	Prev  string `yaml:"prev,omitempty"`
	Prev2 string `yaml:"prev_,omitempty"`
}

// #endregion initial-state

// #region config

// Config is the immutable task configuration, loaded once at startup.
type Config struct {
	Task       TaskInfo          `yaml:"task"`
	States     []StateDescriptor `yaml:"states"`
	Parameters Parameters        `yaml:"parameters"`
	State      InitialState      `yaml:"state"`
}

// Descriptor returns the named state, or ok=false if not configured.
func (c *Config) Descriptor(name string) (StateDescriptor, bool) {
	for _, s := range c.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateDescriptor{}, false
}

// StateNames returns the configured state names in declaration order.
func (c *Config) StateNames() []string {
	names := make([]string, len(c.States))
	for i, s := range c.States {
		names[i] = s.Name
	}
	return names
}

// #endregion config
