package trial

import (
	"math/rand"
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
	"github.com/google/uuid"
)

// #region counters

// Counters tracks trial outcomes across the session. Overshoot is per-trial
// and resets to zero exactly once per trial reset; the others only grow.
type Counters struct {
	Total      int
	Successful int
	Overshoot  int
	// Unmatched counts triggers that matched no transition in the state they
	// arrived in. Diagnostic only; unmatched triggers are not errors.
	Unmatched int
}

// #endregion counters

// #region bookkeeper

// Bookkeeper owns per-trial mutable state: the per-trial timeout cache,
// per-state event timestamp lists, outcome counters, and the trial identity.
// Created once per session and reset in place between trials.
type Bookkeeper struct {
	states []taskconfig.StateDescriptor
	rng    *rand.Rand
	now    func() time.Time

	Counters Counters

	timeouts  map[string]time.Duration
	events    map[string][]time.Time
	trialID   string
	startedAt time.Time
}

// NewBookkeeper creates a Bookkeeper and performs the first trial reset so
// per-trial timeouts are available before the first state entry. rng and now
// are injected so replays and tests are deterministic.
func NewBookkeeper(states []taskconfig.StateDescriptor, rng *rand.Rand, now func() time.Time) *Bookkeeper {
	b := &Bookkeeper{
		states:   states,
		rng:      rng,
		now:      now,
		timeouts: make(map[string]time.Duration, len(states)),
		events:   make(map[string][]time.Time, len(states)),
	}
	b.Reset()
	return b
}

// #endregion bookkeeper

// #region reset

// Reset starts a fresh trial: redraws every state's timeout, clears every
// state's event timestamp list, zeroes the overshoot counter, generates a new
// trial identifier, and records the trial start time. Called exactly once per
// succeed/fail, before the state transition those actions perform.
func (b *Bookkeeper) Reset() {
	for k := range b.timeouts {
		delete(b.timeouts, k)
	}
	for _, s := range b.states {
		if d, ok := drawTimeout(s.Timeout, b.rng); ok {
			b.timeouts[s.Name] = d
		}
		b.events[s.Name] = nil
	}
	b.Counters.Overshoot = 0
	b.trialID = uuid.New().String()
	b.startedAt = b.now()
}

// #endregion reset

// #region accessors

// TimeoutFor returns the per-trial timeout drawn for the state, or ok=false
// when the state's timeout is disabled.
func (b *Bookkeeper) TimeoutFor(state string) (time.Duration, bool) {
	d, ok := b.timeouts[state]
	return d, ok
}

// AppendEvent appends a timestamp to the state's event list.
func (b *Bookkeeper) AppendEvent(state string, at time.Time) {
	b.events[state] = append(b.events[state], at)
}

// Events returns the state's event timestamps for the current trial.
func (b *Bookkeeper) Events(state string) []time.Time {
	return b.events[state]
}

// TrialID returns the current trial's identifier.
func (b *Bookkeeper) TrialID() string {
	return b.trialID
}

// StartedAt returns the current trial's start time.
func (b *Bookkeeper) StartedAt() time.Time {
	return b.startedAt
}

// #endregion accessors

// #region draw

// drawTimeout resolves a timeout spec to a concrete duration. Disabled specs
// draw nothing. Exponential draws are bounded to [min, max] with mean
// (max-min)/7 so the configured range covers roughly ±3.5 standard
// deviations.
func drawTimeout(ts taskconfig.TimeoutSpec, rng *rand.Rand) (time.Duration, bool) {
	if !ts.Enabled {
		return 0, false
	}
	switch ts.Mode {
	case taskconfig.TimeoutFixed:
		return secondsToDuration(ts.Value), true
	case taskconfig.TimeoutExp:
		span := ts.Max - ts.Min
		jitter := rng.ExpFloat64() * span / 7
		if jitter > span {
			jitter = span
		}
		return secondsToDuration(ts.Min + jitter), true
	default:
		// Unreachable: modes are validated at config load.
		return 0, false
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// #endregion draw
