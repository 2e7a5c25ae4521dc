package replay

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/cue"
	"github.com/danielpatrickdp/reach-controller/internal/machine"
	"github.com/danielpatrickdp/reach-controller/internal/surface"
	"github.com/danielpatrickdp/reach-controller/internal/target"
	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
	"github.com/danielpatrickdp/reach-controller/internal/trial"
	"github.com/danielpatrickdp/reach-controller/internal/triallog"
)

// #region result-types

// StepResult captures machine state after one processed event.
type StepResult struct {
	Index       int
	AtMS        int64
	Trigger     string
	Synthesized bool // true for harness-fired timeouts
	Cur         string
	Counters    trial.Counters
	Direction   int
}

// Summary is the outcome of a full replay run.
type Summary struct {
	Steps     []StepResult
	Cur       string
	Counters  trial.Counters
	Direction int
	Trials    []triallog.TrialRow
	Records   []machine.TransitionRecord
	Cues      []cue.Cue
}

// #endregion result-types

// #region clock-timer

// scriptClock maps fixture milliseconds onto wall-clock timestamps from a
// fixed epoch, so replays are bit-for-bit reproducible.
type scriptClock struct {
	epoch time.Time
	nowMS int64
}

func (c *scriptClock) now() time.Time {
	return c.epoch.Add(time.Duration(c.nowMS) * time.Millisecond)
}

// scriptTimer records arm/disarm instead of scheduling; the harness fires
// due timeouts synchronously as scripted time advances.
type scriptTimer struct {
	clock      *scriptClock
	armed      bool
	deadlineMS int64
	state      string
}

func (t *scriptTimer) Arm(d time.Duration, state string) {
	t.armed = true
	t.deadlineMS = t.clock.nowMS + d.Milliseconds()
	t.state = state
}

func (t *scriptTimer) Disarm() {
	t.armed = false
}

// #endregion clock-timer

// #region run

// Run replays a fixture through a fresh machine with a seeded RNG, a
// scripted clock, recording collaborators, and an in-memory trial log.
// Timeout events are synthesized whenever the armed deadline falls before
// the next scripted event (or RunUntilMS).
func Run(cfg taskconfig.Config, fx Fixture) (Summary, error) {
	events := append([]FixtureEvent(nil), fx.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].AtMS < events[j].AtMS })

	rng := rand.New(rand.NewSource(fx.Seed))
	clk := &scriptClock{epoch: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	timer := &scriptTimer{clock: clk}
	surf := surface.NewRecorder()
	cues := cue.NewRecorder()
	sink := triallog.NewMemoryLog()

	book := trial.NewBookkeeper(cfg.States, rng, clk.now)
	sel := target.NewSelector(cfg.Parameters.Targets, rng, surf)

	m, err := machine.New(&cfg, machine.Deps{
		Book:    book,
		Targets: sel,
		Surface: surf,
		Cues:    cues,
		Timer:   timer,
		Sink:    sink,
		Now:     clk.now,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("build machine: %w", err)
	}
	if err := m.Start(); err != nil {
		return Summary{}, fmt.Errorf("start machine: %w", err)
	}

	var sum Summary
	step := func(atMS int64, trigger string, synthesized bool, ev machine.Event) error {
		clk.nowMS = atMS
		if err := m.HandleEvent(ev); err != nil {
			return fmt.Errorf("step %d (%s at %dms): %w", len(sum.Steps)+1, trigger, atMS, err)
		}
		sum.Steps = append(sum.Steps, StepResult{
			Index:       len(sum.Steps) + 1,
			AtMS:        atMS,
			Trigger:     trigger,
			Synthesized: synthesized,
			Cur:         m.Current(),
			Counters:    m.Counters(),
			Direction:   sel.Direction(),
		})
		return nil
	}

	// fireDue synthesizes every timeout whose deadline is at or before
	// horizon. A fired timeout may re-arm the timer, so loop.
	fireDue := func(horizonMS int64) error {
		for timer.armed && timer.deadlineMS <= horizonMS {
			at, state := timer.deadlineMS, timer.state
			timer.armed = false // single-shot: firing consumes the timer
			if err := step(at, machine.TriggerTimeout, true, machine.TimeoutEvent(state)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ev := range events {
		if err := fireDue(ev.AtMS); err != nil {
			return Summary{}, err
		}
		if err := step(ev.AtMS, ev.Trigger, false, machine.Event{Trigger: ev.Trigger}); err != nil {
			return Summary{}, err
		}
	}
	if err := fireDue(fx.RunUntilMS); err != nil {
		return Summary{}, err
	}

	sum.Cur = m.Current()
	sum.Counters = m.Counters()
	sum.Direction = sel.Direction()
	sum.Trials = sink.Trials
	sum.Records = sink.Records
	sum.Cues = cues.Played
	return sum, nil
}

// #endregion run

// #region check

// Check compares a replay summary against the fixture's expected steps and
// final state, returning one message per mismatch.
func Check(sum Summary, fx Fixture) []string {
	var problems []string

	for _, exp := range fx.Expected {
		if exp.After < 1 || exp.After > len(sum.Steps) {
			problems = append(problems, fmt.Sprintf("expected step %d out of range (ran %d steps)", exp.After, len(sum.Steps)))
			continue
		}
		st := sum.Steps[exp.After-1]
		problems = append(problems, checkStep(fmt.Sprintf("step %d", exp.After), exp, st.Cur, st.Counters, st.Direction)...)
	}

	if fx.Final != nil {
		problems = append(problems, checkStep("final", *fx.Final, sum.Cur, sum.Counters, sum.Direction)...)
	}
	return problems
}

func checkStep(label string, exp ExpectedStep, cur string, c trial.Counters, dir int) []string {
	var problems []string
	if exp.Cur != "" && exp.Cur != cur {
		problems = append(problems, fmt.Sprintf("%s: cur = %q, want %q", label, cur, exp.Cur))
	}
	if exp.Total != nil && *exp.Total != c.Total {
		problems = append(problems, fmt.Sprintf("%s: total = %d, want %d", label, c.Total, *exp.Total))
	}
	if exp.Successful != nil && *exp.Successful != c.Successful {
		problems = append(problems, fmt.Sprintf("%s: successful = %d, want %d", label, c.Successful, *exp.Successful))
	}
	if exp.Overshoot != nil && *exp.Overshoot != c.Overshoot {
		problems = append(problems, fmt.Sprintf("%s: overshoot = %d, want %d", label, c.Overshoot, *exp.Overshoot))
	}
	if exp.Direction != nil && *exp.Direction != dir {
		problems = append(problems, fmt.Sprintf("%s: direction = %d, want %d", label, dir, *exp.Direction))
	}
	return problems
}

// #endregion check
