package machine

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/cue"
	"github.com/danielpatrickdp/reach-controller/internal/surface"
	"github.com/danielpatrickdp/reach-controller/internal/target"
	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
	"github.com/danielpatrickdp/reach-controller/internal/trial"
)

// #region constants

// StateIdle is the idle overlay state name.
const StateIdle = "idle"

// escapeState is where the machine lands when the overshoot cap is exceeded.
// Hardcoded, not config-driven, matching the observed task behavior.
const escapeState = "t1_pre"

// ErrStaleTimeout reports a timeout event for a state the machine armed but
// is no longer in. The disarm-before-transition invariant makes this
// unreachable; seeing it means internal state is corrupt.
var ErrStaleTimeout = errors.New("stale timeout")

// #endregion constants

// #region machine-struct

// Machine is the task state machine. It owns the state history, applies
// transitions from the configured tables, runs on-enter actions, and
// coordinates bookkeeping, target selection, the scheduler, and the
// Surface/Cue collaborators. All methods must be called from a single
// goroutine; the Loop provides that discipline.
type Machine struct {
	cfg     *taskconfig.Config
	book    *trial.Bookkeeper
	targets *target.Selector
	surf    surface.Surface
	cues    cue.Player
	timer   Timer
	sink    Sink
	now     func() time.Time

	hist       *history
	overlay    bool
	armed      bool
	armedState string

	// Saved visibility flags, consulted by the idle overlay to restore the
	// display exactly as it was.
	t1Visible bool
	t2Visible bool

	actions map[string]func(dest string)
	enters  map[string]func()
}

// Deps bundles the machine's collaborators. Sink may be nil (records are
// discarded); Now defaults to time.Now.
type Deps struct {
	Book    *trial.Bookkeeper
	Targets *target.Selector
	Surface surface.Surface
	Cues    cue.Player
	Timer   Timer
	Sink    Sink
	Now     func() time.Time
}

// #endregion machine-struct

// #region constructor

// New builds a Machine for the given configuration and validates every
// transition action name and on-enter action name against the closed handler
// tables. Configurations referencing unregistered handlers are rejected here,
// never at dispatch time.
func New(cfg *taskconfig.Config, deps Deps) (*Machine, error) {
	if deps.Book == nil || deps.Targets == nil || deps.Surface == nil || deps.Cues == nil || deps.Timer == nil {
		return nil, fmt.Errorf("machine: missing collaborator")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}

	m := &Machine{
		cfg:     cfg,
		book:    deps.Book,
		targets: deps.Targets,
		surf:    deps.Surface,
		cues:    deps.Cues,
		timer:   deps.Timer,
		sink:    deps.Sink,
		now:     deps.Now,
		hist:    newHistory(cfg.State.Cur, cfg.State.Prev, cfg.State.Prev2),
	}

	m.actions = map[string]func(dest string){
		"next":      func(dest string) { m.applyTransition(dest, "next") },
		"succeed":   m.actSucceed,
		"fail":      m.actFail,
		"overshoot": m.actOvershoot,
	}
	m.enters = map[string]func(){
		"show_t1":     func() { m.t1Visible = true; m.surf.ShowT1() },
		"hide_t1":     func() { m.t1Visible = false; m.surf.HideT1() },
		"show_t2":     func() { m.t2Visible = true; m.surf.ShowT2() },
		"hide_t2":     func() { m.t2Visible = false; m.surf.HideT2() },
		"show_cursor": m.surf.ShowCursor,
		"hide_cursor": m.surf.HideCursor,
		"cue_go":      func() { m.cues.Play(cue.Go) },
	}

	if err := m.validateHandlers(); err != nil {
		return nil, err
	}
	return m, nil
}

// validateHandlers rejects configs that name unregistered handlers, and
// requires the escape state whenever the overshoot action is in use.
func (m *Machine) validateHandlers() error {
	usesOvershoot := false
	for _, s := range m.cfg.States {
		for _, t := range s.Transitions {
			name := strings.ToLower(t.Name)
			if _, ok := m.actions[name]; !ok {
				return fmt.Errorf("state %q: trigger %q names unregistered action %q", s.Name, t.Trigger, t.Name)
			}
			if name == "overshoot" {
				usesOvershoot = true
			}
		}
		for _, a := range s.OnEnter {
			if _, ok := m.enters[strings.ToLower(a)]; !ok {
				return fmt.Errorf("state %q: unregistered on-enter action %q", s.Name, a)
			}
		}
	}
	if usesOvershoot {
		if _, ok := m.cfg.Descriptor(escapeState); !ok {
			return fmt.Errorf("overshoot action configured but escape state %q is not", escapeState)
		}
	}
	return nil
}

// #endregion constructor

// #region start

// Start enters the initial state: opens the first trial in the sink, mirrors
// the state's transitions to the Surface, runs its on-enter actions, and arms
// its timeout if finite.
func (m *Machine) Start() error {
	if err := m.sink.BeginTrial(m.book.TrialID(), m.book.StartedAt()); err != nil {
		return fmt.Errorf("begin trial: %w", err)
	}
	m.enterState(m.hist.current())
	return nil
}

// #endregion start

// #region handle-event

// HandleEvent dispatches one event against the current state's transition
// table. Triggers that match nothing are silently ignored (counted in the
// Unmatched diagnostic). Idle overlay events bypass the table entirely.
func (m *Machine) HandleEvent(ev Event) error {
	trig := strings.ToLower(ev.Trigger)

	// The overlay flag, not the state name, decides both idle branches: a
	// task may legitimately configure a state named "idle" as its start.
	switch trig {
	case TriggerEnterIdle:
		if !m.overlay {
			m.enterIdle()
		}
		return nil
	case TriggerExitIdle:
		if m.overlay {
			m.exitIdle()
		}
		return nil
	}

	if trig == TriggerTimeout {
		// A timeout superseded while queued (its timer was disarmed after
		// firing, or by idle entry) is dropped. A live timeout for a
		// non-current state cannot happen: the machine only arms for the
		// state it is entering.
		if !m.armed || !strings.EqualFold(ev.State, m.armedState) {
			log.Printf("[TASK] dropping superseded timeout for %q", ev.State)
			return nil
		}
		if m.armedState != m.hist.current() {
			return fmt.Errorf("%w: armed for %q but current is %q", ErrStaleTimeout, m.armedState, m.hist.current())
		}
	}

	// Idle overlay: secondary triggers are not live.
	if m.overlay {
		return nil
	}

	desc, ok := m.cfg.Descriptor(m.hist.current())
	if !ok {
		return fmt.Errorf("current state %q has no descriptor", m.hist.current())
	}
	for _, t := range desc.Transitions {
		if strings.EqualFold(t.Trigger, ev.Trigger) {
			m.actions[strings.ToLower(t.Name)](t.Dest)
			return nil
		}
	}

	m.book.Counters.Unmatched++
	return nil
}

// #endregion handle-event

// #region apply-transition

// applyTransition is the state-update algorithm: disarm, shift history, emit
// the transition record, enter the destination state.
func (m *Machine) applyTransition(dest, transitionName string) {
	m.disarm()
	m.hist.push(dest)

	at := m.now()
	rec := TransitionRecord{
		TrialID: m.book.TrialID(),
		Type:    transitionName,
		Prev:    m.hist.previous(),
		Cur:     dest,
		At:      at,
	}
	log.Printf("[TASK] %s", rec)
	if err := m.sink.RecordTransition(rec); err != nil {
		log.Printf("[TASK] record transition: %v", err)
	}
	m.book.AppendEvent(dest, at)

	m.enterState(dest)
}

// enterState mirrors transitions, runs on-enter actions in declared order,
// and arms the state's per-trial timeout if finite.
func (m *Machine) enterState(name string) {
	desc, ok := m.cfg.Descriptor(name)
	if !ok {
		return
	}
	m.surf.SetTransitions(desc.Transitions)
	for _, a := range desc.OnEnter {
		m.enters[strings.ToLower(a)]()
	}
	if d, ok := m.book.TimeoutFor(name); ok {
		m.arm(d, name)
	}
}

func (m *Machine) arm(d time.Duration, state string) {
	m.timer.Arm(d, state)
	m.armed = true
	m.armedState = state
}

func (m *Machine) disarm() {
	m.timer.Disarm()
	m.armed = false
	m.armedState = ""
}

// #endregion apply-transition

// #region transition-actions

// actSucceed plays the success cue, counts the outcome, resets per-trial
// state, advances the target/direction, then transitions.
func (m *Machine) actSucceed(dest string) {
	m.cues.Play(cue.Success)
	m.book.Counters.Total++
	m.book.Counters.Successful++
	m.resetTrial(OutcomeSuccess)
	m.targets.Advance()
	m.applyTransition(dest, "succeed")
}

// actFail plays the fail cue, counts the outcome, resets per-trial state,
// then transitions. Direction and target are left untouched.
func (m *Machine) actFail(dest string) {
	m.cues.Play(cue.Fail)
	m.book.Counters.Total++
	m.resetTrial(OutcomeFailure)
	m.applyTransition(dest, "fail")
}

// actOvershoot counts an overshoot. Under the cap it performs the declared
// transition; over the cap it forces the fail path into the escape state
// instead of the declared destination.
func (m *Machine) actOvershoot(dest string) {
	m.book.Counters.Overshoot++
	if m.book.Counters.Overshoot > m.cfg.Parameters.NOvershootsAllowed {
		m.actFail(escapeState)
		return
	}
	m.applyTransition(dest, "overshoot")
}

// resetTrial closes the current trial in the sink, resets bookkeeping in
// place (redraws timeouts, new trial identifier), clears the saved target
// visibility flags, and opens the next trial.
func (m *Machine) resetTrial(outcome string) {
	if err := m.sink.EndTrial(m.book.TrialID(), outcome, m.book.Counters.Overshoot, m.now()); err != nil {
		log.Printf("[TASK] end trial: %v", err)
	}
	m.book.Reset()
	m.t1Visible = false
	m.t2Visible = false
	if err := m.sink.BeginTrial(m.book.TrialID(), m.book.StartedAt()); err != nil {
		log.Printf("[TASK] begin trial: %v", err)
	}
}

// #endregion transition-actions

// #region idle-overlay

// enterIdle suspends the task: only idle and timeout triggers stay live, the
// timer stops, and the display is blanked. History gains an overlay frame so
// exitIdle restores the exact pre-idle state.
func (m *Machine) enterIdle() {
	m.disarm()
	m.hist.pushOverlay(StateIdle)
	m.overlay = true
	if m.t1Visible {
		m.surf.HideT1()
	}
	if m.t2Visible {
		m.surf.HideT2()
	}
	m.surf.HideCursor()
	log.Printf("[TASK] idle overlay entered (resume state %q)", m.hist.previous())
}

// exitIdle resumes the task: pops the overlay frame, restores the display
// per the saved visibility flags, re-runs the restored state's on-enter
// actions, and re-arms its timeout if finite.
func (m *Machine) exitIdle() {
	m.hist.popOverlay()
	m.overlay = false
	if m.t1Visible {
		m.surf.ShowT1()
	}
	if m.t2Visible {
		m.surf.ShowT2()
	}
	m.surf.ShowCursor()
	log.Printf("[TASK] idle overlay exited (state %q)", m.hist.current())
	m.enterState(m.hist.current())
}

// #endregion idle-overlay

// #region accessors

// Current returns the active state name.
func (m *Machine) Current() string { return m.hist.current() }

// Previous returns the state before the current one.
func (m *Machine) Previous() string { return m.hist.previous() }

// SecondPrevious returns the state two transitions back.
func (m *Machine) SecondPrevious() string { return m.hist.secondPrevious() }

// IdleActive reports whether the idle overlay is engaged.
func (m *Machine) IdleActive() bool { return m.overlay }

// Counters returns the current outcome counters.
func (m *Machine) Counters() trial.Counters { return m.book.Counters }

// TrialID returns the active trial identifier.
func (m *Machine) TrialID() string { return m.book.TrialID() }

// TimerArmed reports whether a timeout is pending and for which state.
func (m *Machine) TimerArmed() (string, bool) { return m.armedState, m.armed }

// QueueTarget queues a target override for the next center→out pick.
func (m *Machine) QueueTarget(idx int) error { return m.targets.QueueOverride(idx) }

// Direction returns the target selector's current direction flag.
func (m *Machine) Direction() int { return m.targets.Direction() }

// #endregion accessors

// #region discard-sink

type discardSink struct{}

func (discardSink) BeginTrial(string, time.Time) error            { return nil }
func (discardSink) EndTrial(string, string, int, time.Time) error { return nil }
func (discardSink) RecordTransition(TransitionRecord) error       { return nil }

// #endregion discard-sink
