package machine

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/cue"
	"github.com/danielpatrickdp/reach-controller/internal/surface"
	"github.com/danielpatrickdp/reach-controller/internal/target"
	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
	"github.com/danielpatrickdp/reach-controller/internal/trial"
)

// #region fakes

type fakeTimer struct {
	armed   bool
	d       time.Duration
	state   string
	arms    int
	disarms int
}

func (f *fakeTimer) Arm(d time.Duration, state string) {
	f.armed = true
	f.d = d
	f.state = state
	f.arms++
}

func (f *fakeTimer) Disarm() {
	f.armed = false
	f.disarms++
}

type endRec struct {
	trialID    string
	outcome    string
	overshoots int
	endedAt    time.Time
}

type memSink struct {
	begins []string
	ends   []endRec
	recs   []TransitionRecord
}

func (s *memSink) BeginTrial(trialID string, _ time.Time) error {
	s.begins = append(s.begins, trialID)
	return nil
}

func (s *memSink) EndTrial(trialID, outcome string, overshoots int, endedAt time.Time) error {
	s.ends = append(s.ends, endRec{trialID, outcome, overshoots, endedAt})
	return nil
}

func (s *memSink) RecordTransition(rec TransitionRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

// #endregion fakes

// #region rig

func testConfig() taskconfig.Config {
	return taskconfig.Config{
		Task: taskconfig.TaskInfo{Name: "center-out"},
		States: []taskconfig.StateDescriptor{
			{Name: "idle", Timeout: taskconfig.TimeoutSpec{Enabled: false}},
			{
				Name:    "t1_pre",
				Timeout: taskconfig.TimeoutSpec{Enabled: true, Mode: taskconfig.TimeoutFixed, Value: 0.5},
				Transitions: []taskconfig.Transition{
					{Trigger: "enter_t1", Name: "next", Dest: "t1_hold"},
					{Trigger: "timeout", Name: "fail", Dest: "t1_pre"},
				},
				OnEnter: []string{"show_t1", "show_cursor"},
			},
			{
				Name:    "t1_hold",
				Timeout: taskconfig.TimeoutSpec{Enabled: true, Mode: taskconfig.TimeoutFixed, Value: 0.25},
				Transitions: []taskconfig.Transition{
					{Trigger: "timeout", Name: "next", Dest: "t2_pre"},
					{Trigger: "exit_t1", Name: "fail", Dest: "t1_pre"},
				},
			},
			{
				Name:    "t2_pre",
				Timeout: taskconfig.TimeoutSpec{Enabled: true, Mode: taskconfig.TimeoutFixed, Value: 2},
				Transitions: []taskconfig.Transition{
					{Trigger: "enter_t2", Name: "succeed", Dest: "reward"},
					{Trigger: "exit_ring", Name: "overshoot", Dest: "t2_pre"},
					{Trigger: "timeout", Name: "fail", Dest: "t1_pre"},
				},
				OnEnter: []string{"hide_t1", "show_t2", "cue_go"},
			},
			{
				Name:    "reward",
				Timeout: taskconfig.TimeoutSpec{Enabled: false},
				Transitions: []taskconfig.Transition{
					{Trigger: "enter_t1", Name: "next", Dest: "t1_pre"},
				},
			},
		},
		Parameters: taskconfig.Parameters{
			Targets:            []float64{0, 90, 180, 270},
			NOvershootsAllowed: 2,
		},
		State: taskconfig.InitialState{Cur: "t1_pre"},
	}
}

type rig struct {
	cfg   taskconfig.Config
	m     *Machine
	surf  *surface.Recorder
	cues  *cue.Recorder
	timer *fakeTimer
	sink  *memSink
	book  *trial.Bookkeeper
	sel   *target.Selector
}

func newRig(t *testing.T, mut func(cfg *taskconfig.Config)) *rig {
	t.Helper()
	r := &rig{cfg: testConfig()}
	if mut != nil {
		mut(&r.cfg)
	}
	rng := rand.New(rand.NewSource(1))
	now := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	r.surf = surface.NewRecorder()
	r.cues = cue.NewRecorder()
	r.timer = &fakeTimer{}
	r.sink = &memSink{}
	r.book = trial.NewBookkeeper(r.cfg.States, rng, now)
	r.sel = target.NewSelector(r.cfg.Parameters.Targets, rng, r.surf)

	m, err := New(&r.cfg, Deps{
		Book:    r.book,
		Targets: r.sel,
		Surface: r.surf,
		Cues:    r.cues,
		Timer:   r.timer,
		Sink:    r.sink,
		Now:     now,
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start machine: %v", err)
	}
	r.m = m
	return r
}

func (r *rig) fire(t *testing.T, trigger string) {
	t.Helper()
	if err := r.m.HandleEvent(Event{Trigger: trigger}); err != nil {
		t.Fatalf("handle %q: %v", trigger, err)
	}
}

func (r *rig) fireTimeout(t *testing.T) {
	t.Helper()
	state, armed := r.m.TimerArmed()
	if !armed {
		t.Fatal("no timeout armed")
	}
	if err := r.m.HandleEvent(TimeoutEvent(state)); err != nil {
		t.Fatalf("handle timeout for %q: %v", state, err)
	}
}

// toT2Pre drives the rig from t1_pre into t2_pre.
func (r *rig) toT2Pre(t *testing.T) {
	t.Helper()
	r.fire(t, "enter_t1")  // t1_pre -> t1_hold
	r.fireTimeout(t)       // t1_hold -> t2_pre
	if r.m.Current() != "t2_pre" {
		t.Fatalf("setup: current = %q, want t2_pre", r.m.Current())
	}
}

// #endregion rig

// #region start-tests

func TestStartEntersInitialState(t *testing.T) {
	r := newRig(t, nil)

	if r.m.Current() != "t1_pre" {
		t.Fatalf("current = %q, want t1_pre", r.m.Current())
	}
	if !r.timer.armed || r.timer.d != 500*time.Millisecond || r.timer.state != "t1_pre" {
		t.Fatalf("timer = %+v, want armed 500ms for t1_pre", r.timer)
	}
	if len(r.sink.begins) != 1 {
		t.Fatalf("begins = %d, want 1 open trial", len(r.sink.begins))
	}
	if len(r.surf.Transitions) != 2 {
		t.Errorf("mirrored %d transitions, want 2", len(r.surf.Transitions))
	}
	wantCalls := []string{"showT1", "showCursor"}
	if !hasSubsequence(r.surf.Calls, wantCalls) {
		t.Errorf("surface calls %v missing on-enter sequence %v", r.surf.Calls, wantCalls)
	}
}

// #endregion start-tests

// #region dispatch-tests

func TestMatchedTransitionMoves(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_t1")

	if r.m.Current() != "t1_hold" || r.m.Previous() != "t1_pre" {
		t.Fatalf("history = %q/%q, want t1_hold/t1_pre", r.m.Current(), r.m.Previous())
	}
	if !r.timer.armed || r.timer.d != 250*time.Millisecond {
		t.Fatalf("timer = %+v, want armed 250ms", r.timer)
	}
	if len(r.sink.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(r.sink.recs))
	}
	rec := r.sink.recs[0]
	if rec.Type != "next" || rec.Prev != "t1_pre" || rec.Cur != "t1_hold" {
		t.Errorf("record = %+v", rec)
	}
	if rec.TrialID != r.m.TrialID() {
		t.Errorf("record trial %q != current trial %q", rec.TrialID, r.m.TrialID())
	}
}

func TestUnmatchedTriggerIsNoOp(t *testing.T) {
	r := newRig(t, nil)
	arms, calls := r.timer.arms, len(r.surf.Calls)

	r.fire(t, "foo")

	if r.m.Current() != "t1_pre" {
		t.Fatalf("current moved to %q on unmatched trigger", r.m.Current())
	}
	if len(r.sink.recs) != 0 {
		t.Error("unmatched trigger produced a transition record")
	}
	if r.timer.arms != arms || len(r.surf.Calls) != calls {
		t.Error("unmatched trigger caused side effects")
	}
	if got := r.m.Counters().Unmatched; got != 1 {
		t.Errorf("unmatched counter = %d, want 1", got)
	}
}

func TestTriggerMatchIsCaseInsensitive(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "ENTER_T1")
	if r.m.Current() != "t1_hold" {
		t.Fatalf("current = %q, want t1_hold", r.m.Current())
	}
}

func TestTimeoutEventDrivesTable(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_t1")
	r.fireTimeout(t)
	if r.m.Current() != "t2_pre" {
		t.Fatalf("current = %q, want t2_pre", r.m.Current())
	}
}

// #endregion dispatch-tests

// #region outcome-tests

func TestSucceedCountsAndResets(t *testing.T) {
	r := newRig(t, nil)
	r.toT2Pre(t)
	firstTrial := r.m.TrialID()

	r.fire(t, "enter_t2")

	c := r.m.Counters()
	if c.Total != 1 || c.Successful != 1 {
		t.Fatalf("counters = %+v, want total=1 successful=1", c)
	}
	if r.m.Current() != "reward" {
		t.Fatalf("current = %q, want reward", r.m.Current())
	}
	if r.m.TrialID() == firstTrial {
		t.Error("trial ID not refreshed on succeed")
	}
	if len(r.cues.Played) == 0 || r.cues.Played[len(r.cues.Played)-1] != cue.Success {
		t.Errorf("cues = %v, want trailing success cue", r.cues.Played)
	}
	if len(r.sink.ends) != 1 || r.sink.ends[0].outcome != OutcomeSuccess {
		t.Fatalf("ends = %+v, want one success", r.sink.ends)
	}
	if r.sink.ends[0].trialID != firstTrial {
		t.Errorf("ended trial %q, want %q", r.sink.ends[0].trialID, firstTrial)
	}
	if !r.sink.ends[0].endedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ended at %v, want the injected clock time", r.sink.ends[0].endedAt)
	}
	if len(r.sink.begins) != 2 {
		t.Errorf("begins = %d, want 2 (initial + post-succeed)", len(r.sink.begins))
	}
}

func TestDirectionFlipsOncePerSucceed(t *testing.T) {
	r := newRig(t, nil)
	r.toT2Pre(t)

	r.fire(t, "enter_t2") // succeed #1: 0 -> 1, target redrawn
	if r.sel.Direction() != target.DirCenterOut {
		t.Fatalf("direction = %d after first succeed, want 1", r.sel.Direction())
	}
	picked := r.sel.Index()

	// Drive a full second trial to the next succeed.
	r.fire(t, "enter_t1") // reward -> t1_pre
	r.toT2Pre(t)
	r.fire(t, "enter_t2") // succeed #2: 1 -> 0, target kept

	if r.sel.Direction() != target.DirOutCenter {
		t.Fatalf("direction = %d after second succeed, want 0", r.sel.Direction())
	}
	if r.sel.Index() != picked {
		t.Errorf("target index changed on 1->0 flip: %d -> %d", picked, r.sel.Index())
	}
}

func TestFailCountsAndResets(t *testing.T) {
	r := newRig(t, nil)
	firstTrial := r.m.TrialID()

	r.fireTimeout(t) // t1_pre timeout -> fail -> t1_pre

	c := r.m.Counters()
	if c.Total != 1 || c.Successful != 0 {
		t.Fatalf("counters = %+v, want total=1 successful=0", c)
	}
	if r.m.Current() != "t1_pre" {
		t.Fatalf("current = %q, want t1_pre", r.m.Current())
	}
	if r.m.TrialID() == firstTrial {
		t.Error("trial ID not refreshed on fail")
	}
	if r.sel.Direction() != target.DirOutCenter {
		t.Errorf("direction = %d, fail must not toggle direction", r.sel.Direction())
	}
	if len(r.cues.Played) == 0 || r.cues.Played[len(r.cues.Played)-1] != cue.Fail {
		t.Errorf("cues = %v, want trailing fail cue", r.cues.Played)
	}
	if len(r.sink.ends) != 1 || r.sink.ends[0].outcome != OutcomeFailure {
		t.Fatalf("ends = %+v, want one failure", r.sink.ends)
	}
}

func TestOvershootUnderCapTransitionsNormally(t *testing.T) {
	r := newRig(t, nil)
	r.toT2Pre(t)

	r.fire(t, "exit_ring")
	r.fire(t, "exit_ring")

	c := r.m.Counters()
	if c.Overshoot != 2 {
		t.Fatalf("overshoot = %d, want 2", c.Overshoot)
	}
	if c.Total != 0 {
		t.Fatalf("total = %d, overshoots under cap must not close the trial", c.Total)
	}
	if r.m.Current() != "t2_pre" {
		t.Fatalf("current = %q, want declared dest t2_pre", r.m.Current())
	}
}

func TestOvershootOverCapForcesFailEscape(t *testing.T) {
	r := newRig(t, nil)
	r.toT2Pre(t)

	r.fire(t, "exit_ring")
	r.fire(t, "exit_ring")
	r.fire(t, "exit_ring") // third exceeds n_overshoots_allowed=2

	c := r.m.Counters()
	if r.m.Current() != "t1_pre" {
		t.Fatalf("current = %q, want escape state t1_pre", r.m.Current())
	}
	if c.Total != 1 || c.Successful != 0 {
		t.Fatalf("counters = %+v, want forced fail counted", c)
	}
	if c.Overshoot != 0 {
		t.Fatalf("overshoot = %d, want 0 after trial reset", c.Overshoot)
	}
	if len(r.sink.ends) != 1 || r.sink.ends[0].outcome != OutcomeFailure || r.sink.ends[0].overshoots != 3 {
		t.Fatalf("ends = %+v, want failure with 3 overshoots", r.sink.ends)
	}
	last := r.sink.recs[len(r.sink.recs)-1]
	if last.Type != "fail" {
		t.Errorf("last record type = %q, want fail", last.Type)
	}
}

// #endregion outcome-tests

// #region timer-tests

func TestDisabledTimeoutArmsNoTimer(t *testing.T) {
	r := newRig(t, nil)
	r.toT2Pre(t)
	r.fire(t, "enter_t2") // -> reward, timeout disabled

	if _, armed := r.m.TimerArmed(); armed {
		t.Fatal("reward has a disabled timeout but a timer is armed")
	}
	if r.timer.armed {
		t.Fatal("underlying timer still armed in a disabled-timeout state")
	}
}

func TestSupersededTimeoutIsDropped(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_t1") // disarms t1_pre timer, arms t1_hold

	// A t1_pre timeout that was already queued when the transition ran.
	if err := r.m.HandleEvent(TimeoutEvent("t1_pre")); err != nil {
		t.Fatalf("superseded timeout must be dropped, got %v", err)
	}
	if r.m.Current() != "t1_hold" {
		t.Fatalf("current = %q, superseded timeout must not transition", r.m.Current())
	}
	if got := r.m.Counters().Unmatched; got != 0 {
		t.Errorf("unmatched = %d, dropped timeouts are not unmatched triggers", got)
	}
}

func TestStaleTimeoutIsFatal(t *testing.T) {
	r := newRig(t, nil)
	// Corrupt internal consistency: armed for a state that is not current.
	r.m.armedState = "t1_hold"

	err := r.m.HandleEvent(TimeoutEvent("t1_hold"))
	if !errors.Is(err, ErrStaleTimeout) {
		t.Fatalf("err = %v, want ErrStaleTimeout", err)
	}
}

// #endregion timer-tests

// #region idle-tests

func TestIdleRoundTripRestoresHistory(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_t1")
	cur, prev, prev2 := r.m.Current(), r.m.Previous(), r.m.SecondPrevious()

	r.fire(t, "enter_idle")
	if !r.m.IdleActive() || r.m.Current() != StateIdle {
		t.Fatalf("overlay not engaged: current = %q", r.m.Current())
	}
	if r.m.Previous() != cur {
		t.Fatalf("previous = %q while idle, want resume state %q", r.m.Previous(), cur)
	}
	if _, armed := r.m.TimerArmed(); armed {
		t.Fatal("timer must be disarmed while idle")
	}

	r.fire(t, "exit_idle")
	if r.m.IdleActive() {
		t.Fatal("overlay still engaged after exit_idle")
	}
	if r.m.Current() != cur || r.m.Previous() != prev || r.m.SecondPrevious() != prev2 {
		t.Fatalf("history = %q/%q/%q, want %q/%q/%q restored",
			r.m.Current(), r.m.Previous(), r.m.SecondPrevious(), cur, prev, prev2)
	}
	if state, armed := r.m.TimerArmed(); !armed || state != cur {
		t.Fatalf("timeout not re-armed for %q after exit_idle", cur)
	}
}

func TestIdleSuppressesSecondaryTriggers(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_idle")
	before := r.m.Counters()

	r.fire(t, "enter_t1")

	if r.m.Current() != StateIdle {
		t.Fatalf("current = %q, secondary trigger must not act while idle", r.m.Current())
	}
	if r.m.Counters() != before {
		t.Error("suppressed trigger touched counters")
	}
	if len(r.sink.recs) != 0 {
		t.Error("suppressed trigger produced a transition record")
	}
}

func TestEnterIdleWhileIdleIsNoOp(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_idle")
	calls := len(r.surf.Calls)
	r.fire(t, "enter_idle")
	if len(r.surf.Calls) != calls {
		t.Fatal("repeated enter_idle re-ran overlay actions")
	}
}

func TestExitIdleWhileActiveIsNoOp(t *testing.T) {
	r := newRig(t, nil)
	calls := len(r.surf.Calls)
	r.fire(t, "exit_idle")
	if r.m.Current() != "t1_pre" || len(r.surf.Calls) != calls {
		t.Fatal("exit_idle outside the overlay must do nothing")
	}
}

func TestExitIdleFromConfiguredIdleStartIsNoOp(t *testing.T) {
	r := newRig(t, func(cfg *taskconfig.Config) { cfg.State.Cur = "idle" })

	r.fire(t, "exit_idle")

	if r.m.Current() != "idle" {
		t.Fatalf("current = %q after spurious exit_idle, want idle", r.m.Current())
	}
	if r.m.IdleActive() {
		t.Fatal("overlay engaged without enter_idle")
	}
	// Dispatch must still work afterwards.
	r.fire(t, "enter_t1")
	if got := r.m.Counters().Unmatched; got != 1 {
		t.Fatalf("unmatched = %d, want 1 (the idle state declares no transitions)", got)
	}
}

func TestOverlayOverConfiguredIdleState(t *testing.T) {
	r := newRig(t, func(cfg *taskconfig.Config) { cfg.State.Cur = "idle" })

	r.fire(t, "enter_idle")
	if !r.m.IdleActive() || r.m.Current() != "idle" {
		t.Fatalf("overlay not engaged over the configured idle state: current = %q", r.m.Current())
	}

	r.fire(t, "exit_idle")
	if r.m.IdleActive() {
		t.Fatal("overlay still engaged after exit_idle")
	}
	if r.m.Current() != "idle" {
		t.Fatalf("current = %q after overlay exit, want the configured idle state", r.m.Current())
	}
}

func TestQueuedTimeoutDroppedWhileIdle(t *testing.T) {
	r := newRig(t, nil) // t1_pre's timeout armed at start, disarmed by idle entry
	r.fire(t, "enter_idle")

	if err := r.m.HandleEvent(TimeoutEvent("t1_pre")); err != nil {
		t.Fatalf("timeout while idle must be dropped, got %v", err)
	}
	if r.m.Current() != StateIdle {
		t.Fatalf("current = %q, want idle", r.m.Current())
	}
	if got := r.m.Counters().Unmatched; got != 0 {
		t.Errorf("unmatched = %d, dropped timeouts are not unmatched triggers", got)
	}
}

func TestIdleRestoresVisibility(t *testing.T) {
	r := newRig(t, nil)
	r.toT2Pre(t) // t2 visible, t1 hidden by t2_pre's on-enter
	r.surf.Reset()

	r.fire(t, "enter_idle")
	if !hasSubsequence(r.surf.Calls, []string{"hideT2", "hideCursor"}) {
		t.Errorf("enter_idle calls %v, want hideT2 then hideCursor", r.surf.Calls)
	}
	for _, c := range r.surf.Calls {
		if c == "hideT1" {
			t.Error("idle hid t1 even though it was already hidden")
		}
	}

	r.surf.Reset()
	r.fire(t, "exit_idle")
	if !hasSubsequence(r.surf.Calls, []string{"showT2", "showCursor"}) {
		t.Errorf("exit_idle calls %v, want showT2 then showCursor", r.surf.Calls)
	}
}

// #endregion idle-tests

// #region on-enter-tests

func TestOnEnterActionsRunInDeclaredOrder(t *testing.T) {
	r := newRig(t, nil)
	r.fire(t, "enter_t1")
	r.surf.Reset()

	r.fireTimeout(t) // -> t2_pre: hide_t1, show_t2, cue_go

	if !hasSubsequence(r.surf.Calls, []string{"hideT1", "showT2"}) {
		t.Errorf("surface calls %v, want hideT1 before showT2", r.surf.Calls)
	}
	if len(r.cues.Played) == 0 || r.cues.Played[len(r.cues.Played)-1] != cue.Go {
		t.Errorf("cues = %v, want trailing go cue", r.cues.Played)
	}
}

// #endregion on-enter-tests

// #region validation-tests

func TestUnregisteredTransitionActionRejected(t *testing.T) {
	cfg := testConfig()
	cfg.States[1].Transitions[0].Name = "teleport"
	if err := buildOnly(&cfg); err == nil {
		t.Fatal("expected error for unregistered transition action")
	}
}

func TestUnregisteredOnEnterActionRejected(t *testing.T) {
	cfg := testConfig()
	cfg.States[1].OnEnter = append(cfg.States[1].OnEnter, "flash_room")
	if err := buildOnly(&cfg); err == nil {
		t.Fatal("expected error for unregistered on-enter action")
	}
}

func TestOvershootRequiresEscapeState(t *testing.T) {
	cfg := testConfig()
	// Rename the escape state away while keeping overshoot configured.
	cfg.States[1].Name = "center_pre"
	for i := range cfg.States {
		for j := range cfg.States[i].Transitions {
			if cfg.States[i].Transitions[j].Dest == "t1_pre" {
				cfg.States[i].Transitions[j].Dest = "center_pre"
			}
		}
	}
	cfg.State.Cur = "center_pre"
	if err := buildOnly(&cfg); err == nil {
		t.Fatal("expected error: overshoot configured without t1_pre")
	}
}

// buildOnly constructs a machine without starting it.
func buildOnly(cfg *taskconfig.Config) error {
	rng := rand.New(rand.NewSource(1))
	now := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	surf := surface.NewRecorder()
	_, err := New(cfg, Deps{
		Book:    trial.NewBookkeeper(cfg.States, rng, now),
		Targets: target.NewSelector(cfg.Parameters.Targets, rng, surf),
		Surface: surf,
		Cues:    cue.NewRecorder(),
		Timer:   &fakeTimer{},
		Now:     now,
	})
	return err
}

// #endregion validation-tests

// #region record-tests

func TestTransitionRecordFormat(t *testing.T) {
	rec := TransitionRecord{
		TrialID: "abc-123",
		Type:    "succeed",
		Prev:    "t2_hold",
		Cur:     "t1_pre",
	}
	want := "abc-123 :: TYPE=succeed :: PREV=t2_hold :: CUR=t1_pre"
	if got := rec.String(); got != want {
		t.Fatalf("record string = %q, want %q", got, want)
	}
}

// #endregion record-tests

// #region helpers

// hasSubsequence reports whether want appears in got in order, not
// necessarily adjacent.
func hasSubsequence(got, want []string) bool {
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	return i == len(want)
}

// #endregion helpers
