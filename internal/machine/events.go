package machine

import (
	"fmt"
	"time"
)

// #region triggers

// Trigger names raised by the Surface and the scheduler. Matching against
// transition tables is case-insensitive.
const (
	TriggerTimeout   = "timeout"
	TriggerEnterIdle = "enter_idle"
	TriggerExitIdle  = "exit_idle"
	TriggerEnterT1   = "enter_t1"
	TriggerExitT1    = "exit_t1"
	TriggerEnterT2   = "enter_t2"
	TriggerExitT2    = "exit_t2"
	TriggerEnterRing = "enter_ring"
	TriggerExitRing  = "exit_ring"
)

// #endregion triggers

// #region event

// Event is one unit of input to the machine: a surface callback or a
// scheduler timeout. State is set only on timeout events and carries the
// state name that was active at arm time.
type Event struct {
	Trigger string
	State   string
}

// TimeoutEvent builds the event the scheduler posts when its timer fires.
func TimeoutEvent(state string) Event {
	return Event{Trigger: TriggerTimeout, State: state}
}

// #endregion event

// #region transition-record

// TransitionRecord is one timestamped entry of the trial log: which named
// action moved the machine from prev to cur within a trial.
type TransitionRecord struct {
	TrialID string
	Type    string
	Prev    string
	Cur     string
	At      time.Time
}

// String renders the record in the trial-log line format.
func (r TransitionRecord) String() string {
	return fmt.Sprintf("%s :: TYPE=%s :: PREV=%s :: CUR=%s", r.TrialID, r.Type, r.Prev, r.Cur)
}

// #endregion transition-record

// #region sink

// Sink consumes trial lifecycle records. The SQLite store implements it for
// the live controller; an in-memory log implements it for replay and tests.
type Sink interface {
	BeginTrial(trialID string, startedAt time.Time) error
	EndTrial(trialID string, outcome string, overshoots int, endedAt time.Time) error
	RecordTransition(rec TransitionRecord) error
}

// Trial outcomes written to the Sink.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// #endregion sink

// #region timer

// Timer is the machine's view of the timeout scheduler.
type Timer interface {
	Arm(d time.Duration, state string)
	Disarm()
}

// #endregion timer
