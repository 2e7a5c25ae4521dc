package machine

import "context"

// #region loop

// Loop serializes every event source (scheduler callbacks, surface events,
// operator input) onto one queue consumed by one goroutine, so the machine
// processes events strictly in arrival order and never mid-transition.
type Loop struct {
	ch chan item
}

type item struct {
	ev Event
	fn func(*Machine)
}

// NewLoop creates a Loop with the given queue depth.
func NewLoop(buffer int) *Loop {
	return &Loop{ch: make(chan item, buffer)}
}

// Post enqueues an event for the machine.
func (l *Loop) Post(ev Event) {
	l.ch <- item{ev: ev}
}

// PostTimeout adapts the scheduler's fire callback onto the queue.
func (l *Loop) PostTimeout(state string) {
	l.Post(TimeoutEvent(state))
}

// Do enqueues a closure that runs on the loop goroutine with exclusive
// access to the machine. Used for operator queries and commands.
func (l *Loop) Do(fn func(*Machine)) {
	l.ch <- item{fn: fn}
}

// Run consumes the queue until ctx is canceled or the machine reports an
// internal-consistency error.
func (l *Loop) Run(ctx context.Context, m *Machine) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-l.ch:
			if it.fn != nil {
				it.fn(m)
				continue
			}
			if err := m.HandleEvent(it.ev); err != nil {
				return err
			}
		}
	}
}

// #endregion loop
