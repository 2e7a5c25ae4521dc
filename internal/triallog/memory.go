package triallog

import (
	"time"

	"github.com/danielpatrickdp/reach-controller/internal/machine"
)

// #region memory-log

// MemoryLog is an in-memory machine.Sink for replay runs and tests.
type MemoryLog struct {
	Trials  []TrialRow
	Records []machine.TransitionRecord
}

// NewMemoryLog returns an empty in-memory trial log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// BeginTrial appends an open trial row.
func (m *MemoryLog) BeginTrial(trialID string, startedAt time.Time) error {
	m.Trials = append(m.Trials, TrialRow{TrialID: trialID, StartedAt: startedAt})
	return nil
}

// EndTrial closes the matching open trial row.
func (m *MemoryLog) EndTrial(trialID string, outcome string, overshoots int, endedAt time.Time) error {
	for i := range m.Trials {
		if m.Trials[i].TrialID == trialID {
			m.Trials[i].Outcome = outcome
			m.Trials[i].NOvershoots = overshoots
			m.Trials[i].EndedAt = endedAt
			return nil
		}
	}
	return nil
}

// RecordTransition appends the record.
func (m *MemoryLog) RecordTransition(rec machine.TransitionRecord) error {
	m.Records = append(m.Records, rec)
	return nil
}

// #endregion memory-log
