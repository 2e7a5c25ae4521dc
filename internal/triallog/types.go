package triallog

import "time"

// #region trial-row

// TrialRow is one row of the trials table.
type TrialRow struct {
	TrialID     string
	StartedAt   time.Time
	EndedAt     time.Time // zero while the trial is open
	Outcome     string    // "success" | "failure" | "" while open
	NOvershoots int
}

// Open reports whether the trial has no recorded outcome yet.
func (t TrialRow) Open() bool {
	return t.Outcome == ""
}

// #endregion trial-row

// #region session-summary

// SessionSummary aggregates trial outcomes across the whole database.
type SessionSummary struct {
	Trials           int
	Successes        int
	Failures         int
	SuccessRate      float64
	MeanTrialSeconds float64
	Transitions      int
}

// #endregion session-summary
