package cue

import "log"

// #region cue

// Cue identifies an audio cue. Waveform synthesis and playback live outside
// this process; the controller only issues play commands.
type Cue int

const (
	// Go marks trial-phase onset.
	Go Cue = iota
	// Success marks a successful trial outcome.
	Success
	// Fail marks a failed trial outcome.
	Fail
)

// String returns the cue's log name.
func (c Cue) String() string {
	switch c {
	case Go:
		return "go"
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// #endregion cue

// #region player

// Player is the audio collaborator.
type Player interface {
	Play(c Cue)
}

// LogPlayer logs play commands instead of producing audio.
type LogPlayer struct{}

// NewLogPlayer returns a Player that only logs.
func NewLogPlayer() *LogPlayer {
	return &LogPlayer{}
}

// Play logs the requested cue.
func (p *LogPlayer) Play(c Cue) {
	log.Printf("[CUE] play %s", c)
}

// Recorder captures played cues for tests and replay.
type Recorder struct {
	Played []Cue
}

// NewRecorder returns an empty cue recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Play appends the cue to the recorded list.
func (r *Recorder) Play(c Cue) {
	r.Played = append(r.Played, c)
}

// #endregion player
