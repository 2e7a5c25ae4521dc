package surface

import (
	"log"

	"github.com/danielpatrickdp/reach-controller/internal/taskconfig"
)

// #region surface-interface

// Surface is the graphics collaborator: target visibility, cursor visibility,
// and outer-target layout. It is mutated only by the task machine
// (single-writer discipline).
type Surface interface {
	ShowT1()
	HideT1()
	ShowT2()
	HideT2()
	ShowCursor()
	HideCursor()
	// SetOuterTargetIndex selects which configured target the outer ring shows.
	SetOuterTargetIndex(idx int)
	// SetDirection publishes the trial phase: 0 = out→center, 1 = center→out.
	SetDirection(dir int)
	// SetTransitions mirrors the current state's transition list for external
	// introspection.
	SetTransitions(transitions []taskconfig.Transition)
}

// #endregion surface-interface

// #region log-surface

// LogSurface writes every surface command to the process log. Used when the
// controller runs without a rendering backend attached.
type LogSurface struct{}

// NewLogSurface returns a Surface that only logs.
func NewLogSurface() *LogSurface {
	return &LogSurface{}
}

func (s *LogSurface) ShowT1()     { log.Printf("[SURF] showT1") }
func (s *LogSurface) HideT1()     { log.Printf("[SURF] hideT1") }
func (s *LogSurface) ShowT2()     { log.Printf("[SURF] showT2") }
func (s *LogSurface) HideT2()     { log.Printf("[SURF] hideT2") }
func (s *LogSurface) ShowCursor() { log.Printf("[SURF] showCursor") }
func (s *LogSurface) HideCursor() { log.Printf("[SURF] hideCursor") }

func (s *LogSurface) SetOuterTargetIndex(idx int) {
	log.Printf("[SURF] setOuterTargetIndex idx=%d", idx)
}

func (s *LogSurface) SetDirection(dir int) {
	log.Printf("[SURF] direction=%d", dir)
}

func (s *LogSurface) SetTransitions(transitions []taskconfig.Transition) {
	log.Printf("[SURF] transitions mirrored (%d entries)", len(transitions))
}

// #endregion log-surface

// #region recorder

// Recorder captures surface commands for tests and replay. Not safe for
// concurrent use; the machine is the only writer.
type Recorder struct {
	Calls       []string
	TargetIndex int
	Direction   int
	Transitions []taskconfig.Transition
}

// NewRecorder returns an empty command recorder.
func NewRecorder() *Recorder {
	return &Recorder{TargetIndex: -1}
}

func (r *Recorder) ShowT1()     { r.Calls = append(r.Calls, "showT1") }
func (r *Recorder) HideT1()     { r.Calls = append(r.Calls, "hideT1") }
func (r *Recorder) ShowT2()     { r.Calls = append(r.Calls, "showT2") }
func (r *Recorder) HideT2()     { r.Calls = append(r.Calls, "hideT2") }
func (r *Recorder) ShowCursor() { r.Calls = append(r.Calls, "showCursor") }
func (r *Recorder) HideCursor() { r.Calls = append(r.Calls, "hideCursor") }

func (r *Recorder) SetOuterTargetIndex(idx int) {
	r.TargetIndex = idx
	r.Calls = append(r.Calls, "setOuterTargetIndex")
}

func (r *Recorder) SetDirection(dir int) {
	r.Direction = dir
	r.Calls = append(r.Calls, "setDirection")
}

func (r *Recorder) SetTransitions(transitions []taskconfig.Transition) {
	r.Transitions = transitions
}

// Reset clears recorded calls, keeping layout state.
func (r *Recorder) Reset() {
	r.Calls = nil
}

// #endregion recorder
