package target

import (
	"fmt"
	"math/rand"

	"github.com/danielpatrickdp/reach-controller/internal/surface"
)

// #region directions

const (
	// DirOutCenter is the out→center trial phase.
	DirOutCenter = 0
	// DirCenterOut is the center→out trial phase.
	DirCenterOut = 1
)

// #endregion directions

// #region selector

// Selector owns the direction flag and the outer-target index. The direction
// toggles exactly once per successful trial; the target index changes only
// when the post-toggle direction is center→out.
type Selector struct {
	targets []float64
	rng     *rand.Rand
	surf    surface.Surface

	direction   int
	index       int
	override    int
	hasOverride bool
}

// NewSelector creates a Selector over the configured target set and publishes
// the initial layout to the Surface.
func NewSelector(targets []float64, rng *rand.Rand, surf surface.Surface) *Selector {
	s := &Selector{
		targets:   targets,
		rng:       rng,
		surf:      surf,
		direction: DirOutCenter,
	}
	surf.SetOuterTargetIndex(s.index)
	surf.SetDirection(s.direction)
	return s
}

// #endregion selector

// #region advance

// Advance toggles the direction flag. When the new direction is center→out
// the next target is picked: a queued override if one is pending, otherwise a
// uniform draw from the configured set. Out→center keeps the prior target.
// The resulting index and direction are forwarded to the Surface.
func (s *Selector) Advance() {
	s.direction ^= 1
	if s.direction == DirCenterOut {
		if s.hasOverride {
			s.index = s.override
			s.hasOverride = false
		} else {
			s.index = s.rng.Intn(len(s.targets))
		}
	}
	s.surf.SetOuterTargetIndex(s.index)
	s.surf.SetDirection(s.direction)
}

// QueueOverride queues a target index to be used instead of a random draw at
// the next center→out pick.
func (s *Selector) QueueOverride(idx int) error {
	if idx < 0 || idx >= len(s.targets) {
		return fmt.Errorf("target index %d out of range [0, %d)", idx, len(s.targets))
	}
	s.override = idx
	s.hasOverride = true
	return nil
}

// #endregion advance

// #region accessors

// Direction returns the current direction flag.
func (s *Selector) Direction() int {
	return s.direction
}

// Index returns the current outer-target index.
func (s *Selector) Index() int {
	return s.index
}

// Angle returns the current outer target's configured angle.
func (s *Selector) Angle() float64 {
	return s.targets[s.index]
}

// #endregion accessors
