package machine

// #region history

// history is the machine's state history: a small stack whose top is the
// current state. Normal transitions push with a depth-3 shift (current,
// previous, second-previous). The idle overlay pushes without trimming and
// pops on exit, which makes the enter/exit round trip exact by construction.
type history struct {
	frames []string
}

func newHistory(cur, prev, prev2 string) *history {
	h := &history{}
	if prev2 != "" {
		h.frames = append(h.frames, prev2)
	}
	if prev != "" {
		h.frames = append(h.frames, prev)
	}
	h.frames = append(h.frames, cur)
	return h
}

// push records entry into a new state, keeping at most three frames.
func (h *history) push(name string) {
	h.frames = append(h.frames, name)
	if len(h.frames) > 3 {
		h.frames = h.frames[len(h.frames)-3:]
	}
}

// pushOverlay records entry into the idle overlay without trimming, so the
// full pre-idle history survives underneath.
func (h *history) pushOverlay(name string) {
	h.frames = append(h.frames, name)
}

// popOverlay removes the overlay frame, restoring the pre-idle history.
func (h *history) popOverlay() {
	h.frames = h.frames[:len(h.frames)-1]
}

func (h *history) at(back int) string {
	i := len(h.frames) - 1 - back
	if i < 0 {
		return ""
	}
	return h.frames[i]
}

// current returns the active state name.
func (h *history) current() string { return h.at(0) }

// previous returns the state before the current one.
func (h *history) previous() string { return h.at(1) }

// secondPrevious returns the state two transitions back.
func (h *history) secondPrevious() string { return h.at(2) }

// #endregion history
