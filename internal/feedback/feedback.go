// Package feedback carries the dashboard's audio and haptic cues. Cues
// are best effort: a sink that fails, or no sink at all, never affects
// the action that triggered the cue.
package feedback

import (
	"log/slog"
	"sync/atomic"
)

type Cue string

const (
	CueHaptic        Cue = "haptic"
	CueAccessGranted Cue = "access_granted"
	CueShutdown      Cue = "shutdown"
	CueBurn          Cue = "burn"
	CueClick         Cue = "click"
)

// Sink delivers a cue to whatever can render it (a browser over the
// event bus, a terminal bell).
type Sink interface {
	Play(cue Cue) error
}

// Player is what the vault controllers hold.
type Player interface {
	Play(cue Cue)
}

// Mixer fans cues out to sinks unless muted. Muting is sticky: leaving
// panic mode does not unmute, only Toggle does.
type Mixer struct {
	sinks []Sink
	muted atomic.Bool
}

var _ Player = (*Mixer)(nil)

func NewMixer(sinks ...Sink) *Mixer {
	return &Mixer{sinks: sinks}
}

func (m *Mixer) Play(cue Cue) {
	if m.muted.Load() {
		return
	}
	for _, s := range m.sinks {
		if err := s.Play(cue); err != nil {
			slog.Debug("feedback cue dropped", "cue", cue, "error", err)
		}
	}
}

func (m *Mixer) Mute()       { m.muted.Store(true) }
func (m *Mixer) Muted() bool { return m.muted.Load() }

// Toggle flips the mute state and returns the new value.
func (m *Mixer) Toggle() bool {
	for {
		old := m.muted.Load()
		if m.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Discard is a Player that drops every cue.
var Discard Player = discard{}

type discard struct{}

func (discard) Play(Cue) {}
