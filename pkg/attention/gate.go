package attention

import (
	"sync"
	"time"
)

// PlaybackGate decides play/pause from samples. It performs no I/O; the
// controller applies the commands it emits.
//
// Playing is applied as soon as a sample is attentive. Paused is applied once
// samples have been inattentive for the dwell time, or immediately when the
// sink is already paused. A command is emitted only when the decision differs
// from the last emitted command, so the same command is never sent twice in a
// row.
type PlaybackGate struct {
	dwell time.Duration

	mu         sync.Mutex
	decided    Command
	emitted    Command
	sinkPaused bool
	away       bool
	awaySince  time.Time
}

// NewPlaybackGate creates a gate that starts paused with nothing emitted.
func NewPlaybackGate(dwell time.Duration) *PlaybackGate {
	if dwell < 0 {
		dwell = 0
	}
	return &PlaybackGate{dwell: dwell, decided: CommandPause}
}

// OnSample updates the decision and returns the command to apply, if any.
func (g *PlaybackGate) OnSample(s Sample) (Command, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s.Attentive() {
		g.away = false
		g.decided = CommandPlay
	} else {
		if !g.away {
			g.away = true
			g.awaySince = s.Timestamp
		}
		if g.decided == CommandPlay && (g.sinkPaused || s.Timestamp.Sub(g.awaySince) >= g.dwell) {
			g.decided = CommandPause
		}
	}

	if g.decided == g.emitted {
		return 0, false
	}
	g.emitted = g.decided
	return g.decided, true
}

// SetSinkPaused records whether the sink reports itself paused.
func (g *PlaybackGate) SetSinkPaused(paused bool) {
	g.mu.Lock()
	g.sinkPaused = paused
	g.mu.Unlock()
}

// Decided returns the current decision.
func (g *PlaybackGate) Decided() Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decided
}
