package web

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-gazegate/pkg/debug"
	"github.com/teslashibe/go-gazegate/pkg/hub"
)

// ErrNoPlayer is returned when a command is sent with no player connected.
var ErrNoPlayer = errors.New("web: no player connected")

// PlayerSink is the video sink backed by browser players on /ws/player.
// Commands go out as {"type":"play"|"pause"}; players report their state
// with {"type":"state","paused":bool}.
type PlayerSink struct {
	hub    *hub.Hub
	logger *slog.Logger
	paused atomic.Bool
}

// NewPlayerSink creates a sink with its own hub. The hub is run by the
// server that mounts it.
func NewPlayerSink(logger *slog.Logger) *PlayerSink {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PlayerSink{
		hub:    hub.New("player", logger),
		logger: logger.With("component", "player_sink"),
	}
	p.paused.Store(true)
	p.hub.OnMessage(p.handleMessage)
	return p
}

// Hub returns the player hub.
func (p *PlayerSink) Hub() *hub.Hub {
	return p.hub
}

// Play tells connected players to resume.
func (p *PlayerSink) Play() error {
	return p.send(hub.TypePlay)
}

// Pause tells connected players to pause.
func (p *PlayerSink) Pause() error {
	return p.send(hub.TypePause)
}

// IsPaused returns the last state reported by a player, or the last
// command sent if none was reported since.
func (p *PlayerSink) IsPaused() bool {
	return p.paused.Load()
}

func (p *PlayerSink) send(msgType string) error {
	if p.hub.ClientCount() == 0 {
		return ErrNoPlayer
	}
	env, err := hub.NewEnvelope(msgType, nil)
	if err != nil {
		return err
	}
	if err := p.hub.BroadcastJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	p.paused.Store(msgType == hub.TypePause)
	return nil
}

func (p *PlayerSink) handleMessage(_ *hub.Client, data []byte) {
	env, err := hub.Decode(data)
	if err != nil {
		debug.Log(p.logger, "ignoring player frame", "error", err)
		return
	}
	if env.Type == hub.TypeState && env.Paused != nil {
		p.paused.Store(*env.Paused)
		debug.Log(p.logger, "player state", "paused", *env.Paused)
	}
}
