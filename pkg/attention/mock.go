package attention

import (
	"sync"
)

// MockSink implements VideoSink for testing.
// All methods can be customized via function fields.
type MockSink struct {
	// PlayFunc is called when Play is invoked. If nil, returns nil.
	PlayFunc func() error

	// PauseFunc is called when Pause is invoked. If nil, returns nil.
	PauseFunc func() error

	mu       sync.Mutex
	paused   bool
	commands []Command
}

// NewMockSink creates a sink that starts paused and accepts every command.
func NewMockSink() *MockSink {
	return &MockSink{paused: true}
}

// Play records the call and marks the sink playing on success.
func (m *MockSink) Play() error {
	return m.record(CommandPlay, m.PlayFunc)
}

// Pause records the call and marks the sink paused on success.
func (m *MockSink) Pause() error {
	return m.record(CommandPause, m.PauseFunc)
}

// IsPaused reports the sink's playback state.
func (m *MockSink) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// SetPaused changes the playback state, as a user pressing pause would.
func (m *MockSink) SetPaused(paused bool) {
	m.mu.Lock()
	m.paused = paused
	m.mu.Unlock()
}

// Commands returns every command received, in order.
func (m *MockSink) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

func (m *MockSink) record(cmd Command, fn func() error) error {
	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	m.mu.Unlock()

	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.paused = cmd == CommandPause
	m.mu.Unlock()
	return nil
}
