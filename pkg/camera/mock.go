package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockProvider implements Provider for testing.
type MockProvider struct {
	// RequestAccessFunc is called when RequestAccess is invoked.
	// If nil, a fresh MockStream is returned.
	RequestAccessFunc func(ctx context.Context, cfg Config) (Stream, error)

	mu      sync.Mutex
	calls   int
	streams []*MockStream
	configs []Config
}

// NewMockProvider creates a provider that always grants access.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// NewDeniedProvider creates a provider that always fails with err.
func NewDeniedProvider(err error) *MockProvider {
	return &MockProvider{
		RequestAccessFunc: func(ctx context.Context, cfg Config) (Stream, error) {
			return nil, err
		},
	}
}

// RequestAccess records the call and grants or refuses access.
func (m *MockProvider) RequestAccess(ctx context.Context, cfg Config) (Stream, error) {
	m.mu.Lock()
	m.calls++
	m.configs = append(m.configs, cfg)
	fn := m.RequestAccessFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, cfg)
	}

	s := NewMockStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Calls returns how many times RequestAccess was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Streams returns the streams handed out by the default grant path.
func (m *MockProvider) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// Configs returns the constraints passed to each RequestAccess call.
func (m *MockProvider) Configs() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Config, len(m.configs))
	copy(out, m.configs)
	return out
}

// MockStream implements Stream for testing.
type MockStream struct {
	// FrameFunc produces frames. If nil, a small placeholder frame is returned.
	FrameFunc func(seq uint64) (Frame, error)

	seq    atomic.Uint64
	reads  atomic.Int64
	stops  atomic.Int64
	tracks []*MockTrack
}

// NewMockStream creates a stream with one live video track.
func NewMockStream() *MockStream {
	s := &MockStream{}
	t := &MockTrack{id: "mock-video"}
	t.active.Store(true)
	s.tracks = []*MockTrack{t}
	return s
}

// ReadFrame returns the next scripted frame.
func (s *MockStream) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.reads.Add(1)
	if s.ActiveTracks() == 0 {
		return Frame{}, ErrStreamStopped
	}
	seq := s.seq.Add(1)
	if s.FrameFunc != nil {
		return s.FrameFunc(seq)
	}
	return Frame{
		Data:       []byte{0xFF, 0xD8, 0xFF, 0xD9},
		Width:      320,
		Height:     240,
		Seq:        seq,
		CapturedAt: time.Now(),
	}, nil
}

// Tracks returns the stream's tracks.
func (s *MockStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// ActiveTracks returns the number of live tracks.
func (s *MockStream) ActiveTracks() int {
	return ActiveTrackCount(s.Tracks())
}

// Stop stops every track.
func (s *MockStream) Stop() {
	s.stops.Add(1)
	for _, t := range s.tracks {
		t.active.Store(false)
	}
}

// Reads returns how many times ReadFrame was called.
func (s *MockStream) Reads() int64 { return s.reads.Load() }

// Stops returns how many times Stop was called.
func (s *MockStream) Stops() int64 { return s.stops.Load() }

// MockTrack implements Track for testing.
type MockTrack struct {
	id     string
	active atomic.Bool
}

func (t *MockTrack) ID() string   { return t.id }
func (t *MockTrack) Kind() string { return "video" }
func (t *MockTrack) Active() bool { return t.active.Load() }
func (t *MockTrack) Stop()        { t.active.Store(false) }

// UnavailableFrames returns a FrameFunc that fails every n-th read.
func UnavailableFrames(n uint64) func(seq uint64) (Frame, error) {
	return func(seq uint64) (Frame, error) {
		if n > 0 && seq%n == 0 {
			return Frame{}, fmt.Errorf("%w: scripted drop %d", ErrFrameUnavailable, seq)
		}
		return Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Seq: seq, CapturedAt: time.Now()}, nil
	}
}
