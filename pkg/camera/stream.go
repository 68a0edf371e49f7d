package camera

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for camera access. Callers match with errors.Is.
var (
	// ErrPermissionDenied is returned when the OS or user refuses camera access.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrDeviceUnavailable is returned when no usable capture device exists.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrFrameUnavailable is returned when a frame cannot be read right now.
	// It is transient; the caller should retry on its next tick.
	ErrFrameUnavailable = errors.New("camera: frame unavailable")

	// ErrStreamStopped is returned by ReadFrame after Stop.
	ErrStreamStopped = errors.New("camera: stream stopped")
)

// Frame is one captured image, JPEG-encoded.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// Track is one media track of a stream (a capture device has exactly one).
type Track interface {
	ID() string
	Kind() string
	Active() bool
	Stop()
}

// Stream is an acquired camera stream. Whoever acquired it owns it and must
// call Stop exactly when done; Stop is idempotent.
type Stream interface {
	// ReadFrame returns the next frame. Errors wrap ErrFrameUnavailable
	// or ErrStreamStopped.
	ReadFrame(ctx context.Context) (Frame, error)

	// Tracks returns the stream's tracks.
	Tracks() []Track

	// ActiveTracks returns the number of tracks that are still live.
	ActiveTracks() int

	// Stop stops every track and releases the underlying device.
	Stop()
}

// Provider grants camera streams. Errors wrap ErrPermissionDenied or
// ErrDeviceUnavailable.
type Provider interface {
	RequestAccess(ctx context.Context, cfg Config) (Stream, error)
}

// ActiveTrackCount counts live tracks; shared by Stream implementations.
func ActiveTrackCount(tracks []Track) int {
	n := 0
	for _, t := range tracks {
		if t.Active() {
			n++
		}
	}
	return n
}
