package attention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gazegate/pkg/camera"
)

// CameraSession owns the camera handle for one tracking session. It is the
// only component that requests or releases the stream.
type CameraSession struct {
	provider camera.Provider
	config   camera.Config
	logger   *slog.Logger

	mu       sync.Mutex
	stream   camera.Stream
	released bool
}

// NewCameraSession creates a session that will request access with cfg.
func NewCameraSession(provider camera.Provider, cfg camera.Config, logger *slog.Logger) *CameraSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &CameraSession{
		provider: provider,
		config:   cfg,
		logger:   logger.With("component", "camera_session"),
	}
}

// Acquire requests camera access. Errors wrap camera.ErrPermissionDenied or
// camera.ErrDeviceUnavailable. A stream handed back alongside an error, or
// after the session was released, is stopped before returning.
func (s *CameraSession) Acquire(ctx context.Context) (camera.Stream, error) {
	s.mu.Lock()
	if s.stream != nil {
		stream := s.stream
		s.mu.Unlock()
		return stream, nil
	}
	s.mu.Unlock()

	stream, err := s.provider.RequestAccess(ctx, s.config)
	if err != nil {
		if stream != nil {
			stream.Stop()
		}
		return nil, err
	}
	if stream == nil {
		return nil, fmt.Errorf("%w: provider returned no stream", camera.ErrDeviceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		stream.Stop()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		stream.Stop()
		return nil, ErrStopped
	}
	s.stream = stream
	s.logger.Info("camera acquired",
		"device", s.config.Device,
		"width", s.config.Width,
		"height", s.config.Height,
		"tracks", stream.ActiveTracks())
	return stream, nil
}

// Stream returns the acquired stream, or nil.
func (s *CameraSession) Stream() camera.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Release stops every track of the stream. Safe to call any number of
// times, before or after Acquire.
func (s *CameraSession) Release() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.released = true
	s.mu.Unlock()

	if stream == nil {
		return
	}
	stream.Stop()
	s.logger.Info("camera released", "active_tracks", stream.ActiveTracks())
}
