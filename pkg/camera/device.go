package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// DeviceProvider opens local capture devices through OpenCV.
type DeviceProvider struct {
	logger *slog.Logger
}

// NewDeviceProvider creates a provider for local capture devices.
func NewDeviceProvider(logger *slog.Logger) *DeviceProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceProvider{logger: logger.With("component", "camera.device")}
}

// RequestAccess opens cfg.Device and applies the resolution and framerate
// constraints. The device may silently pick the nearest supported mode.
func (p *DeviceProvider) RequestAccess(ctx context.Context, cfg Config) (Stream, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: invalid constraints: %v", ErrDeviceUnavailable, errs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkDeviceNode(cfg.Device); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrDeviceUnavailable, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	// The permission prompt may have outlived the caller.
	if err := ctx.Err(); err != nil {
		vc.Close()
		return nil, err
	}

	s := &deviceStream{
		vc:      vc,
		img:     gocv.NewMat(),
		quality: cfg.Quality,
		logger:  p.logger,
	}
	s.track = &deviceTrack{
		id:     fmt.Sprintf("video%d", cfg.Device),
		stream: s,
	}
	s.track.active.Store(true)

	p.logger.Info("camera opened",
		"device", cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)
	return s, nil
}

// checkDeviceNode distinguishes a refused device node from a missing one.
// Only Linux exposes the node directly; elsewhere OpenCV decides.
func checkDeviceNode(device int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	path := fmt.Sprintf("/dev/video%d", device)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, path)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

type deviceStream struct {
	mu      sync.Mutex // serializes Read against Close
	vc      *gocv.VideoCapture
	img     gocv.Mat
	quality int
	seq     uint64
	stopped bool
	track   *deviceTrack
	logger  *slog.Logger
}

func (s *deviceStream) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Frame{}, ErrStreamStopped
	}
	if ok := s.vc.Read(&s.img); !ok || s.img.Empty() {
		return Frame{}, fmt.Errorf("%w: empty read", ErrFrameUnavailable)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.img, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return Frame{}, fmt.Errorf("%w: encode: %v", ErrFrameUnavailable, err)
	}
	defer buf.Close()

	s.seq++
	return Frame{
		Data:       append([]byte(nil), buf.GetBytes()...),
		Width:      s.img.Cols(),
		Height:     s.img.Rows(),
		Seq:        s.seq,
		CapturedAt: time.Now(),
	}, nil
}

func (s *deviceStream) Tracks() []Track {
	return []Track{s.track}
}

func (s *deviceStream) ActiveTracks() int {
	return ActiveTrackCount(s.Tracks())
}

func (s *deviceStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.track.active.Store(false)
	if err := s.vc.Close(); err != nil {
		s.logger.Warn("camera close failed", "error", err)
	}
	s.img.Close()
	s.logger.Info("camera released", "frames", s.seq)
}

type deviceTrack struct {
	id     string
	active atomic.Bool
	stream *deviceStream
}

func (t *deviceTrack) ID() string   { return t.id }
func (t *deviceTrack) Kind() string { return "video" }
func (t *deviceTrack) Active() bool { return t.active.Load() }

// Stop ends the device's only track, which ends the stream.
func (t *deviceTrack) Stop() { t.stream.Stop() }
