package attention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-gazegate/pkg/attention/detection"
	"github.com/teslashibe/go-gazegate/pkg/camera"
	"github.com/teslashibe/go-gazegate/pkg/debug"
)

// LoopStats counts what a session's detection and gating did.
type LoopStats struct {
	Frames         int64 `json:"frames"`
	Skipped        int64 `json:"skipped"`
	DetectorErrors int64 `json:"detector_errors"`
	Samples        int64 `json:"samples"`
	Commands       int64 `json:"commands"`
	SinkErrors     int64 `json:"sink_errors"`
}

type counters struct {
	frames         atomic.Int64
	skipped        atomic.Int64
	detectorErrors atomic.Int64
	samples        atomic.Int64
	commands       atomic.Int64
	sinkErrors     atomic.Int64
}

func (c *counters) snapshot() LoopStats {
	return LoopStats{
		Frames:         c.frames.Load(),
		Skipped:        c.skipped.Load(),
		DetectorErrors: c.detectorErrors.Load(),
		Samples:        c.samples.Load(),
		Commands:       c.commands.Load(),
		SinkErrors:     c.sinkErrors.Load(),
	}
}

// DetectionLoop turns camera frames into samples, one iteration at a time.
// The next iteration is scheduled only after the previous one completes.
type DetectionLoop struct {
	stream   camera.Stream
	detector detection.Detector
	interval time.Duration
	logEvery int
	logger   *slog.Logger
	stats    *counters
	now      func() time.Time

	consecutiveErrs int
}

// NewDetectionLoop creates a loop reading from stream at cfg.FrameInterval.
func NewDetectionLoop(stream camera.Stream, detector detection.Detector, cfg Config) *DetectionLoop {
	return newDetectionLoop(stream, detector, cfg, &counters{})
}

func newDetectionLoop(stream camera.Stream, detector detection.Detector, cfg Config, stats *counters) *DetectionLoop {
	logEvery := cfg.ErrorLogEvery
	if logEvery <= 0 {
		logEvery = 1
	}
	return &DetectionLoop{
		stream:   stream,
		detector: detector,
		interval: cfg.FrameInterval,
		logEvery: logEvery,
		logger:   cfg.logger().With("component", "detection_loop"),
		stats:    stats,
		now:      time.Now,
	}
}

// Run iterates until ctx is cancelled, delivering each sample on out.
// Detector failures never stop the loop.
func (l *DetectionLoop) Run(ctx context.Context, out chan<- Sample) {
	l.logger.Debug("detection loop started", "interval", l.interval)
	defer l.logger.Debug("detection loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if sample, ok := l.Step(ctx); ok {
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}

		wait := l.interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Step runs one iteration. It reports false when no frame could be read,
// or when ctx was cancelled while reading; the caller simply tries again
// on the next tick. A frame read under a cancelled ctx is never detected.
func (l *DetectionLoop) Step(ctx context.Context) (Sample, bool) {
	frame, err := l.stream.ReadFrame(ctx)
	if err != nil {
		l.stats.skipped.Add(1)
		debug.LoopLog(l.logger, "frame skipped", "error", err)
		return Sample{}, false
	}
	if ctx.Err() != nil {
		return Sample{}, false
	}
	l.stats.frames.Add(1)

	sample := Sample{Timestamp: l.now()}

	faces, err := l.detect(frame.Data)
	if err != nil {
		l.detectorFailed(err)
	} else {
		l.detectorOK()
		if len(faces) > 0 {
			eyes := ClassifyEyes(faces[0].Landmarks.LeftEye, faces[0].Landmarks.RightEye)
			sample.FaceDetected = true
			sample.EyesOpen = eyes.Open
			sample.Confidence = eyes.EAR
		}
	}

	l.stats.samples.Add(1)
	debug.LoopLog(l.logger, "sample",
		"seq", frame.Seq,
		"face", sample.FaceDetected,
		"eyes_open", sample.EyesOpen,
		"ear", sample.Confidence)
	return sample, true
}

// Stats returns the loop counters.
func (l *DetectionLoop) Stats() LoopStats {
	return l.stats.snapshot()
}

func (l *DetectionLoop) detect(jpeg []byte) (faces []detection.Face, err error) {
	defer func() {
		if r := recover(); r != nil {
			faces = nil
			err = fmt.Errorf("%w: detector panic: %v", detection.ErrDetectionUnavailable, r)
		}
	}()
	return l.detector.Detect(jpeg)
}

func (l *DetectionLoop) detectorFailed(err error) {
	l.stats.detectorErrors.Add(1)
	l.consecutiveErrs++
	if l.consecutiveErrs == 1 || l.consecutiveErrs%l.logEvery == 0 {
		level := slog.LevelWarn
		if !errors.Is(err, detection.ErrDetectionUnavailable) {
			level = slog.LevelError
		}
		l.logger.Log(context.Background(), level, "detection failed",
			"error", err,
			"consecutive", l.consecutiveErrs)
	}
}

func (l *DetectionLoop) detectorOK() {
	if l.consecutiveErrs > 0 {
		l.logger.Info("detection recovered", "after_errors", l.consecutiveErrs)
		l.consecutiveErrs = 0
	}
}
