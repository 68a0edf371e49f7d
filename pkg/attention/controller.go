package attention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gazegate/pkg/attention/detection"
	"github.com/teslashibe/go-gazegate/pkg/camera"
)

// Controller runs attention tracking sessions: it acquires the camera,
// drives the detection loop, gates the video sink and publishes snapshots.
//
// Snapshot and session-end handlers run on the controller's event loop and
// must not call Start, Stop or Close.
type Controller struct {
	provider camera.Provider
	detector detection.Detector
	sink     VideoSink
	logger   *slog.Logger
	now      func() time.Time

	// lifecycle serializes Stop, and the phase transition at the top of Start,
	// so a new session never overlaps the teardown of the previous one.
	lifecycle sync.Mutex

	mu           sync.Mutex
	cfg          Config
	phase        Phase
	permission   PermissionState
	session      Session
	hasSession   bool
	cur          *tracking
	last         Snapshot
	hasLast      bool
	lastStats    LoopStats
	onSnapshot   []func(Snapshot)
	onSessionEnd []func(SessionSummary)
}

// tracking is the state of one session. A fresh one is built on every Start.
type tracking struct {
	id      string
	camera  *CameraSession
	gate    *PlaybackGate
	metrics *MetricsAggregator
	stats   *counters

	cancel   context.CancelFunc
	done     chan struct{} // closed when the event loop exits
	loopDone chan struct{} // closed when the detection loop exits
	started  chan struct{} // closed when Start has finished acquiring
	err      error         // Start result, valid after started is closed
}

// NewController creates a controller. The sink may be nil, in which case
// commands are counted but not applied.
func NewController(cfg Config, provider camera.Provider, detector detection.Detector, sink VideoSink) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: camera provider is required", ErrInvalidConfig)
	}
	if detector == nil {
		return nil, fmt.Errorf("%w: detector is required", ErrInvalidConfig)
	}
	return &Controller{
		cfg:      cfg,
		provider: provider,
		detector: detector,
		sink:     sink,
		logger:   cfg.logger().With("component", "tracker"),
		now:      time.Now,
	}, nil
}

// OnSnapshot registers a handler called with every periodic snapshot.
func (c *Controller) OnSnapshot(fn func(Snapshot)) {
	c.mu.Lock()
	c.onSnapshot = append(c.onSnapshot, fn)
	c.mu.Unlock()
}

// OnSessionEnd registers a handler called once when a session ends,
// including sessions that never got camera access.
func (c *Controller) OnSessionEnd(fn func(SessionSummary)) {
	c.mu.Lock()
	c.onSessionEnd = append(c.onSessionEnd, fn)
	c.mu.Unlock()
}

// Start begins a tracking session. While a session is tracking it returns
// that session without touching the camera; a Start racing a pending
// permission request waits for its outcome. ctx bounds the permission
// request only.
func (c *Controller) Start(ctx context.Context) (Session, error) {
	c.lifecycle.Lock()
	c.mu.Lock()
	switch c.phase {
	case PhaseTracking:
		s := c.sessionLocked()
		c.mu.Unlock()
		c.lifecycle.Unlock()
		return s, nil
	case PhaseRequestingPermission:
		t := c.cur
		c.mu.Unlock()
		c.lifecycle.Unlock()
		select {
		case <-t.started:
		case <-ctx.Done():
			return Session{}, ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.sessionLocked(), t.err
	}

	now := c.now()
	t := &tracking{
		id:      "sess_" + uuid.NewString(),
		camera:   NewCameraSession(c.provider, c.cfg.Camera, c.cfg.logger()),
		gate:     NewPlaybackGate(c.cfg.PauseDwell),
		metrics:  NewMetricsAggregator(),
		stats:    &counters{},
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		started:  make(chan struct{}),
	}
	acquireCtx, cancelAcquire := context.WithCancel(ctx)
	t.cancel = cancelAcquire

	c.cur = t
	c.phase = PhaseRequestingPermission
	c.permission = PermissionPending
	c.session = Session{ID: t.id, Permission: PermissionPending, StartedAt: now}
	c.hasSession = true
	c.last = Snapshot{}
	c.hasLast = false
	cfg := c.cfg
	c.mu.Unlock()
	c.lifecycle.Unlock()

	c.logger.Info("session starting", "session", t.id)

	stream, err := t.camera.Acquire(acquireCtx)
	cancelAcquire()

	c.mu.Lock()
	if c.cur != t || c.phase != PhaseRequestingPermission {
		// Stop got here first.
		c.mu.Unlock()
		t.camera.Release()
		t.err = ErrStopped
		close(t.started)
		close(t.done)
		close(t.loopDone)
		c.logger.Info("session aborted during permission request", "session", t.id)
		c.endSession(t, OutcomeStopped)
		return Session{}, ErrStopped
	}

	if err != nil {
		t.camera.Release()
		outcome := OutcomeDenied
		switch {
		case errors.Is(err, camera.ErrPermissionDenied):
			c.phase = PhaseDenied
			c.permission = PermissionDenied
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.phase = PhaseStopped
			c.permission = PermissionNotRequested
			outcome = OutcomeStopped
		default:
			c.phase = PhaseDenied
			c.permission = PermissionDenied
			outcome = OutcomeUnavailable
		}
		c.session.Permission = c.permission
		s := c.sessionLocked()
		c.mu.Unlock()

		t.err = err
		close(t.started)
		close(t.done)
		close(t.loopDone)
		c.logger.Warn("camera access failed", "session", t.id, "error", err, "outcome", outcome)
		c.endSession(t, outcome)
		return s, err
	}

	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancelRun
	c.phase = PhaseTracking
	c.permission = PermissionGranted
	c.session.Permission = PermissionGranted
	t.metrics.Start(c.now())
	s := c.sessionLocked()
	c.mu.Unlock()

	samples := make(chan Sample)
	loop := newDetectionLoop(stream, c.detector, cfg, t.stats)
	loop.now = c.now
	go func() {
		defer close(t.loopDone)
		loop.Run(runCtx, samples)
	}()
	go c.run(runCtx, t, samples, cfg.TickInterval)

	close(t.started)
	c.logger.Info("session tracking",
		"session", t.id,
		"frame_interval", cfg.FrameInterval,
		"tick_interval", cfg.TickInterval,
		"pause_dwell", cfg.PauseDwell)
	return s, nil
}

// Stop ends the current session. From Tracking it stops the loops, waits
// for both to exit and releases the camera before returning; no frame read,
// detector call or snapshot handler starts after Stop returns.
// During a permission request it cancels the request. Elsewhere it does
// nothing.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	t := c.cur
	switch c.phase {
	case PhaseRequestingPermission:
		c.phase = PhaseStopped
		c.permission = PermissionNotRequested
		c.session.Permission = PermissionNotRequested
		c.cur = nil
		c.mu.Unlock()

		t.cancel()
		<-t.started
		return

	case PhaseTracking:
		c.phase = PhaseStopped
		c.cur = nil
		c.mu.Unlock()

		t.cancel()
		<-t.done
		<-t.loopDone
		t.camera.Release()

		final := t.metrics.Tick(c.now())
		final.SessionID = t.id
		c.mu.Lock()
		c.setSnapshotLocked(final)
		c.mu.Unlock()

		c.logger.Info("session stopped",
			"session", t.id,
			"watched", final.WatchedSeconds,
			"elapsed", final.ElapsedSeconds,
			"watch_percentage", final.WatchPercentage)
		c.endSession(t, OutcomeStopped)

	default:
		c.mu.Unlock()
	}
}

// Close stops tracking and closes the detector. The detection loop has
// exited by then, so the detector is never entered once closed.
func (c *Controller) Close() error {
	c.Stop()
	return c.detector.Close()
}

// SetConstraints changes the camera constraints used by the next session.
func (c *Controller) SetConstraints(cfg camera.Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: camera: %s", ErrInvalidConfig, errs[0])
	}
	c.mu.Lock()
	c.cfg.Camera = cfg
	c.mu.Unlock()
	return nil
}

// Constraints returns the camera constraints for the next session.
func (c *Controller) Constraints() camera.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Camera
}

// State returns the permission state of the current session.
func (c *Controller) State() PermissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Session returns the current or most recent session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked(), c.hasSession
}

// LastSnapshot returns the most recent snapshot of the current or most
// recent session.
func (c *Controller) LastSnapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Stats returns the counters of the tracking session, or of the last
// session once it has ended.
func (c *Controller) Stats() LoopStats {
	c.mu.Lock()
	t := c.cur
	stats := c.lastStats
	c.mu.Unlock()
	if t == nil {
		return stats
	}
	return t.stats.snapshot()
}

func (c *Controller) run(ctx context.Context, t *tracking, samples <-chan Sample, tick time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-samples:
			c.handleSample(t, s)
		case <-ticker.C:
			c.tick(t)
		}
	}
}

func (c *Controller) handleSample(t *tracking, s Sample) {
	if c.sink != nil {
		t.gate.SetSinkPaused(c.sink.IsPaused())
	}
	if cmd, ok := t.gate.OnSample(s); ok {
		c.apply(t, cmd)
	}
	t.metrics.OnSample(s)

	c.mu.Lock()
	if c.cur == t {
		c.session.LastSampleAt = s.Timestamp
	}
	c.mu.Unlock()
}

func (c *Controller) apply(t *tracking, cmd Command) {
	t.stats.commands.Add(1)
	c.logger.Debug("playback command", "session", t.id, "command", cmd)
	if c.sink == nil {
		return
	}

	var err error
	switch cmd {
	case CommandPlay:
		err = c.sink.Play()
	case CommandPause:
		err = c.sink.Pause()
	}
	if err != nil {
		t.stats.sinkErrors.Add(1)
		c.logger.Warn("video sink rejected command", "session", t.id, "error", &SinkError{Command: cmd, Err: err})
	}
}

func (c *Controller) tick(t *tracking) {
	snap := t.metrics.Tick(c.now())
	snap.SessionID = t.id

	c.mu.Lock()
	if c.cur != t {
		c.mu.Unlock()
		return
	}
	c.setSnapshotLocked(snap)
	handlers := append([]func(Snapshot){}, c.onSnapshot...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(snap)
	}
}

func (c *Controller) setSnapshotLocked(snap Snapshot) {
	c.last = snap
	c.hasLast = true
	if c.session.ID == snap.SessionID {
		c.session.WatchedSeconds = snap.WatchedSeconds
		c.session.ElapsedSeconds = snap.ElapsedSeconds
	}
}

func (c *Controller) sessionLocked() Session {
	return c.session
}

func (c *Controller) endSession(t *tracking, outcome Outcome) {
	c.mu.Lock()
	session := c.session
	if session.ID != t.id {
		session = Session{ID: t.id}
	}
	final := t.metrics.Snapshot(c.now())
	final.SessionID = t.id
	stats := t.stats.snapshot()
	c.lastStats = stats
	handlers := append([]func(SessionSummary){}, c.onSessionEnd...)
	c.mu.Unlock()

	summary := SessionSummary{
		Session: session,
		Outcome: outcome,
		EndedAt: c.now(),
		Final:   final,
		Stats:   stats,
	}
	for _, fn := range handlers {
		fn(summary)
	}
}
