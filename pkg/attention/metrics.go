package attention

import (
	"math"
	"sync"
	"time"
)

// MetricsAggregator accumulates elapsed and watched time. Time is credited
// as watched when the latest sample at tick time is attentive.
type MetricsAggregator struct {
	mu       sync.Mutex
	started  bool
	lastTick time.Time
	elapsed  time.Duration
	watched  time.Duration
	latest   Sample
}

// NewMetricsAggregator creates an aggregator with zero totals.
func NewMetricsAggregator() *MetricsAggregator {
	return &MetricsAggregator{}
}

// Start resets the totals and begins measuring at now.
func (a *MetricsAggregator) Start(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	a.lastTick = now
	a.elapsed = 0
	a.watched = 0
	a.latest = Sample{}
}

// OnSample records the latest sample.
func (a *MetricsAggregator) OnSample(s Sample) {
	a.mu.Lock()
	a.latest = s
	a.mu.Unlock()
}

// Tick advances the clock to now and returns the updated snapshot.
// A clock that moved backwards adds nothing.
func (a *MetricsAggregator) Tick(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		a.started = true
		a.lastTick = now
	}

	delta := now.Sub(a.lastTick)
	if delta < 0 {
		delta = 0
	} else {
		a.lastTick = now
	}

	a.elapsed += delta
	if a.latest.Attentive() {
		a.watched += delta
	}

	return a.snapshotLocked(now)
}

// Snapshot returns the totals as of the last tick without advancing.
func (a *MetricsAggregator) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(now)
}

func (a *MetricsAggregator) snapshotLocked(now time.Time) Snapshot {
	w := a.watched.Seconds()
	e := a.elapsed.Seconds()
	return Snapshot{
		WatchedSeconds:  w,
		ElapsedSeconds:  e,
		WatchPercentage: WatchPercentage(a.watched, a.elapsed),
		GeneratedAt:     now,
		FaceDetected:    a.latest.FaceDetected,
		EyesOpen:        a.latest.EyesOpen,
		WatchTime:       int(math.Round(w)),
		TotalTime:       int(math.Round(e)),
	}
}

// WatchPercentage returns round(100*watched/elapsed) clamped to [0, 100],
// or 0 when nothing has elapsed.
func WatchPercentage(watched, elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(watched) / float64(elapsed)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
