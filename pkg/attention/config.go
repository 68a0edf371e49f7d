package attention

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-gazegate/pkg/camera"
)

// Config holds the tunable parameters of a tracker.
type Config struct {
	// Timing
	FrameInterval time.Duration // Detection cadence (one iteration per display frame)
	TickInterval  time.Duration // Snapshot cadence

	// Gate
	PauseDwell time.Duration // How long the viewer must be away before pausing; 0 pauses on the first bad frame

	// Logging
	ErrorLogEvery int // Log one in N consecutive detector errors

	// Camera constraints for RequestAccess
	Camera camera.Config

	Logger *slog.Logger
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		FrameInterval: time.Second / 30,
		TickInterval:  time.Second,
		PauseDwell:    time.Second, // one tick
		ErrorLogEvery: 30,          // about once a second at 30fps
		Camera:        camera.DefaultConfig(),
	}
}

// ResponsiveConfig pauses on the first inattentive frame.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.PauseDwell = 0
	return cfg
}

// RelaxedConfig tolerates longer glances away and runs detection at 15fps.
func RelaxedConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameInterval = time.Second / 15
	cfg.PauseDwell = 3 * time.Second
	cfg.Camera = camera.LowPowerConfig()
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FrameInterval <= 0 {
		return fmt.Errorf("%w: frame interval must be positive, got %v", ErrInvalidConfig, c.FrameInterval)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %v", ErrInvalidConfig, c.TickInterval)
	}
	if c.PauseDwell < 0 {
		return fmt.Errorf("%w: pause dwell must not be negative, got %v", ErrInvalidConfig, c.PauseDwell)
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: camera: %s", ErrInvalidConfig, errs[0])
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
