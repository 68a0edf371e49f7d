// Package camera owns the camera capability boundary for gazegate: capture
// constraints, the Provider/Stream contract, and a local-device provider.
// Constraints follow the same runtime-tunable pattern as pkg/attention.
package camera

import "fmt"

// Facing selects which camera to prefer on devices that have more than one.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Config holds the capture constraints passed to Provider.RequestAccess.
// These can be modified via the camera API between sessions.
type Config struct {
	// Device index (V4L2 /dev/videoN, AVFoundation index).
	Device int `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	Facing Facing `json:"facing"`
}

// Capture limits accepted by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the attention-tracking defaults: a small
// user-facing frame is plenty for a single face at screen distance.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     320,
		Height:    240,
		Framerate: 30,
		Quality:   80,
		Facing:    FacingUser,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.Facing != "" && c.Facing != FacingUser && c.Facing != FacingEnvironment {
		errors = append(errors, "facing must be user or environment")
	}

	return errors
}
