package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidConfig is returned for constraints that fail Validate or name
// an unknown preset.
var ErrInvalidConfig = errors.New("camera: invalid config")

// Update is a partial change to the camera constraints, as accepted by
// PUT /api/camera. Preset is applied first; set fields override it.
type Update struct {
	Preset    string  `json:"preset,omitempty"`
	Device    *int    `json:"device,omitempty"`
	Width     *int    `json:"width,omitempty"`
	Height    *int    `json:"height,omitempty"`
	Framerate *int    `json:"framerate,omitempty"`
	Quality   *int    `json:"quality,omitempty"`
	Facing    *Facing `json:"facing,omitempty"`
}

// Apply returns base with u applied. The device survives a preset.
func (u Update) Apply(base Config) (Config, error) {
	cfg := base
	if u.Preset != "" {
		preset := GetPreset(u.Preset)
		if preset == nil {
			return base, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, u.Preset)
		}
		cfg = *preset
		cfg.Device = base.Device
	}

	setInt(&cfg.Device, u.Device)
	setInt(&cfg.Width, u.Width)
	setInt(&cfg.Height, u.Height)
	setInt(&cfg.Framerate, u.Framerate)
	setInt(&cfg.Quality, u.Quality)
	if u.Facing != nil {
		cfg.Facing = *u.Facing
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Listener is told about accepted constraint changes. Returning an error
// rejects the change.
type Listener func(cfg Config) error

// Manager owns the constraints used for the next camera request.
type Manager struct {
	write sync.Mutex // held across Set and Apply

	mu        sync.RWMutex
	cfg       Config
	listeners []Listener
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// OnChange registers fn for future changes.
func (m *Manager) OnChange(fn Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Current returns the current constraints.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Set validates cfg and hands it to every listener. If a listener fails
// the previous constraints are restored and the error is returned.
func (m *Manager) Set(cfg Config) error {
	m.write.Lock()
	defer m.write.Unlock()
	return m.set(cfg)
}

// Apply merges u into the current constraints and sets the result.
func (m *Manager) Apply(u Update) (Config, error) {
	m.write.Lock()
	defer m.write.Unlock()

	cfg, err := u.Apply(m.Current())
	if err != nil {
		return Config{}, err
	}
	if err := m.set(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (m *Manager) set(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	m.mu.Lock()
	prev := m.cfg
	m.cfg = cfg
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		if err := fn(cfg); err != nil {
			m.mu.Lock()
			m.cfg = prev
			m.mu.Unlock()
			return fmt.Errorf("apply camera config: %w", err)
		}
	}
	return nil
}
