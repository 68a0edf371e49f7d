package attention

import (
	"fmt"
	"time"
)

// PermissionState tracks the camera permission request of the current session.
type PermissionState int

const (
	PermissionNotRequested PermissionState = iota
	PermissionPending
	PermissionGranted
	PermissionDenied
)

func (p PermissionState) String() string {
	switch p {
	case PermissionPending:
		return "pending"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "not_requested"
	}
}

// MarshalText renders the state as its string name in JSON.
func (p PermissionState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (p *PermissionState) UnmarshalText(text []byte) error {
	for _, v := range []PermissionState{PermissionNotRequested, PermissionPending, PermissionGranted, PermissionDenied} {
		if v.String() == string(text) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown permission state %q", text)
}

// Phase is the controller lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequestingPermission
	PhaseDenied
	PhaseTracking
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRequestingPermission:
		return "requesting_permission"
	case PhaseDenied:
		return "denied"
	case PhaseTracking:
		return "tracking"
	case PhaseStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// MarshalText renders the phase as its string name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, v := range []Phase{PhaseIdle, PhaseRequestingPermission, PhaseDenied, PhaseTracking, PhaseStopped} {
		if v.String() == string(text) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Sample is the outcome of one detection loop iteration. It is a value:
// consumers get their own copy and never share it.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	FaceDetected bool      `json:"face_detected"`
	EyesOpen     bool      `json:"eyes_open"`
	Confidence   float64   `json:"confidence"` // averaged EAR when a face is present
}

// Attentive reports whether the viewer is present and looking.
func (s Sample) Attentive() bool {
	return s.FaceDetected && s.EyesOpen
}

// Command is a playback instruction for the video sink.
type Command int

const (
	CommandPlay Command = iota + 1
	CommandPause
)

func (c Command) String() string {
	switch c {
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	default:
		return "none"
	}
}

// MarshalText renders the command as its string name in JSON.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Snapshot is a point-in-time summary of a session's attention.
// WatchedSeconds never exceeds ElapsedSeconds.
type Snapshot struct {
	SessionID       string    `json:"session_id"`
	WatchedSeconds  float64   `json:"watched_seconds"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	WatchPercentage int       `json:"watch_percentage"`
	GeneratedAt     time.Time `json:"generated_at"`

	// Latest sample state and whole-second totals, for display.
	FaceDetected bool `json:"face_detected"`
	EyesOpen     bool `json:"eyes_open"`
	WatchTime    int  `json:"watch_time"`
	TotalTime    int  `json:"total_time"`
}

// Session describes the active (or last) tracking session.
type Session struct {
	ID             string          `json:"id"`
	Permission     PermissionState `json:"permission"`
	StartedAt      time.Time       `json:"started_at"`
	LastSampleAt   time.Time       `json:"last_sample_at,omitempty"`
	WatchedSeconds float64         `json:"watched_seconds"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
}

// Outcome says how a session ended.
type Outcome string

const (
	OutcomeStopped     Outcome = "stopped"
	OutcomeDenied      Outcome = "denied"
	OutcomeUnavailable Outcome = "unavailable"
)

// SessionSummary is reported once when a session ends.
type SessionSummary struct {
	Session Session   `json:"session"`
	Outcome Outcome   `json:"outcome"`
	EndedAt time.Time `json:"ended_at"`
	Final   Snapshot  `json:"final"`
	Stats   LoopStats `json:"stats"`
}

// VideoSink is the video being gated. Implementations live outside this
// package (a browser player over websocket, a test double).
type VideoSink interface {
	Play() error
	Pause() error
	IsPaused() bool
}
