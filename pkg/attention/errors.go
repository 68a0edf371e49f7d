package attention

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Start when Stop aborts the permission request.
var ErrStopped = errors.New("attention: stopped")

// ErrInvalidConfig is returned for out-of-range tuning values.
var ErrInvalidConfig = errors.New("attention: invalid config")

// SinkError wraps a failure of the video sink to apply a command.
type SinkError struct {
	Command Command
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("video sink %s: %v", e.Command, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
