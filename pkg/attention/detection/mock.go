package detection

import (
	"sync"
)

// Mock implements Detector for testing.
// All methods can be customized via function fields.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, no faces are returned.
	DetectFunc func(jpeg []byte) ([]Face, error)

	// CloseFunc is called when Close is invoked.
	// If nil, returns nil.
	CloseFunc func() error

	mu      sync.Mutex
	detects int
	closes  int
}

// NewMock creates a mock detector that always returns faces.
func NewMock(faces ...Face) *Mock {
	return &Mock{
		DetectFunc: func(jpeg []byte) ([]Face, error) {
			out := make([]Face, len(faces))
			copy(out, faces)
			return out, nil
		},
	}
}

// NewFailingMock creates a mock detector whose every call fails with err.
func NewFailingMock(err error) *Mock {
	return &Mock{
		DetectFunc: func(jpeg []byte) ([]Face, error) {
			return nil, err
		},
	}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(jpeg []byte) ([]Face, error) {
	m.mu.Lock()
	m.detects++
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(jpeg)
	}
	return nil, nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closes++
	fn := m.CloseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

// DetectCalls returns how many times Detect was invoked.
func (m *Mock) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detects
}

// CloseCalls returns how many times Close was invoked.
func (m *Mock) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// EyeContour returns a 6-point eye contour with the given width and
// vertical opening, anchored at (x, y). EAR of the contour is height/width.
func EyeContour(x, y, width, height float64) []Point {
	return []Point{
		{X: x, Y: y},
		{X: x + width/3, Y: y - height/2},
		{X: x + 2*width/3, Y: y - height/2},
		{X: x + width, Y: y},
		{X: x + 2*width/3, Y: y + height/2},
		{X: x + width/3, Y: y + height/2},
	}
}

// OpenEyesFace is a face whose eyes classify open (EAR 0.3).
func OpenEyesFace() Face {
	return Face{
		Box:        Box{X: 0.3, Y: 0.2, W: 0.4, H: 0.5},
		Confidence: 0.95,
		Landmarks: Landmarks{
			LeftEye:  EyeContour(100, 100, 10, 3),
			RightEye: EyeContour(140, 100, 10, 3),
		},
	}
}

// ClosedEyesFace is a face whose eyes classify closed (EAR 0.1).
func ClosedEyesFace() Face {
	return Face{
		Box:        Box{X: 0.3, Y: 0.2, W: 0.4, H: 0.5},
		Confidence: 0.95,
		Landmarks: Landmarks{
			LeftEye:  EyeContour(100, 100, 10, 1),
			RightEye: EyeContour(140, 100, 10, 1),
		},
	}
}
