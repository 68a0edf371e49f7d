// Package detection provides the face detector capability consumed by the
// attention loop: faces with per-eye landmark contours.
package detection

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for common error conditions.
var (
	// ErrDetectionUnavailable is returned when a detector cannot run at all
	// (model missing, service down). The attention loop treats it as "no face".
	ErrDetectionUnavailable = errors.New("detection: detector unavailable")

	// ErrInvalidImage is returned when the frame cannot be decoded.
	ErrInvalidImage = errors.New("detection: invalid image")
)

// Point is a landmark position in frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a face bounding box, normalized to 0-1 of the frame.
type Box struct {
	X, Y float64 // Top-left corner
	W, H float64
}

// Center returns the center point of the box
func (b Box) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the area of the bounding box
func (b Box) Area() float64 {
	return b.W * b.H
}

// Landmarks holds the 6-point contour of each eye. Index 0 and 3 are the
// horizontal corners; 1,5 and 2,4 are the vertical pairs.
type Landmarks struct {
	LeftEye  []Point
	RightEye []Point
}

// Face is one detected face.
type Face struct {
	Box        Box
	Confidence float64 // Detection confidence (0-1)
	Landmarks  Landmarks
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in a JPEG frame. Implementations order the result
	// by descending confidence, so the first face is the primary one.
	Detect(jpeg []byte) ([]Face, error)

	// Close releases resources
	Close() error
}

// SortByConfidence orders faces by descending confidence, keeping the
// detector's order for ties.
func SortByConfidence(faces []Face) {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Confidence > faces[j].Confidence
	})
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to YuNet ONNX model
	EyeCascadePath   string  // Path to OpenCV eye cascade XML
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
	MaxFaces         int     // Keep at most this many faces (0 = all)
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		EyeCascadePath:   "models/haarcascade_eye_tree_eyeglasses.xml",
		ConfidenceThresh: 0.6,
		InputWidth:       320,
		InputHeight:      240,
		MaxFaces:         3,
	}
}

// APIError represents an error response from a remote detection service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("detection: API error %d: %s", e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// Unwrap maps service-side failures onto ErrDetectionUnavailable.
func (e *APIError) Unwrap() error {
	if e.IsServerError() {
		return ErrDetectionUnavailable
	}
	return nil
}

// ChainError aggregates errors from all detectors in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "detection chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("detection chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("detection chain: all %d detectors failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns every detector's error.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
