package attention

import (
	"math"

	"github.com/teslashibe/go-gazegate/pkg/attention/detection"
)

// EARThreshold is the eye aspect ratio above which an eye counts as open.
const EARThreshold = 0.2

// EyeState is the classification of one face's eyes.
type EyeState struct {
	Open bool
	EAR  float64 // mean of both eyes
}

// ClassifyEyes decides whether both eyes are open from their 6-point
// contours (p0 and p3 are the horizontal corners, p1/p5 and p2/p4 the
// vertical pairs). Degenerate contours yield EAR 0 and classify closed.
func ClassifyEyes(left, right []detection.Point) EyeState {
	ear := (EyeAspectRatio(left) + EyeAspectRatio(right)) / 2
	return EyeState{Open: ear > EARThreshold, EAR: ear}
}

// EyeAspectRatio returns (|p1-p5| + |p2-p4|) / (2|p0-p3|) for one eye.
func EyeAspectRatio(eye []detection.Point) float64 {
	if len(eye) < 6 {
		return 0
	}
	h := dist(eye[0], eye[3])
	if h == 0 || math.IsNaN(h) {
		return 0
	}
	v := dist(eye[1], eye[5]) + dist(eye[2], eye[4])
	ear := v / (2 * h)
	if math.IsNaN(ear) || math.IsInf(ear, 0) {
		return 0
	}
	return ear
}

func dist(a, b detection.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
