package detection

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNet output columns (15 per face).
const (
	colX, colY, colW, colH = 0, 1, 2, 3
	colRightEyeX           = 4 // subject's right eye, image left
	colRightEyeY           = 5
	colLeftEyeX            = 6
	colLeftEyeY            = 7
	colScore               = 14
)

// Eye search window around each YuNet eye landmark, as a fraction of face width.
const eyeWindow = 0.35

// YuNetDetector finds faces with OpenCV's FaceDetectorYN and derives eye
// contours by running an eye cascade around each YuNet eye landmark. An eye
// the cascade finds yields an ellipse contour of its box; an eye it misses
// (typically a closed one) yields a flat contour with zero height.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	eyes     gocv.CascadeClassifier
	config   Config
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config, logger *slog.Logger) (*YuNetDetector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrDetectionUnavailable, cfg.ModelPath)
	}
	if _, err := os.Stat(cfg.EyeCascadePath); err != nil {
		return nil, fmt.Errorf("%w: eye cascade not found: %s", ErrDetectionUnavailable, cfg.EyeCascadePath)
	}

	eyes := gocv.NewCascadeClassifier()
	if !eyes.Load(cfg.EyeCascadePath) {
		eyes.Close()
		return nil, fmt.Errorf("%w: cannot load eye cascade %s", ErrDetectionUnavailable, cfg.EyeCascadePath)
	}

	// Input size is updated per image
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		eyes:     eyes,
		config:   cfg,
		logger:   logger.With("component", "detection.yunet"),
	}, nil
}

// Detect finds faces in the JPEG image
func (d *YuNetDetector) Detect(jpeg []byte) ([]Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidImage, err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	d.detector.Detect(img, &out)

	var faces []Face
	for r := 0; r < out.Rows(); r++ {
		x := float64(out.GetFloatAt(r, colX))
		y := float64(out.GetFloatAt(r, colY))
		w := float64(out.GetFloatAt(r, colW))
		h := float64(out.GetFloatAt(r, colH))
		score := float64(out.GetFloatAt(r, colScore))

		leftCenter := Point{X: float64(out.GetFloatAt(r, colLeftEyeX)), Y: float64(out.GetFloatAt(r, colLeftEyeY))}
		rightCenter := Point{X: float64(out.GetFloatAt(r, colRightEyeX)), Y: float64(out.GetFloatAt(r, colRightEyeY))}

		faces = append(faces, Face{
			Box:        Box{X: x / imgW, Y: y / imgH, W: w / imgW, H: h / imgH},
			Confidence: score,
			Landmarks: Landmarks{
				LeftEye:  d.eyeContour(gray, bounds, leftCenter, w),
				RightEye: d.eyeContour(gray, bounds, rightCenter, w),
			},
		})
	}

	SortByConfidence(faces)
	if d.config.MaxFaces > 0 && len(faces) > d.config.MaxFaces {
		faces = faces[:d.config.MaxFaces]
	}

	return faces, nil
}

// eyeContour searches a window around center for an eye and returns its
// 6-point contour in image pixels.
func (d *YuNetDetector) eyeContour(gray gocv.Mat, bounds image.Rectangle, center Point, faceW float64) []Point {
	side := int(math.Max(faceW*eyeWindow, 12))
	window := image.Rect(
		int(center.X)-side/2, int(center.Y)-side/2,
		int(center.X)+side/2, int(center.Y)+side/2,
	).Intersect(bounds)
	if window.Empty() {
		return flatContour(center, float64(side)/2)
	}

	roi := gray.Region(window)
	defer roi.Close()

	found := d.eyes.DetectMultiScaleWithParams(roi, 1.1, 3, 0, image.Pt(side/5, side/5), image.Pt(side, side))
	if len(found) == 0 {
		return flatContour(center, float64(side)/2)
	}

	// Prefer the hit closest to the landmark.
	best := found[0]
	bestDist := math.Inf(1)
	for _, r := range found {
		cx := float64(window.Min.X + r.Min.X + r.Dx()/2)
		cy := float64(window.Min.Y + r.Min.Y + r.Dy()/2)
		if dist := math.Hypot(cx-center.X, cy-center.Y); dist < bestDist {
			best, bestDist = r, dist
		}
	}

	return ellipseContour(best.Add(window.Min))
}

// ellipseContour places the 6 landmark points on the ellipse inscribed in r.
func ellipseContour(r image.Rectangle) []Point {
	a := float64(r.Dx()) / 2
	b := float64(r.Dy()) / 2
	cx := float64(r.Min.X) + a
	cy := float64(r.Min.Y) + b
	dx := a / 3
	dy := b * math.Sqrt(1-1.0/9)

	return []Point{
		{X: cx - a, Y: cy},
		{X: cx - dx, Y: cy - dy},
		{X: cx + dx, Y: cy - dy},
		{X: cx + a, Y: cy},
		{X: cx + dx, Y: cy + dy},
		{X: cx - dx, Y: cy + dy},
	}
}

// flatContour is a zero-height eye, which classifies as closed.
func flatContour(center Point, halfWidth float64) []Point {
	return []Point{
		{X: center.X - halfWidth, Y: center.Y},
		{X: center.X - halfWidth/3, Y: center.Y},
		{X: center.X + halfWidth/3, Y: center.Y},
		{X: center.X + halfWidth, Y: center.Y},
		{X: center.X + halfWidth/3, Y: center.Y},
		{X: center.X - halfWidth/3, Y: center.Y},
	}
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	d.eyes.Close()
	return nil
}
