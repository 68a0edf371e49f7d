package detection

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := NewYuNet(cfg, nil)
	if !errors.Is(err, ErrDetectionUnavailable) {
		t.Errorf("Expected ErrDetectionUnavailable for invalid model path, got %v", err)
	}
}

func TestYuNetDetect_InvalidImage(t *testing.T) {
	detector := newTestYuNet(t)
	defer detector.Close()

	if _, err := detector.Detect([]byte{}); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := detector.Detect([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestYuNetDetect_SolidImage(t *testing.T) {
	detector := newTestYuNet(t)
	defer detector.Close()

	faces, err := detector.Detect(createSolidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) > 0 {
		t.Errorf("Expected no faces in solid color image, got %d", len(faces))
	}
}

func TestYuNetConcurrency(t *testing.T) {
	detector := newTestYuNet(t)
	defer detector.Close()

	frame := createSolidJPEG(320, 240, color.RGBA{100, 100, 100, 255})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := detector.Detect(frame); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestEllipseContour(t *testing.T) {
	pts := ellipseContour(image.Rect(10, 20, 40, 50)) // 30x30 eye box

	if len(pts) != 6 {
		t.Fatalf("got %d points, want 6", len(pts))
	}
	if pts[0] != (Point{X: 10, Y: 35}) || pts[3] != (Point{X: 40, Y: 35}) {
		t.Errorf("corners = %+v, %+v", pts[0], pts[3])
	}

	h := math.Hypot(pts[0].X-pts[3].X, pts[0].Y-pts[3].Y)
	v1 := math.Hypot(pts[1].X-pts[5].X, pts[1].Y-pts[5].Y)
	v2 := math.Hypot(pts[2].X-pts[4].X, pts[2].Y-pts[4].Y)
	ratio := (v1 + v2) / (2 * h)
	want := math.Sqrt(8.0 / 9.0)
	if math.Abs(ratio-want) > 1e-9 {
		t.Errorf("aspect ratio = %.4f, want %.4f", ratio, want)
	}
}

func TestFlatContour(t *testing.T) {
	pts := flatContour(Point{X: 50, Y: 60}, 9)

	if len(pts) != 6 {
		t.Fatalf("got %d points, want 6", len(pts))
	}
	for i, p := range pts {
		if p.Y != 60 {
			t.Errorf("point %d off the line: %+v", i, p)
		}
	}
	if w := pts[3].X - pts[0].X; w != 18 {
		t.Errorf("width = %.1f, want 18", w)
	}
}

// Helper functions

func newTestYuNet(t *testing.T) *YuNetDetector {
	t.Helper()
	modelPath := findModelFile("face_detection_yunet.onnx")
	cascadePath := findModelFile("haarcascade_eye_tree_eyeglasses.xml")
	if modelPath == "" || cascadePath == "" {
		t.Skip("YuNet model or eye cascade not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	cfg.EyeCascadePath = cascadePath

	detector, err := NewYuNet(cfg, nil)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	return detector
}

func findModelFile(name string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	// Walk up to find models directory
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		p := filepath.Join(dir, "models", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func createSolidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
