package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-gazegate/internal/httpc"
)

// 68-point landmark convention: eye contours occupy 36-41 and 42-47.
const (
	landmarks68     = 68
	leftEyeStart68  = 36
	rightEyeStart68 = 42
	eyePoints       = 6
)

// RemoteConfig configures a RemoteDetector.
type RemoteConfig struct {
	BaseURL string        // e.g. "http://localhost:9000"
	Timeout time.Duration // per request
	Logger  *slog.Logger
}

// RemoteDetector calls a landmark service over HTTP. The service receives
// the raw JPEG and answers with faces and either explicit eye contours or a
// full 68-point landmark set.
type RemoteDetector struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewRemote creates a detector for the service at cfg.BaseURL.
func NewRemote(cfg RemoteConfig) (*RemoteDetector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: remote base URL required", ErrDetectionUnavailable)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpc.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RemoteDetector{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/detect",
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "detection.remote"),
	}, nil
}

type remoteResponse struct {
	Faces []remoteFace `json:"faces"`
}

type remoteFace struct {
	Confidence float64 `json:"confidence"`
	Box        struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"box"`
	LeftEye   [][2]float64 `json:"left_eye"`
	RightEye  [][2]float64 `json:"right_eye"`
	Landmarks [][2]float64 `json:"landmarks"`
}

// Detect posts the frame and parses the service's faces.
func (d *RemoteDetector) Detect(jpeg []byte) ([]Face, error) {
	if len(jpeg) == 0 {
		return nil, ErrInvalidImage
	}

	resp, err := httpc.Post(context.Background(), d.client, d.url, "image/jpeg", jpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDetectionUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	faces := make([]Face, 0, len(parsed.Faces))
	for _, rf := range parsed.Faces {
		f := Face{
			Box:        Box{X: rf.Box.X, Y: rf.Box.Y, W: rf.Box.W, H: rf.Box.H},
			Confidence: rf.Confidence,
		}
		switch {
		case len(rf.LeftEye) > 0 || len(rf.RightEye) > 0:
			f.Landmarks.LeftEye = toPoints(rf.LeftEye)
			f.Landmarks.RightEye = toPoints(rf.RightEye)
		case len(rf.Landmarks) >= landmarks68:
			f.Landmarks.LeftEye = toPoints(rf.Landmarks[leftEyeStart68 : leftEyeStart68+eyePoints])
			f.Landmarks.RightEye = toPoints(rf.Landmarks[rightEyeStart68 : rightEyeStart68+eyePoints])
		default:
			d.logger.Debug("face without usable landmarks", "points", len(rf.Landmarks))
		}
		faces = append(faces, f)
	}

	SortByConfidence(faces)
	return faces, nil
}

func toPoints(raw [][2]float64) []Point {
	pts := make([]Point, len(raw))
	for i, p := range raw {
		pts[i] = Point{X: p[0], Y: p[1]}
	}
	return pts
}

// Close releases idle connections.
func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
