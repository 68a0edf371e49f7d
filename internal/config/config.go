// Package config provides configuration helpers for gazegate commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when neither a flag nor an environment variable is set.
const (
	DefaultListenPort   = "8090"
	DefaultCameraDevice = 0
	DefaultHistoryDB    = "data/gazegate.db"
	DefaultYuNetModel   = "models/face_detection_yunet.onnx"
	DefaultEyeCascade   = "models/haarcascade_eye_tree_eyeglasses.xml"
	DefaultLogLevel     = "info"
)

// ErrInvalidConfig is returned when loaded settings fail validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// App holds process-level settings for cmd/gazegate.
type App struct {
	ListenPort   string
	CameraDevice int
	HistoryDB    string
	DetectorURL  string // optional remote landmark service
	YuNetModel   string
	EyeCascade   string
	LogLevel     string
	LogFormat    string
	PauseDwell   time.Duration // negative = use attention default
	VideoID      string
}

// LoadDotenv loads the given .env files (default ".env") into the process
// environment. Missing files are not an error.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(present, ","), err)
	}
	return nil
}

// Load reads App settings from the environment.
func Load() App {
	return App{
		ListenPort:   String("LISTEN_PORT", DefaultListenPort),
		CameraDevice: Int("CAMERA_DEVICE", DefaultCameraDevice),
		HistoryDB:    String("HISTORY_DB", DefaultHistoryDB),
		DetectorURL:  String("DETECTOR_URL", ""),
		YuNetModel:   String("YUNET_MODEL", DefaultYuNetModel),
		EyeCascade:   String("EYE_CASCADE", DefaultEyeCascade),
		LogLevel:     String("LOG_LEVEL", DefaultLogLevel),
		LogFormat:    String("LOG_FORMAT", ""),
		PauseDwell:   Duration("PAUSE_DWELL", -1),
		VideoID:      String("VIDEO_ID", ""),
	}
}

// Validate checks the settings that have no safe fallback.
func (a App) Validate() error {
	port, err := strconv.Atoi(a.ListenPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: invalid listen port %q", ErrInvalidConfig, a.ListenPort)
	}
	if a.CameraDevice < 0 {
		return fmt.Errorf("%w: camera device must be >= 0", ErrInvalidConfig)
	}
	if a.YuNetModel == "" && a.DetectorURL == "" {
		return fmt.Errorf("%w: need a YuNet model or a detector URL", ErrInvalidConfig)
	}
	return nil
}

// String returns the env var value or def if unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def if unset or malformed.
func Int(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the env var parsed as a bool, or def if unset or malformed.
func Bool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Duration returns the env var parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
