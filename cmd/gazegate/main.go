// gazegate - plays a video only while the viewer is looking at it and
// reports how much of it they actually watched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-gazegate/internal/config"
	"github.com/teslashibe/go-gazegate/internal/log"
	"github.com/teslashibe/go-gazegate/pkg/attention"
	"github.com/teslashibe/go-gazegate/pkg/attention/detection"
	"github.com/teslashibe/go-gazegate/pkg/camera"
	"github.com/teslashibe/go-gazegate/pkg/debug"
	"github.com/teslashibe/go-gazegate/pkg/history"
	"github.com/teslashibe/go-gazegate/pkg/web"
)

// options are the settings resolved from .env, the environment and flags.
type options struct {
	app       config.App
	preset    string
	autoStart bool
	debug     bool
	debugLoop bool
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	opts := parseFlags()

	log.InitWith(log.Options{
		Level:     opts.app.LogLevel,
		Format:    opts.app.LogFormat,
		AddSource: opts.debug,
	})
	debug.SetEnabled(opts.debug)
	debug.SetLoop(opts.debugLoop)

	if err := opts.app.Validate(); err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags on top of the environment.
func parseFlags() options {
	app := config.Load()

	port := flag.String("port", app.ListenPort, "HTTP listen port (LISTEN_PORT)")
	device := flag.Int("camera", app.CameraDevice, "Camera device index (CAMERA_DEVICE)")
	db := flag.String("db", app.HistoryDB, "SQLite history path, empty to disable (HISTORY_DB)")
	detectorURL := flag.String("detector-url", app.DetectorURL, "Remote landmark service (DETECTOR_URL)")
	model := flag.String("yunet-model", app.YuNetModel, "YuNet ONNX model (YUNET_MODEL)")
	cascade := flag.String("eye-cascade", app.EyeCascade, "Haar eye cascade (EYE_CASCADE)")
	logLevel := flag.String("log-level", app.LogLevel, "debug, info, warn, error (LOG_LEVEL)")
	dwell := flag.Duration("pause-dwell", app.PauseDwell, "Time away before pausing, negative for default (PAUSE_DWELL)")
	videoID := flag.String("video", app.VideoID, "Video identifier stored with each session (VIDEO_ID)")
	preset := flag.String("preset", "default", "Tracking preset: default, responsive, relaxed")
	autoStart := flag.Bool("start", false, "Start tracking immediately instead of waiting for the API")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugLoop := flag.Bool("debug-loop", false, "Log every detection sample")
	flag.Parse()

	app.ListenPort, app.CameraDevice, app.HistoryDB = *port, *device, *db
	app.DetectorURL, app.YuNetModel, app.EyeCascade = *detectorURL, *model, *cascade
	app.LogLevel, app.PauseDwell, app.VideoID = *logLevel, *dwell, *videoID
	if *debugFlag || *debugLoop {
		app.LogLevel = "debug"
	}

	return options{
		app:       app,
		preset:    *preset,
		autoStart: *autoStart,
		debug:     *debugFlag,
		debugLoop: *debugLoop,
	}
}

func trackingConfig(opts options) (attention.Config, error) {
	var cfg attention.Config
	switch opts.preset {
	case "", "default":
		cfg = attention.DefaultConfig()
	case "responsive":
		cfg = attention.ResponsiveConfig()
	case "relaxed":
		cfg = attention.RelaxedConfig()
	default:
		return cfg, fmt.Errorf("unknown preset %q", opts.preset)
	}
	if opts.app.PauseDwell >= 0 {
		cfg.PauseDwell = opts.app.PauseDwell
	}
	cfg.Camera.Device = opts.app.CameraDevice
	cfg.Logger = log.L()
	return cfg, cfg.Validate()
}

// newDetector builds the detector chain: local YuNet first, then the
// remote landmark service.
func newDetector(app config.App, logger *slog.Logger) (detection.Detector, error) {
	var detectors []detection.Detector

	if app.YuNetModel != "" {
		dcfg := detection.DefaultConfig()
		dcfg.ModelPath = app.YuNetModel
		dcfg.EyeCascadePath = app.EyeCascade
		yunet, err := detection.NewYuNet(dcfg, logger)
		if err != nil {
			logger.Warn("local detector unavailable", "error", err)
		} else {
			detectors = append(detectors, yunet)
		}
	}

	if app.DetectorURL != "" {
		remote, err := detection.NewRemote(detection.RemoteConfig{
			BaseURL: app.DetectorURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, remote)
	}

	if len(detectors) == 0 {
		return nil, fmt.Errorf("%w: no face detector configured", detection.ErrDetectionUnavailable)
	}
	if len(detectors) == 1 {
		return detectors[0], nil
	}
	return detection.NewChainWithLogger(logger, detectors...)
}

func run(ctx context.Context, opts options) error {
	logger := log.L()

	cfg, err := trackingConfig(opts)
	if err != nil {
		return err
	}

	detector, err := newDetector(opts.app, logger)
	if err != nil {
		return err
	}

	player := web.NewPlayerSink(logger)
	tracker, err := attention.NewController(cfg, camera.NewDeviceProvider(logger), detector, player)
	if err != nil {
		detector.Close()
		return err
	}
	defer tracker.Close()

	cameras := camera.NewManager(cfg.Camera)
	cameras.OnChange(tracker.SetConstraints)

	var store history.Store
	if opts.app.HistoryDB != "" {
		sqlite, err := history.NewSQLite(opts.app.HistoryDB)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		store = sqlite
	}

	tracker.OnSessionEnd(func(sum attention.SessionSummary) {
		log.Info("session ended",
			"session", sum.Session.ID,
			"outcome", sum.Outcome,
			"watched", sum.Final.WatchedSeconds,
			"elapsed", sum.Final.ElapsedSeconds,
			"watch_percentage", sum.Final.WatchPercentage)
		if store == nil {
			return
		}
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(saveCtx, history.FromSummary(sum, opts.app.VideoID)); err != nil {
			log.Error("failed to save session", "session", sum.Session.ID, "error", err)
		}
	})

	server := web.NewServer(web.Options{
		Addr:    ":" + opts.app.ListenPort,
		Tracker: tracker,
		History: store,
		Camera:  cameras,
		Player:  player,
		Logger:  logger,
	})
	tracker.OnSnapshot(server.PublishSnapshot)

	if opts.autoStart {
		if _, err := tracker.Start(ctx); err != nil {
			log.Warn("tracking not started", "error", err, "permission", tracker.State())
		}
	}

	log.Info("gazegate ready",
		"port", opts.app.ListenPort,
		"camera", cfg.Camera.Device,
		"preset", opts.preset,
		"pause_dwell", cfg.PauseDwell,
		"history", opts.app.HistoryDB != "")

	err = server.Run(ctx)
	// End the session while the history store is still open.
	tracker.Stop()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
