// Package web serves the gazegate HTTP API and websocket feeds.
package web

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gazegate/pkg/attention"
	"github.com/teslashibe/go-gazegate/pkg/camera"
	"github.com/teslashibe/go-gazegate/pkg/debug"
	"github.com/teslashibe/go-gazegate/pkg/history"
	"github.com/teslashibe/go-gazegate/pkg/hub"
)

// Tracker is the part of attention.Controller the server drives.
type Tracker interface {
	Start(ctx context.Context) (attention.Session, error)
	Stop()
	Phase() attention.Phase
	State() attention.PermissionState
	Session() (attention.Session, bool)
	LastSnapshot() (attention.Snapshot, bool)
	Stats() attention.LoopStats
}

// Options configures a Server. History, Camera and Player are optional.
type Options struct {
	Addr    string
	Tracker Tracker
	History history.Store
	Camera  *camera.Manager
	Player  *PlayerSink
	Logger  *slog.Logger

	// StartTimeout bounds a camera permission request made over the API.
	StartTimeout time.Duration
}

// Server is the gazegate API server
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	tracker      Tracker
	history      history.Store
	camera       *camera.Manager
	player       *PlayerSink
	startTimeout time.Duration

	// Hubs for websocket broadcast
	snapshotHub *hub.Hub
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	startTimeout := opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}

	s := &Server{
		addr:         opts.Addr,
		logger:       logger.With("component", "web"),
		tracker:      opts.Tracker,
		history:      opts.History,
		camera:       opts.Camera,
		player:       opts.Player,
		startTimeout: startTimeout,
		snapshotHub:  hub.New("snapshots", logger, hub.WithReplay()),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gazegate",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if debug.Enabled() {
		app.Use(fiberlogger.New())
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)
	api.Get("/snapshot", s.handleSnapshot)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/snapshots", websocket.New(s.handleSnapshotsWS))
	if s.player != nil {
		app.Get("/ws/player", websocket.New(s.handlePlayerWS))
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.snapshotHub.Run(ctx)
	if s.player != nil {
		go s.player.Hub().Run(ctx)
	}

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// PublishSnapshot broadcasts a snapshot to /ws/snapshots clients.
func (s *Server) PublishSnapshot(snap attention.Snapshot) {
	env, err := hub.NewEnvelope(hub.TypeSnapshot, snap)
	if err != nil {
		s.logger.Error("encode snapshot", "error", err)
		return
	}
	if err := s.snapshotHub.BroadcastJSON(env); err != nil {
		s.logger.Warn("broadcast snapshot", "session", snap.SessionID, "error", err)
	}
}

// SnapshotHub returns the snapshot hub.
func (s *Server) SnapshotHub() *hub.Hub {
	return s.snapshotHub
}
