package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gazegate/pkg/attention"
	"github.com/teslashibe/go-gazegate/pkg/camera"
	"github.com/teslashibe/go-gazegate/pkg/history"
	"github.com/teslashibe/go-gazegate/pkg/hub"
)

// Status is the response of GET /api/status.
type Status struct {
	Phase           attention.Phase           `json:"phase"`
	Permission      attention.PermissionState `json:"permission"`
	Session         *attention.Session        `json:"session,omitempty"`
	Snapshot        *attention.Snapshot       `json:"snapshot,omitempty"`
	Stats           attention.LoopStats       `json:"stats"`
	Players         int                       `json:"players"`
	SnapshotClients int                       `json:"snapshot_clients"`
	Hubs            []hub.Stats               `json:"hubs"`
}

// handleStatus returns the tracker state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Phase:           s.tracker.Phase(),
		Permission:      s.tracker.State(),
		Stats:           s.tracker.Stats(),
		SnapshotClients: s.snapshotHub.ClientCount(),
		Hubs:            []hub.Stats{s.snapshotHub.Stats()},
	}
	if sess, ok := s.tracker.Session(); ok {
		st.Session = &sess
	}
	if snap, ok := s.tracker.LastSnapshot(); ok {
		st.Snapshot = &snap
	}
	if s.player != nil {
		st.Players = s.player.Hub().ClientCount()
		st.Hubs = append(st.Hubs, s.player.Hub().Stats())
	}
	return c.JSON(st)
}

// handleStart starts (or returns) the tracking session
func (s *Server) handleStart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.startTimeout)
	defer cancel()

	sess, err := s.tracker.Start(ctx)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, camera.ErrPermissionDenied):
			status = fiber.StatusForbidden
		case errors.Is(err, camera.ErrDeviceUnavailable):
			status = fiber.StatusServiceUnavailable
		case errors.Is(err, attention.ErrStopped):
			status = fiber.StatusConflict
		case errors.Is(err, context.DeadlineExceeded):
			status = fiber.StatusGatewayTimeout
		}
		return c.Status(status).JSON(fiber.Map{
			"error":      err.Error(),
			"permission": s.tracker.State(),
		})
	}
	return c.JSON(sess)
}

// handleStop stops tracking and returns the final snapshot
func (s *Server) handleStop(c *fiber.Ctx) error {
	s.tracker.Stop()
	snap, ok := s.tracker.LastSnapshot()
	if !ok {
		return c.JSON(fiber.Map{"phase": s.tracker.Phase()})
	}
	return c.JSON(snap)
}

// handleSnapshot returns the latest snapshot
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	snap, ok := s.tracker.LastSnapshot()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no snapshot yet",
		})
	}
	return c.JSON(snap)
}

// handleListSessions returns recent finished sessions
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	if s.history == nil {
		return historyDisabled(c)
	}
	records, err := s.history.List(c.UserContext(), c.QueryInt("limit", history.DefaultListLimit))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(records)
}

// handleGetSession returns one finished session
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	if s.history == nil {
		return historyDisabled(c)
	}
	rec, err := s.history.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, history.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(rec)
}

func historyDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
		"error": "history is disabled",
	})
}

// handleGetCamera returns the capture constraints for the next session
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "camera configuration is disabled",
		})
	}
	return c.JSON(fiber.Map{
		"config":  s.camera.Current(),
		"presets": camera.PresetNames(),
	})
}

// handleUpdateCamera applies a partial update or a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "camera configuration is disabled",
		})
	}

	var update camera.Update
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body",
		})
	}
	cfg, err := s.camera.Apply(update)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"config": cfg,
	})
}

// handleSnapshotsWS streams snapshots to a dashboard
func (s *Server) handleSnapshotsWS(conn *websocket.Conn) {
	hub.NewClient(s.snapshotHub, conn).Run()
}

// handlePlayerWS connects a video player to the sink
func (s *Server) handlePlayerWS(conn *websocket.Conn) {
	hub.NewClient(s.player.Hub(), conn).Run()
}
