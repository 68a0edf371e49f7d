package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gazegate/pkg/attention"
	"github.com/teslashibe/go-gazegate/pkg/camera"
	"github.com/teslashibe/go-gazegate/pkg/history"
	"github.com/teslashibe/go-gazegate/pkg/hub"
)

// fakeTracker implements Tracker with scripted results.
type fakeTracker struct {
	mu       sync.Mutex
	startErr error
	phase    attention.Phase
	perm     attention.PermissionState
	session  attention.Session
	snap     *attention.Snapshot
	starts   int
	stops    int
}

func (f *fakeTracker) Start(ctx context.Context) (attention.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		f.phase = attention.PhaseDenied
		f.perm = attention.PermissionDenied
		return attention.Session{}, f.startErr
	}
	f.phase = attention.PhaseTracking
	f.perm = attention.PermissionGranted
	f.session = attention.Session{ID: "sess_test", Permission: attention.PermissionGranted}
	return f.session, nil
}

func (f *fakeTracker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.phase == attention.PhaseTracking {
		f.phase = attention.PhaseStopped
	}
}

func (f *fakeTracker) Phase() attention.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeTracker) State() attention.PermissionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perm
}

func (f *fakeTracker) Session() (attention.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.session.ID != ""
}

func (f *fakeTracker) LastSnapshot() (attention.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return attention.Snapshot{}, false
	}
	return *f.snap, true
}

func (f *fakeTracker) Stats() attention.LoopStats {
	return attention.LoopStats{Samples: 42}
}

func newTestServer(t *testing.T, tracker *fakeTracker) (*Server, *history.SQLiteStore, *camera.Manager) {
	t.Helper()
	store, err := history.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := camera.NewManager(camera.DefaultConfig())
	s := NewServer(Options{
		Tracker: tracker,
		History: store,
		Camera:  mgr,
		Player:  NewPlayerSink(nil),
	})
	return s, store, mgr
}

func doJSON(t *testing.T, s *Server, method, path, body string, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	tracker := &fakeTracker{snap: &attention.Snapshot{WatchPercentage: 60}}
	s, _, _ := newTestServer(t, tracker)

	var st map[string]interface{}
	code := doJSON(t, s, http.MethodGet, "/api/status", "", &st)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", st["phase"])
	assert.Equal(t, "not_requested", st["permission"])
	assert.NotContains(t, st, "session")
	assert.Equal(t, float64(60), st["snapshot"].(map[string]interface{})["watch_percentage"])
	assert.Equal(t, float64(42), st["stats"].(map[string]interface{})["samples"])

	hubs := st["hubs"].([]interface{})
	require.Len(t, hubs, 2)
	assert.Equal(t, "snapshots", hubs[0].(map[string]interface{})["name"])
	assert.Equal(t, "player", hubs[1].(map[string]interface{})["name"])
}

func TestSessionStartStop(t *testing.T) {
	tracker := &fakeTracker{}
	s, _, _ := newTestServer(t, tracker)

	var sess attention.Session
	code := doJSON(t, s, http.MethodPost, "/api/session/start", "", &sess)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sess_test", sess.ID)

	var out map[string]interface{}
	code = doJSON(t, s, http.MethodPost, "/api/session/stop", "", &out)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "stopped", out["phase"])
	assert.Equal(t, 1, tracker.stops)
}

func TestSessionStartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"denied", fmt.Errorf("%w: refused", camera.ErrPermissionDenied), http.StatusForbidden},
		{"no device", fmt.Errorf("%w: busy", camera.ErrDeviceUnavailable), http.StatusServiceUnavailable},
		{"stopped", attention.ErrStopped, http.StatusConflict},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer(t, &fakeTracker{startErr: tc.err})

			var out map[string]interface{}
			code := doJSON(t, s, http.MethodPost, "/api/session/start", "", &out)
			assert.Equal(t, tc.want, code)
			assert.Contains(t, out["error"], tc.err.Error())
		})
	}
}

func TestSnapshot(t *testing.T) {
	tracker := &fakeTracker{}
	s, _, _ := newTestServer(t, tracker)

	code := doJSON(t, s, http.MethodGet, "/api/snapshot", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	tracker.mu.Lock()
	tracker.snap = &attention.Snapshot{SessionID: "sess_test", WatchedSeconds: 6, ElapsedSeconds: 10, WatchPercentage: 60}
	tracker.mu.Unlock()

	var snap attention.Snapshot
	code = doJSON(t, s, http.MethodGet, "/api/snapshot", "", &snap)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 60, snap.WatchPercentage)
	assert.Equal(t, "sess_test", snap.SessionID)
}

func TestSessionsHistory(t *testing.T) {
	s, store, _ := newTestServer(t, &fakeTracker{})
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, &history.Record{
			ID:        fmt.Sprintf("rec%d", i),
			SessionID: fmt.Sprintf("sess_%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Outcome:   "stopped",
		}))
	}

	var records []history.Record
	code := doJSON(t, s, http.MethodGet, "/api/sessions?limit=2", "", &records)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, records, 2)
	assert.Equal(t, "rec2", records[0].ID)

	var rec history.Record
	code = doJSON(t, s, http.MethodGet, "/api/sessions/rec1", "", &rec)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sess_1", rec.SessionID)

	code = doJSON(t, s, http.MethodGet, "/api/sessions/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionsHistoryDisabled(t *testing.T) {
	s := NewServer(Options{Tracker: &fakeTracker{}})

	code := doJSON(t, s, http.MethodGet, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestCameraConfig(t *testing.T) {
	s, _, mgr := newTestServer(t, &fakeTracker{})

	var applied []camera.Config
	mgr.OnChange(func(cfg camera.Config) error {
		applied = append(applied, cfg)
		return nil
	})

	var got struct {
		Config  camera.Config `json:"config"`
		Presets []string      `json:"presets"`
	}
	code := doJSON(t, s, http.MethodGet, "/api/camera", "", &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 320, got.Config.Width)
	assert.Contains(t, got.Presets, camera.Preset720p)

	code = doJSON(t, s, http.MethodPut, "/api/camera", `{"preset":"720p","framerate":10}`, &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1280, got.Config.Width)
	assert.Equal(t, 10, got.Config.Framerate)
	require.Len(t, applied, 1)
	assert.Equal(t, 1280, applied[0].Width)

	code = doJSON(t, s, http.MethodPut, "/api/camera", `{"width":5}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 1280, mgr.Current().Width, "invalid update must not change the config")

	code = doJSON(t, s, http.MethodPut, "/api/camera", `{"preset":"8k"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeTracker{})

	code := doJSON(t, s, http.MethodGet, "/ws/snapshots", "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

// serve starts s on a free local port and returns its websocket base URL.
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return "ws://" + ln.Addr().String()
}

func waitForClients(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n },
		2*time.Second, 5*time.Millisecond, "waiting for %d clients", n)
}

func TestPlayerWebSocket(t *testing.T) {
	player := NewPlayerSink(nil)
	s := NewServer(Options{Tracker: &fakeTracker{}, Player: player})
	base := serve(t, s)

	assert.ErrorIs(t, player.Play(), ErrNoPlayer)
	assert.True(t, player.IsPaused())

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/player", nil)
	require.NoError(t, err)
	defer ws.Close()
	waitForClients(t, player.Hub(), 1)

	require.NoError(t, player.Play())
	assert.False(t, player.IsPaused())

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := hub.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, hub.TypePlay, env.Type)

	// The player reports a manual pause.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"state","paused":true}`)))
	require.Eventually(t, player.IsPaused, 2*time.Second, 5*time.Millisecond)

	ws.Close()
	waitForClients(t, player.Hub(), 0)
	assert.ErrorIs(t, player.Pause(), ErrNoPlayer)
}

func TestSnapshotsWebSocket(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeTracker{})
	base := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/snapshots", nil)
	require.NoError(t, err)
	defer ws.Close()
	waitForClients(t, s.SnapshotHub(), 1)

	s.PublishSnapshot(attention.Snapshot{SessionID: "sess_ws", WatchPercentage: 75})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	env, err := hub.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, hub.TypeSnapshot, env.Type)

	var snap attention.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "sess_ws", snap.SessionID)
	assert.Equal(t, 75, snap.WatchPercentage)
}

func TestPlayerSinkDrivesController(t *testing.T) {
	player := NewPlayerSink(nil)
	s := NewServer(Options{Tracker: &fakeTracker{}, Player: player})
	base := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws/player", nil)
	require.NoError(t, err)
	defer ws.Close()
	waitForClients(t, player.Hub(), 1)

	var sink attention.VideoSink = player
	require.NoError(t, sink.Pause())
	require.NoError(t, sink.Play())

	var got []string
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(got) < 2 {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		env, err := hub.Decode(data)
		require.NoError(t, err)
		got = append(got, env.Type)
	}
	assert.Equal(t, []string{hub.TypePause, hub.TypePlay}, got)
}

func TestSnapshotsWebSocket_LateJoinerGetsLatest(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeTracker{})
	base := serve(t, s)

	first, _, err := websocket.DefaultDialer.Dial(base+"/ws/snapshots", nil)
	require.NoError(t, err)
	defer first.Close()
	waitForClients(t, s.SnapshotHub(), 1)

	s.PublishSnapshot(attention.Snapshot{SessionID: "sess_late", WatchPercentage: 40})
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = first.ReadMessage()
	require.NoError(t, err)

	late, _, err := websocket.DefaultDialer.Dial(base+"/ws/snapshots", nil)
	require.NoError(t, err)
	defer late.Close()

	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := late.ReadMessage()
	require.NoError(t, err)

	env, err := hub.Decode(data)
	require.NoError(t, err)
	var snap attention.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "sess_late", snap.SessionID)
}

func TestPlayerSink_DroppedCommandIsAnError(t *testing.T) {
	player := NewPlayerSink(nil)
	s := NewServer(Options{Tracker: &fakeTracker{}, Player: player})

	// Serve HTTP without running the hubs so nothing drains the player queue.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.App().Listener(ln)
	t.Cleanup(func() { s.App().ShutdownWithTimeout(2 * time.Second) })

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/player", nil)
	require.NoError(t, err)
	defer ws.Close()
	waitForClients(t, player.Hub(), 1)

	require.NoError(t, player.Play())
	var sendErr error
	for i := 0; i < 1000 && sendErr == nil; i++ {
		sendErr = player.Play()
	}
	require.Error(t, sendErr, "a full queue must surface as an error")
	assert.ErrorIs(t, sendErr, hub.ErrDropped)

	assert.ErrorIs(t, player.Pause(), hub.ErrDropped)
	assert.False(t, player.IsPaused(), "a dropped pause must not be reported as applied")
}
