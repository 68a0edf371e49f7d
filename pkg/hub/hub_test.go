package hub

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHub_RunStopsOnCancel(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("hub should report running")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("hub should not report running after Run returns")
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := New("test", nil)

	// Nothing drains the channel; Broadcast must never block.
	queued := 0
	for i := 0; i < 1000; i++ {
		if h.Broadcast([]byte(`{"type":"snapshot"}`)) {
			queued++
		}
	}
	if queued != queueSize {
		t.Errorf("queued %d frames, want %d", queued, queueSize)
	}
	if st := h.Stats(); st.Dropped != uint64(1000-queueSize) {
		t.Errorf("Dropped = %d, want %d", st.Dropped, 1000-queueSize)
	}
	if err := h.BroadcastJSON(map[string]int{"n": 1}); !errors.Is(err, ErrDropped) {
		t.Errorf("expected ErrDropped on a full queue, got %v", err)
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}

func TestHub_BroadcastAfterShutdown(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if h.Broadcast([]byte("late")) {
		t.Error("Broadcast should report a drop once the hub has shut down")
	}
	if err := h.BroadcastJSON("late"); !errors.Is(err, ErrDropped) {
		t.Errorf("expected ErrDropped, got %v", err)
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test", nil)
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}

func TestEnvelope(t *testing.T) {
	env, err := NewEnvelope(TypeSnapshot, map[string]int{"watch_percentage": 60})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.Type != TypeSnapshot || string(env.Data) != `{"watch_percentage":60}` {
		t.Errorf("got %+v", env)
	}

	bare, _ := NewEnvelope(TypePause, nil)
	if bare.Data != nil {
		t.Errorf("bare envelope carries data: %s", bare.Data)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantType   string
		wantPaused *bool
		wantErr    bool
	}{
		{name: "state paused", in: `{"type":"state","paused":true}`, wantType: TypeState, wantPaused: boolPtr(true)},
		{name: "state playing", in: `{"type":"state","paused":false}`, wantType: TypeState, wantPaused: boolPtr(false)},
		{name: "no paused field", in: `{"type":"state"}`, wantType: TypeState},
		{name: "missing type", in: `{"paused":true}`, wantErr: true},
		{name: "not json", in: `pause`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Decode([]byte(tc.in))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if env.Type != tc.wantType {
				t.Errorf("type = %q, want %q", env.Type, tc.wantType)
			}
			switch {
			case tc.wantPaused == nil && env.Paused != nil:
				t.Errorf("paused = %v, want unset", *env.Paused)
			case tc.wantPaused != nil && (env.Paused == nil || *env.Paused != *tc.wantPaused):
				t.Errorf("paused = %v, want %v", env.Paused, *tc.wantPaused)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

// testClient builds a client with no connection; only its send buffer is used.
func testClient(h *Hub, buffer int) *Client {
	return &Client{hub: h, send: make(chan []byte, buffer)}
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
}

func recv(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return string(frame)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return ""
}

func TestHub_DeliverAndLeave(t *testing.T) {
	h := New("test", nil)
	runHub(t, h)

	a, b := testClient(h, 4), testClient(h, 4)
	if !h.join(a) || !h.join(b) {
		t.Fatal("join failed on a live hub")
	}
	if h.ClientCount() != 2 {
		t.Fatalf("ClientCount = %d, want 2", h.ClientCount())
	}

	h.Broadcast([]byte("one"))
	if got := recv(t, a); got != "one" {
		t.Errorf("a got %q", got)
	}
	if got := recv(t, b); got != "one" {
		t.Errorf("b got %q", got)
	}

	h.leave(a)
	h.leave(a) // second leave is a no-op
	if _, ok := <-a.send; ok {
		t.Error("leave should close the send channel")
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}
	if st := h.Stats(); st.Delivered != 2 || st.Name != "test" {
		t.Errorf("stats = %+v", st)
	}
}

func TestHub_Replay(t *testing.T) {
	h := New("test", nil, WithReplay())
	runHub(t, h)

	early := testClient(h, 4)
	h.join(early)
	h.Broadcast([]byte("latest"))
	recv(t, early)

	late := testClient(h, 4)
	h.join(late)
	if got := recv(t, late); got != "latest" {
		t.Errorf("late joiner got %q, want replay of latest", got)
	}
}

func TestHub_NoReplayByDefault(t *testing.T) {
	h := New("test", nil)
	runHub(t, h)

	first := testClient(h, 4)
	h.join(first)
	h.Broadcast([]byte("x"))
	recv(t, first)

	late := testClient(h, 4)
	h.join(late)
	select {
	case frame := <-late.send:
		t.Errorf("unexpected frame %q", frame)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New("test", nil)
	runHub(t, h)

	slow := testClient(h, 1)
	h.join(slow)
	h.Broadcast([]byte("1"))
	h.Broadcast([]byte("2"))

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatal("slow client should be disconnected")
	}
	if h.Stats().Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", h.Stats().Dropped)
	}
}

func TestHub_JoinAfterShutdown(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	member := testClient(h, 1)
	h.join(member)
	cancel()
	<-done

	if _, ok := <-member.send; ok {
		t.Error("shutdown should close member channels")
	}
	if h.join(testClient(h, 1)) {
		t.Error("join should fail after shutdown")
	}
}
