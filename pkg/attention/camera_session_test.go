package attention

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/teslashibe/go-gazegate/pkg/camera"
)

func TestCameraSession_AcquireRelease(t *testing.T) {
	provider := camera.NewMockProvider()
	sess := NewCameraSession(provider, camera.DefaultConfig(), nil)

	stream, err := sess.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if stream.ActiveTracks() != 1 {
		t.Errorf("active tracks = %d, want 1", stream.ActiveTracks())
	}

	sess.Release()
	sess.Release()
	if stream.ActiveTracks() != 0 {
		t.Errorf("active tracks after release = %d, want 0", stream.ActiveTracks())
	}
	if sess.Stream() != nil {
		t.Error("released session should not hand out the stream")
	}
	if got := provider.Streams()[0].Stops(); got != 1 {
		t.Errorf("stream stopped %d times, want 1", got)
	}
}

func TestCameraSession_ReleaseBeforeAcquire(t *testing.T) {
	sess := NewCameraSession(camera.NewMockProvider(), camera.DefaultConfig(), nil)
	sess.Release()

	if _, err := sess.Acquire(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestCameraSession_AcquireErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission denied", fmt.Errorf("%w: user refused", camera.ErrPermissionDenied)},
		{"device unavailable", fmt.Errorf("%w: no camera", camera.ErrDeviceUnavailable)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := NewCameraSession(camera.NewDeniedProvider(tc.err), camera.DefaultConfig(), nil)
			stream, err := sess.Acquire(context.Background())
			if !errors.Is(err, tc.err) {
				t.Errorf("expected %v, got %v", tc.err, err)
			}
			if stream != nil {
				t.Error("no stream expected on failure")
			}
			sess.Release()
		})
	}
}

func TestCameraSession_StreamWithErrorIsStopped(t *testing.T) {
	leaked := camera.NewMockStream()
	provider := &camera.MockProvider{
		RequestAccessFunc: func(ctx context.Context, cfg camera.Config) (camera.Stream, error) {
			return leaked, camera.ErrDeviceUnavailable
		},
	}
	sess := NewCameraSession(provider, camera.DefaultConfig(), nil)

	if _, err := sess.Acquire(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if leaked.ActiveTracks() != 0 {
		t.Error("stream returned with an error should be stopped")
	}
}

func TestCameraSession_CancelledWhileOpening(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opened := camera.NewMockStream()
	provider := &camera.MockProvider{
		RequestAccessFunc: func(context.Context, camera.Config) (camera.Stream, error) {
			cancel()
			return opened, nil
		},
	}
	sess := NewCameraSession(provider, camera.DefaultConfig(), nil)

	if _, err := sess.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if opened.ActiveTracks() != 0 {
		t.Error("stream opened after cancellation should be stopped")
	}
}
