package websocket

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type countingExpirer struct {
	calls   atomic.Int32
	maxIdle atomic.Int64
}

func (e *countingExpirer) ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	e.calls.Add(1)
	e.maxIdle.Store(int64(maxIdle))
	return 1, nil
}

func TestSessionCleanupRunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	expirer := &countingExpirer{}
	svc := NewSessionCleanupService(expirer, 10*time.Millisecond, 5*time.Minute, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for expirer.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if expirer.calls.Load() < 2 {
		t.Errorf("ExpireIdle called %d times, want at least 2", expirer.calls.Load())
	}
	if got := time.Duration(expirer.maxIdle.Load()); got != 5*time.Minute {
		t.Errorf("maxIdle = %v, want 5m", got)
	}
}

func TestSessionCleanupDefaults(t *testing.T) {
	svc := NewSessionCleanupService(&countingExpirer{}, 0, 0, zaptest.NewLogger(t))
	if svc.interval != defaultCleanupInterval {
		t.Errorf("interval = %v, want %v", svc.interval, defaultCleanupInterval)
	}
	if svc.maxIdle != defaultMaxIdle {
		t.Errorf("maxIdle = %v, want %v", svc.maxIdle, defaultMaxIdle)
	}
}
