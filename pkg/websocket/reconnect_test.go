package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestReconnector_SucceedsAfterFailures(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
	r := NewReconnector(cfg, zaptest.NewLogger(t))

	attempts := 0
	connectFunc := func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial refused")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.Run(ctx, connectFunc)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestReconnector_ContextCancellation(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
	r := NewReconnector(cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	connectFunc := func(_ context.Context) error {
		attempts++
		if attempts >= 4 {
			cancel()
		}
		return errors.New("dial refused")
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, connectFunc)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reconnector did not stop after cancellation")
	}

	if attempts < 4 {
		t.Errorf("expected at least 4 attempts, got %d", attempts)
	}
}

func TestReconnector_ResetRestoresInitialDelay(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	r := NewReconnector(cfg, zaptest.NewLogger(t))

	// Burn a few attempts to grow the backoff, then reset.
	r.backoff.Duration()
	r.backoff.Duration()
	r.backoff.Duration()
	r.Reset()

	if got := r.backoff.Attempt(); got != 0 {
		t.Errorf("expected attempt counter 0 after reset, got %v", got)
	}
}
