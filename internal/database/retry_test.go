package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type fakePinger struct {
	failures int
	calls    int
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func testRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		Attempts:       attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestPingWithRetry_SucceedsAfterFailures(t *testing.T) {
	var buf bytes.Buffer
	p := &fakePinger{failures: 2}

	err := PingWithRetry(context.Background(), p, testRetryConfig(5), slog.New(slog.NewJSONHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"attempt":2`)) {
		t.Errorf("expected retry log for attempt 2, got %s", buf.String())
	}
}

func TestPingWithRetry_GivesUp(t *testing.T) {
	p := &fakePinger{failures: 10}

	err := PingWithRetry(context.Background(), p, testRetryConfig(3), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestPingWithRetry_ZeroAttemptsTriesOnce(t *testing.T) {
	p := &fakePinger{failures: 1}

	if err := PingWithRetry(context.Background(), p, testRetryConfig(0), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestPingWithRetry_StopsOnContextCancel(t *testing.T) {
	p := &fakePinger{failures: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{Attempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	err := PingWithRetry(ctx, p, cfg, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 500 * time.Millisecond, MaxBackoff: 8 * time.Second}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.backoff(tt.failures); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}
