package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

type mockRecorder struct {
	purged []int
}

func (m *mockRecorder) RecordTokensPurged(count int) {
	m.purged = append(m.purged, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestTokenCleanupJob_Run_DeletesExpiredTokens(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	recorder := &mockRecorder{}

	job := NewTokenCleanupJob(mock, newTestLogger(&buf), recorder)
	job.now = func() time.Time { return fixed }

	n, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if n != 5 {
		t.Errorf("deleted = %d, want 5", n)
	}

	if !strings.Contains(mock.query, "DELETE FROM user_tokens") {
		t.Errorf("query = %q, want DELETE FROM user_tokens", mock.query)
	}
	if !strings.Contains(mock.query, "expires_at < $1") {
		t.Errorf("query = %q, want expires_at condition", mock.query)
	}
	if len(mock.args) != 1 || mock.args[0] != fixed {
		t.Errorf("args = %v, want [%v]", mock.args, fixed)
	}

	if len(recorder.purged) != 1 || recorder.purged[0] != 5 {
		t.Errorf("purged = %v, want [5]", recorder.purged)
	}
}

func TestTokenCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 3}}

	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v\nraw: %s", err, buf.String())
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("deleted_count = %v, want 3", entry["deleted_count"])
	}
}

func TestTokenCleanupJob_Run_NothingToDelete(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}

	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)
	n, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
}

func TestTokenCleanupJob_Run_ExecError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: errors.New("connection refused")}
	recorder := &mockRecorder{}

	job := NewTokenCleanupJob(mock, newTestLogger(&buf), recorder)
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}

	if len(recorder.purged) != 0 {
		t.Errorf("purged = %v, want none on error", recorder.purged)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected error log, got %q", buf.String())
	}
}

func TestTokenCleanupJob_Run_RowsAffectedError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{err: errors.New("driver does not support")}}

	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestTokenCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 1}}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
}

func TestTokenCleanupJob_Start_NonPositiveIntervalUsesDefault(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Minute} {
		var buf bytes.Buffer
		mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
		job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			job.Start(ctx, interval)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Start(%v) did not return after context cancellation", interval)
		}

		if !strings.Contains(buf.String(), "デフォルト値を使用します") {
			t.Errorf("Start(%v): expected fallback warning in log, got %s", interval, buf.String())
		}
		if mock.calls != 1 {
			t.Errorf("Start(%v): calls = %d, want 1", interval, mock.calls)
		}
	}
}
