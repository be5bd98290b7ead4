package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pinger はDB疎通確認のインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RetryConfig は起動時のDB疎通確認の再試行設定。
type RetryConfig struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig はデフォルトの再試行設定を返す。
// 初回0.5秒、2倍ずつ増加、最大8秒で5回まで試行する。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// backoff は失敗回数に基づいて指数バックオフ遅延を計算する。
func (c RetryConfig) backoff(failures int) time.Duration {
	delay := c.InitialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return delay
}

// PingWithRetry は疎通確認が成功するまで指数バックオフで再試行する。
// Attempts回すべて失敗した場合は最後のエラーを返す。
func PingWithRetry(ctx context.Context, p Pinger, cfg RetryConfig, logger *slog.Logger) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = p.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := cfg.backoff(i)
		logger.Warn("データベースに接続できません。再試行します",
			slog.Int("attempt", i+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("database ping canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("database ping failed after %d attempts: %w", attempts, err)
}
