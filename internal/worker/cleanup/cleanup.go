// Package cleanup は期限切れセッショントークンの自動削除ジョブを提供する。
// 有効期限を過ぎたトークンは認証に使えないため、user_tokensから定期的に削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は間隔が0以下で指定された場合の実行間隔。
const DefaultInterval = time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PurgeRecorder は削除件数の計測インターフェース。
type PurgeRecorder interface {
	RecordTokensPurged(count int)
}

// TokenCleanupJob は期限切れトークンの削除ジョブ。
// 冪等であり、複数のワーカーから同時に実行しても結果は変わらない。
type TokenCleanupJob struct {
	db       Executor
	logger   *slog.Logger
	recorder PurgeRecorder
	now      func() time.Time
}

// NewTokenCleanupJob は新しいTokenCleanupJobを生成する。
// recorderはnilでもよい。
func NewTokenCleanupJob(db Executor, logger *slog.Logger, recorder PurgeRecorder) *TokenCleanupJob {
	return &TokenCleanupJob{
		db:       db,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run は現在時刻より前に失効したトークンを削除し、削除件数を返す。
func (j *TokenCleanupJob) Run(ctx context.Context) (int64, error) {
	start := j.now()

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE expires_at < $1`,
		start,
	)
	if err != nil {
		j.logger.Error("トークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordTokensPurged(int(deletedCount))
	}

	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Start は指定間隔のティッカーでジョブを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
// intervalが0以下の場合はDefaultIntervalを使う。
func (j *TokenCleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("クリーンアップ間隔が不正なためデフォルト値を使用します",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultInterval),
		)
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("トークンクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	// エラーはRun内でログ出力済みのため、次のサイクルで再試行する
	j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("トークンクリーンアップを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
