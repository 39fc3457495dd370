// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// Redisのように期限切れを自動で消すストアでは削除件数は常に0になる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger は期限切れセッションを削除するインターフェース。
// auth.SessionManagerが実装する。
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionCleanupJob は期限切れセッションの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type SessionCleanupJob struct {
	purger Purger
	logger *slog.Logger
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(purger Purger, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		purger: purger,
		logger: logger,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。個々の実行失敗では停止しない。
// intervalが正でない場合は1回だけ実行して戻る。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.Run(ctx)

	if interval <= 0 {
		j.logger.Error("セッションクリーンアップの実行間隔が不正なため定期実行しません",
			slog.Duration("interval", interval),
		)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
