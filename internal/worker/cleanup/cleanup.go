// Package cleanup はゲームプレイ記録の自動削除ジョブを提供する。
// 保持期間（デフォルト365日）を超過したgame_sessionsを日次バッチで削除する。
// ユーザーの累計値はusersテーブルに保持されるため、記録を削除しても変化しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultRetentionDays はプレイ記録の既定の保持日数。
	DefaultRetentionDays = 365
	// DefaultInterval はジョブの既定の実行間隔。
	DefaultInterval = 24 * time.Hour
)

// SessionDeleter は指定時刻より古いプレイ記録を削除するインターフェース。
// repository.GameSessionRepositoryが満たす。
type SessionDeleter interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したプレイ記録の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions      SessionDeleter
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // プレイ記録の保持日数（デフォルト: 365）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:      sessions,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は保持期間を超過したプレイ記録を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	if j.RetentionDays <= 0 {
		return fmt.Errorf("invalid retention days: %d", j.RetentionDays)
	}
	before := j.now().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.sessions.DeleteOlderThan(ctx, before)
	if err != nil {
		j.logger.Error("プレイ記録クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("プレイ記録クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("プレイ記録クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("before", before),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以降intervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行の失敗はログに記録し、次の周期で再試行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
