package overdue

import (
	"context"
	"log/slog"
	"time"
)

// Runner は定期実行されるジョブのインターフェース。
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// Scheduler はジョブを一定間隔で実行する。
type Scheduler struct {
	job    Runner
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(job Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		job:    job,
		logger: logger,
	}
}

// Start は起動直後に1回ジョブを実行し、その後interval間隔で実行する。
// コンテキストがキャンセルされるまでブロックする。
// ジョブの失敗はログに出力し、次の周期で再実行する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("延滞チェックスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("延滞チェックスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error("延滞チェックサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
