// Package overdue は貸出期間を超過した未返却貸出の定期レポートジョブを提供する。
// 未返却件数と延滞件数をメトリクスに反映し、延滞中の貸出をログに出力する。
package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/model"
)

// DefaultLoanPeriod はデフォルトの貸出期間（14日）。
const DefaultLoanPeriod = 14 * 24 * time.Hour

// CheckoutLister は未返却の貸出を取得するインターフェース。
// checkout.Ledgerが満たす。
type CheckoutLister interface {
	FindUnreturnedAll(ctx context.Context) ([]*model.Checkout, error)
}

// Report は1回の延滞チェックの結果。
type Report struct {
	Open    int
	Overdue []*model.Checkout
}

// Job は延滞チェックジョブ。
// 読み取りのみを行うため、何度実行しても状態は変わらない。
type Job struct {
	lister     CheckoutLister
	recorder   metrics.OverdueRecorder
	logger     *slog.Logger
	LoanPeriod time.Duration
	nowFn      func() time.Time
}

// NewJob は新しいJobを生成する。
// loanPeriodが0以下の場合はDefaultLoanPeriodを使用する。recorderはnilでもよい。
func NewJob(lister CheckoutLister, recorder metrics.OverdueRecorder, logger *slog.Logger, loanPeriod time.Duration) *Job {
	if loanPeriod <= 0 {
		loanPeriod = DefaultLoanPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		lister:     lister,
		recorder:   recorder,
		logger:     logger,
		LoanPeriod: loanPeriod,
		nowFn:      time.Now,
	}
}

// Run は未返却の貸出を集計し、延滞中のものを報告する。
// 貸出日時からLoanPeriodを超えた貸出を延滞とみなす。
func (j *Job) Run(ctx context.Context) (*Report, error) {
	start := j.nowFn()

	checkouts, err := j.lister.FindUnreturnedAll(ctx)
	if err != nil {
		j.logger.Error("延滞チェックの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("未返却の貸出の取得に失敗: %w", err)
	}

	report := &Report{Open: len(checkouts)}
	for _, c := range checkouts {
		if !IsOverdue(c, start, j.LoanPeriod) {
			continue
		}
		report.Overdue = append(report.Overdue, c)
		j.logger.Warn("延滞中の貸出があります",
			slog.String("checkout_id", c.ID),
			slog.String("book_id", c.BookID),
			slog.String("book_title", c.BookTitle),
			slog.String("user_id", c.UserID),
			slog.String("borrower_name", c.BorrowerName),
			slog.Time("checked_out_at", c.CheckedOutAt),
			slog.Int("days_overdue", daysOverdue(c, start, j.LoanPeriod)),
		)
	}

	if j.recorder != nil {
		j.recorder.SetOpenCheckouts(report.Open)
		j.recorder.SetOverdueCheckouts(len(report.Overdue))
	}

	j.logger.Info("延滞チェックが完了しました",
		slog.Int("open_count", report.Open),
		slog.Int("overdue_count", len(report.Overdue)),
		slog.Duration("loan_period", j.LoanPeriod),
		slog.Float64("duration_ms", float64(j.nowFn().Sub(start).Milliseconds())),
	)

	return report, nil
}

// IsOverdue は貸出が期限を過ぎているかを返す。返却済みの貸出は延滞にならない。
func IsOverdue(c *model.Checkout, now time.Time, loanPeriod time.Duration) bool {
	if c.IsReturned() {
		return false
	}
	return now.Sub(c.CheckedOutAt) > loanPeriod
}

func daysOverdue(c *model.Checkout, now time.Time, loanPeriod time.Duration) int {
	over := now.Sub(c.CheckedOutAt) - loanPeriod
	if over <= 0 {
		return 0
	}
	return int(over / (24 * time.Hour))
}
