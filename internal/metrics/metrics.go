// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthRecorder はログイン結果を記録するインターフェース。
type AuthRecorder interface {
	RecordLogin(success bool)
}

// LedgerRecorder は貸出台帳の操作を記録するインターフェース。
type LedgerRecorder interface {
	RecordCheckout()
	RecordCheckoutConflict()
	RecordReturn()
}

// HTTPRecorder はHTTPレスポンスを記録するインターフェース。
type HTTPRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
}

// OverdueRecorder は延滞チェックの結果を記録するインターフェース。
type OverdueRecorder interface {
	SetOpenCheckouts(count int)
	SetOverdueCheckouts(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	checkouts        prometheus.Counter
	checkoutConflict prometheus.Counter
	returns          prometheus.Counter
	httpStatus       *prometheus.CounterVec
	httpLatency      prometheus.Histogram
	openCheckouts    prometheus.Gauge
	overdueCheckouts prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_checkouts_total",
			Help: "貸出成功の合計数",
		}),
		checkoutConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_checkout_conflicts_total",
			Help: "貸出中の蔵書への貸出要求の合計数",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_returns_total",
			Help: "返却成功の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookman_http_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		openCheckouts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookman_open_checkouts",
			Help: "未返却の貸出数",
		}),
		overdueCheckouts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookman_overdue_checkouts",
			Help: "貸出期間を超過した未返却の貸出数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.checkouts,
		c.checkoutConflict,
		c.returns,
		c.httpStatus,
		c.httpLatency,
		c.openCheckouts,
		c.overdueCheckouts,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordCheckout は貸出成功を記録する。
func (c *Collector) RecordCheckout() {
	c.checkouts.Inc()
}

// RecordCheckoutConflict は貸出中による貸出失敗を記録する。
func (c *Collector) RecordCheckoutConflict() {
	c.checkoutConflict.Inc()
}

// RecordReturn は返却成功を記録する。
func (c *Collector) RecordReturn() {
	c.returns.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// SetOpenCheckouts は未返却の貸出数を設定する。
func (c *Collector) SetOpenCheckouts(count int) {
	c.openCheckouts.Set(float64(count))
}

// SetOverdueCheckouts は延滞中の貸出数を設定する。
func (c *Collector) SetOverdueCheckouts(count int) {
	c.overdueCheckouts.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface checks
var (
	_ AuthRecorder    = (*Collector)(nil)
	_ LedgerRecorder  = (*Collector)(nil)
	_ HTTPRecorder    = (*Collector)(nil)
	_ OverdueRecorder = (*Collector)(nil)
)
