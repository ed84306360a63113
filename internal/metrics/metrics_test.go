package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名のメトリクスファミリーを取得する。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordLogin_LabelsByResult はログイン結果がラベル別に集計されることを検証する。
func TestRecordLogin_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordLogin(false)

	mf := findMetric(t, reg, "bookman_logins_total")
	got := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "result" {
				got[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if got["success"] != 1 {
		t.Errorf("success = %v, want 1", got["success"])
	}
	if got["failure"] != 2 {
		t.Errorf("failure = %v, want 2", got["failure"])
	}
}

// TestLedgerCounters は貸出・競合・返却のカウンタが増加することを検証する。
func TestLedgerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheckout()
	c.RecordCheckout()
	c.RecordCheckoutConflict()
	c.RecordReturn()

	tests := []struct {
		name string
		want float64
	}{
		{"bookman_checkouts_total", 2},
		{"bookman_checkout_conflicts_total", 1},
		{"bookman_returns_total", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val := findMetric(t, reg, tt.name).GetMetric()[0].GetCounter().GetValue()
			if val != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, val, tt.want)
			}
		})
	}
}

// TestRecordHTTPStatus_LabelsByCode はステータスコード別に集計されることを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)
	c.RecordHTTPStatus(409)

	mf := findMetric(t, reg, "bookman_http_status_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		code := m.GetLabel()[0].GetValue()
		val := m.GetCounter().GetValue()
		if code == "409" && val != 2 {
			t.Errorf("409 count = %v, want 2", val)
		}
	}
}

// TestRecordHTTPLatency_ObservesHistogram はレイテンシが記録されることを検証する。
func TestRecordHTTPLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPLatency(150 * time.Millisecond)

	h := findMetric(t, reg, "bookman_http_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
}

// TestGauges_SetValues は未返却数と延滞数のゲージが上書きされることを検証する。
func TestGauges_SetValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetOpenCheckouts(5)
	c.SetOpenCheckouts(3)
	c.SetOverdueCheckouts(1)

	if v := findMetric(t, reg, "bookman_open_checkouts").GetMetric()[0].GetGauge().GetValue(); v != 3 {
		t.Errorf("open checkouts = %v, want 3", v)
	}
	if v := findMetric(t, reg, "bookman_overdue_checkouts").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("overdue checkouts = %v, want 1", v)
	}
}
