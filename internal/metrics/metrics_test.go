package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
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
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}

// TestRecordHTTPStatus_LabelsByCode はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	mf := findMetricFamily(t, reg, "taskman_http_responses_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "status_code" {
				got[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if got["200"] != 2 {
		t.Errorf("status 200 = %v, want 2", got["200"])
	}
	if got["401"] != 1 {
		t.Errorf("status 401 = %v, want 1", got["401"])
	}
}

// TestRecordAuthFailure_LabelsByReason は認証失敗が理由別にカウントされることを検証する。
func TestRecordAuthFailure_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthFailure(AuthFailureRevokedToken)
	c.RecordAuthFailure(AuthFailureRevokedToken)
	c.RecordAuthFailure(AuthFailureMissingToken)

	mf := findMetricFamily(t, reg, "taskman_auth_failures_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		reason := m.GetLabel()[0].GetValue()
		want := 1.0
		if reason == AuthFailureRevokedToken {
			want = 2
		}
		if v := m.GetCounter().GetValue(); v != want {
			t.Errorf("auth_failures{reason=%q} = %v, want %v", reason, v, want)
		}
	}
}

// TestTokenCounters はトークン関連カウンタが加算されることを検証する。
func TestTokenCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenIssued()
	c.RecordTokenIssued()
	c.RecordTokensRevoked(3)
	c.RecordTokensPurged(5)

	tests := []struct {
		name string
		want float64
	}{
		{"taskman_tokens_issued_total", 2},
		{"taskman_tokens_revoked_total", 3},
		{"taskman_tokens_purged_total", 5},
	}
	for _, tt := range tests {
		mf := findMetricFamily(t, reg, tt.name)
		if v := mf.GetMetric()[0].GetCounter().GetValue(); v != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, v, tt.want)
		}
	}
}

// TestRecordRequestLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(150 * time.Millisecond)

	mf := findMetricFamily(t, reg, "taskman_http_request_duration_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.14 || h.GetSampleSum() > 0.16 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

// TestHandler_ServesMetrics はHandlerがPrometheus形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTokenIssued()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "taskman_tokens_issued_total 1") {
		t.Errorf("response does not contain tokens_issued metric:\n%s", body)
	}
}
