// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAuthFailure(reason string)
	RecordTokenIssued()
	RecordTokensRevoked(count int)
	RecordTokensPurged(count int)
}

// 認証失敗の理由ラベル
const (
	AuthFailureMissingToken = "missing_token"
	AuthFailureInvalidToken = "invalid_token"
	AuthFailureRevokedToken = "revoked_token"
	AuthFailureLookupError  = "lookup_error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	authFailures   *prometheus.CounterVec
	tokensIssued   prometheus.Counter
	tokensRevoked  prometheus.Counter
	tokensPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_auth_failures_total",
			Help: "理由別の認証失敗数",
		}, []string{"reason"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_tokens_issued_total",
			Help: "発行したセッショントークンの合計数",
		}),
		tokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_tokens_revoked_total",
			Help: "ログアウトで失効したセッショントークンの合計数",
		}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_tokens_purged_total",
			Help: "期限切れで削除したセッショントークンの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.authFailures,
		c.tokensIssued,
		c.tokensRevoked,
		c.tokensPurged,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAuthFailure は認証失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordTokensRevoked は失効したトークン数を記録する。
func (c *Collector) RecordTokensRevoked(count int) {
	c.tokensRevoked.Add(float64(count))
}

// RecordTokensPurged は期限切れで削除したトークン数を記録する。
func (c *Collector) RecordTokensPurged(count int) {
	c.tokensPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
