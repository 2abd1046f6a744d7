// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 出席登録の結果ラベル
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "credential_invalid"
	OutcomeNotEnrolled = "enrollment_missing"
	OutcomeDuplicate   = "duplicate"
	OutcomeForbidden   = "forbidden"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordCredentialIssued()
	RecordRedemption(outcome string)
	RecordRedemptionLatency(duration time.Duration)
	RecordAuthFailure(reason string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	credentialsIssued prometheus.Counter
	redemptions       *prometheus.CounterVec
	redemptionLatency prometheus.Histogram
	authFailures      *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		credentialsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_credentials_issued_total",
			Help: "発行された出席トークンの合計数",
		}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_redemptions_total",
			Help: "結果別の出席登録試行数",
		}, []string{"outcome"}),
		redemptionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_redemption_latency_seconds",
			Help:    "出席登録トランザクションのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_auth_failures_total",
			Help: "理由別の認証失敗数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.credentialsIssued,
		c.redemptions,
		c.redemptionLatency,
		c.authFailures,
		c.httpStatus,
	)

	return c
}

// RecordCredentialIssued は出席トークンの発行を記録する。
func (c *Collector) RecordCredentialIssued() {
	c.credentialsIssued.Inc()
}

// RecordRedemption は出席登録の結果を記録する。
func (c *Collector) RecordRedemption(outcome string) {
	c.redemptions.WithLabelValues(outcome).Inc()
}

// RecordRedemptionLatency は出席登録のレイテンシを記録する。
func (c *Collector) RecordRedemptionLatency(duration time.Duration) {
	c.redemptionLatency.Observe(duration.Seconds())
}

// RecordAuthFailure は認証失敗を記録する。reasonはエラーコード。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordCredentialIssued()               {}
func (NopCollector) RecordRedemption(string)               {}
func (NopCollector) RecordRedemptionLatency(time.Duration) {}
func (NopCollector) RecordAuthFailure(string)              {}
func (NopCollector) RecordHTTPStatus(int)                  {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
