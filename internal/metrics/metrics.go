// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// 外部APIクライアント、状態保持オブジェクト、セッションレジストリ、ワーカーから利用する。
type Recorder interface {
	RecordUpstreamCall(op string, statusCode int, duration time.Duration)
	RecordMutation(resource, op, outcome string)
	RecordHTTPStatus(statusCode int)
	SetActiveSessions(n int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "superkart_upstream_requests_total",
			Help: "外部API呼び出しの合計数（操作名・ステータス別、通信失敗は0）",
		}, []string{"op", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "superkart_upstream_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "superkart_mutations_total",
			Help: "カート・ウィッシュリスト・チェックアウトの変更操作の合計数",
		}, []string{"resource", "op", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "superkart_http_status_total",
			Help: "ストアフロントが返したHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "superkart_active_sessions",
			Help: "メモリ上に保持しているブラウザセッション数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "superkart_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamCalls,
		c.upstreamLatency,
		c.mutations,
		c.httpStatus,
		c.activeSessions,
		c.sessionsCleaned,
	)

	return c
}

// RecordUpstreamCall は外部API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamCall(op string, statusCode int, duration time.Duration) {
	c.upstreamCalls.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordMutation は変更操作の結果（success, failure, unauthenticated）を記録する。
func (c *Collector) RecordMutation(resource, op, outcome string) {
	c.mutations.WithLabelValues(resource, op, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetActiveSessions は保持中のセッション数を設定する。
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
