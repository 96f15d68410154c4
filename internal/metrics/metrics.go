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
// APIクライアント、セッション、ルートガードから利用する。
type MetricsCollector interface {
	RecordAPIRequest(method string, statusCode int, duration time.Duration)
	RecordSessionTeardown()
	RecordAuthAttempt(operation string, success bool)
	RecordGuardDecision(decision string)
	SetAuthenticated(authenticated bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests      *prometheus.CounterVec
	apiLatency       prometheus.Histogram
	sessionTeardowns prometheus.Counter
	authAttempts     *prometheus.CounterVec
	guardDecisions   *prometheus.CounterVec
	authenticated    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookreview_api_requests_total",
			Help: "REST APIへのリクエスト数（メソッド・ステータスコード別。0はレスポンスなし）",
		}, []string{"method", "status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookreview_api_latency_seconds",
			Help:    "REST APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionTeardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookreview_session_teardowns_total",
			Help: "401応答によるセッション破棄の合計数",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookreview_auth_attempts_total",
			Help: "ログイン・新規登録の試行数（結果別）",
		}, []string{"operation", "result"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookreview_guard_decisions_total",
			Help: "ルートガードの判定数（状態別）",
		}, []string{"decision"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookreview_session_authenticated",
			Help: "セッションが認証済みなら1、未認証なら0",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.sessionTeardowns,
		c.authAttempts,
		c.guardDecisions,
		c.authenticated,
	)

	return c
}

// RecordAPIRequest はAPIリクエストの結果とレイテンシを記録する。
func (c *Collector) RecordAPIRequest(method string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.Observe(duration.Seconds())
}

// RecordSessionTeardown はセッション破棄を記録する。
func (c *Collector) RecordSessionTeardown() {
	c.sessionTeardowns.Inc()
}

// RecordAuthAttempt はログイン・新規登録の試行結果を記録する。
func (c *Collector) RecordAuthAttempt(operation string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttempts.WithLabelValues(operation, result).Inc()
}

// RecordGuardDecision はルートガードの判定を記録する。
func (c *Collector) RecordGuardDecision(decision string) {
	c.guardDecisions.WithLabelValues(decision).Inc()
}

// SetAuthenticated は現在の認証状態を記録する。
func (c *Collector) SetAuthenticated(authenticated bool) {
	if authenticated {
		c.authenticated.Set(1)
		return
	}
	c.authenticated.Set(0)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
