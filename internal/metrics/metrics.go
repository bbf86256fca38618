// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// PINフローとアイドルモニターから利用する。
type MetricsCollector interface {
	RecordPinAuthSuccess()
	RecordPinAuthFailure()
	RecordPinReset()
	RecordIdleTimeout()
	RecordForcedTimeout()
	RecordHeartbeat()
	RecordHeartbeatFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pinAuthSuccess prometheus.Counter
	pinAuthFail    prometheus.Counter
	pinResets      prometheus.Counter
	idleTimeouts   prometheus.Counter
	forcedTimeouts prometheus.Counter
	heartbeats     prometheus.Counter
	heartbeatFails prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pinAuthSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_pin_auth_success_total",
			Help: "PIN認証成功の合計数",
		}),
		pinAuthFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_pin_auth_fail_total",
			Help: "PIN認証失敗の合計数",
		}),
		pinResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_pin_reset_total",
			Help: "PINリセット完了の合計数",
		}),
		idleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_idle_timeout_total",
			Help: "無操作タイムアウトの合計数",
		}),
		forcedTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_forced_timeout_total",
			Help: "画面非表示による強制タイムアウトの合計数",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_heartbeat_total",
			Help: "セッション維持ハートビートの合計数",
		}),
		heartbeatFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posagent_heartbeat_fail_total",
			Help: "ハートビート失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "posagent_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.pinAuthSuccess,
		c.pinAuthFail,
		c.pinResets,
		c.idleTimeouts,
		c.forcedTimeouts,
		c.heartbeats,
		c.heartbeatFails,
		c.httpStatus,
	)

	return c
}

// RecordPinAuthSuccess はPIN認証成功を記録する。
func (c *Collector) RecordPinAuthSuccess() {
	c.pinAuthSuccess.Inc()
}

// RecordPinAuthFailure はPIN認証失敗を記録する。
func (c *Collector) RecordPinAuthFailure() {
	c.pinAuthFail.Inc()
}

// RecordPinReset はPINリセット完了を記録する。
func (c *Collector) RecordPinReset() {
	c.pinResets.Inc()
}

// RecordIdleTimeout は無操作タイムアウトを記録する。
func (c *Collector) RecordIdleTimeout() {
	c.idleTimeouts.Inc()
}

// RecordForcedTimeout は強制タイムアウトを記録する。
func (c *Collector) RecordForcedTimeout() {
	c.forcedTimeouts.Inc()
}

// RecordHeartbeat はハートビート送信を記録する。
func (c *Collector) RecordHeartbeat() {
	c.heartbeats.Inc()
}

// RecordHeartbeatFailure はハートビート失敗を記録する。
func (c *Collector) RecordHeartbeatFailure() {
	c.heartbeatFails.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
