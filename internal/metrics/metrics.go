// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 送信拒否の理由ラベル
const (
	RejectFormat    = "format"
	RejectRange     = "range"
	RejectRateLimit = "rate_limit"
	RejectCooldown  = "cooldown"
)

// 検証結果ラベル
const (
	VerifySuccess = "success"
	VerifyInvalid = "invalid"
	VerifyError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ジャニター、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordPasscodeIssued()
	RecordSendRejected(reason string)
	RecordVerify(result string)
	RecordDeliveryFailure()
	RecordJanitorPurged(count int64)
	RecordJanitorFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	passcodeIssued   prometheus.Counter
	sendRejected     *prometheus.CounterVec
	verify           *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	janitorPurged    prometheus.Counter
	janitorFailures  prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		passcodeIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projvault_passcode_issued_total",
			Help: "発行されたパスコードの合計数",
		}),
		sendRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projvault_send_rejected_total",
			Help: "拒否されたパスコード送信要求の数（理由別）",
		}, []string{"reason"}),
		verify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projvault_verify_total",
			Help: "パスコード検証の結果別の数",
		}, []string{"result"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projvault_delivery_failures_total",
			Help: "パスコードメール配信失敗の合計数",
		}),
		janitorPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projvault_janitor_purged_total",
			Help: "ジャニターが削除したパスコードの合計数",
		}),
		janitorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projvault_janitor_failures_total",
			Help: "ジャニター実行失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projvault_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.passcodeIssued,
		c.sendRejected,
		c.verify,
		c.deliveryFailures,
		c.janitorPurged,
		c.janitorFailures,
		c.httpStatus,
	)

	return c
}

// RecordPasscodeIssued はパスコード発行を記録する。
func (c *Collector) RecordPasscodeIssued() {
	c.passcodeIssued.Inc()
}

// RecordSendRejected は送信要求の拒否を記録する。
func (c *Collector) RecordSendRejected(reason string) {
	c.sendRejected.WithLabelValues(reason).Inc()
}

// RecordVerify は検証結果を記録する。
func (c *Collector) RecordVerify(result string) {
	c.verify.WithLabelValues(result).Inc()
}

// RecordDeliveryFailure は配信失敗を記録する。
func (c *Collector) RecordDeliveryFailure() {
	c.deliveryFailures.Inc()
}

// RecordJanitorPurged はジャニターの削除件数を記録する。
func (c *Collector) RecordJanitorPurged(count int64) {
	c.janitorPurged.Add(float64(count))
}

// RecordJanitorFailure はジャニターの実行失敗を記録する。
func (c *Collector) RecordJanitorFailure() {
	c.janitorFailures.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordPasscodeIssued()     {}
func (Nop) RecordSendRejected(string) {}
func (Nop) RecordVerify(string)       {}
func (Nop) RecordDeliveryFailure()    {}
func (Nop) RecordJanitorPurged(int64) {}
func (Nop) RecordJanitorFailure()     {}
func (Nop) RecordHTTPStatus(int)      {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
