// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン失敗理由のラベル値
const (
	ReasonProvider = "provider"
	ReasonState    = "state"
	ReasonStore    = "store"
	ReasonSession  = "session"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginSuccess(newUser bool)
	RecordLoginFailure(reason string)
	RecordDuplicateKeyRecovered()
	RecordSessionResolve(valid bool)
	RecordLogout()
	RecordSessionsPurged(count int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess      *prometheus.CounterVec
	loginFailure      *prometheus.CounterVec
	duplicateRecovery prometheus.Counter
	sessionResolve    *prometheus.CounterVec
	logout            prometheus.Counter
	sessionsPurged    prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_login_success_total",
			Help: "ログイン成功の合計数（新規ユーザーか否か別）",
		}, []string{"new_user"}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_login_failure_total",
			Help: "ログイン失敗の合計数（原因別）",
		}, []string{"reason"}),
		duplicateRecovery: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_login_duplicate_recovered_total",
			Help: "初回ログインの競合で既存ユーザーを再取得した回数",
		}),
		sessionResolve: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_session_resolve_total",
			Help: "セッション解決の合計数（結果別）",
		}, []string{"result"}),
		logout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_logout_total",
			Help: "ログアウトの合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.duplicateRecovery,
		c.sessionResolve,
		c.logout,
		c.sessionsPurged,
		c.httpStatus,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(newUser bool) {
	c.loginSuccess.WithLabelValues(strconv.FormatBool(newUser)).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFailure.WithLabelValues(reason).Inc()
}

// RecordDuplicateKeyRecovered は一意制約違反からの回復を記録する。
func (c *Collector) RecordDuplicateKeyRecovered() {
	c.duplicateRecovery.Inc()
}

// RecordSessionResolve はセッション解決結果を記録する。
func (c *Collector) RecordSessionResolve(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.sessionResolve.WithLabelValues(result).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logout.Inc()
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordLoginSuccess(bool)      {}
func (NopCollector) RecordLoginFailure(string)    {}
func (NopCollector) RecordDuplicateKeyRecovered() {}
func (NopCollector) RecordSessionResolve(bool)    {}
func (NopCollector) RecordLogout()                {}
func (NopCollector) RecordSessionsPurged(int64)   {}
func (NopCollector) RecordHTTPStatus(int)         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
