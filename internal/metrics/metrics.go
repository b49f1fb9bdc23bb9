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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration()
	RecordLogin(success bool)
	RecordGameResult(gameType string, experience, score int64)
	RecordRankChange(from, to int)
	RecordSessionLogFailure()
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordUpstreamRequest(statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations    prometheus.Counter
	logins           *prometheus.CounterVec
	gamesPlayed      *prometheus.CounterVec
	experienceGained prometheus.Counter
	scoreGained      prometheus.Counter
	rankChanges      *prometheus.CounterVec
	sessionLogFail   prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpLatency      prometheus.Histogram
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinequiz_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinequiz_logins_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
		gamesPlayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinequiz_games_played_total",
			Help: "ゲーム種別ごとのプレイ結果反映数",
		}, []string{"game_type"}),
		experienceGained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinequiz_experience_gained_total",
			Help: "付与された経験値の合計",
		}),
		scoreGained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinequiz_score_gained_total",
			Help: "加算されたスコアの合計",
		}),
		rankChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinequiz_rank_changes_total",
			Help: "ランク変化の合計数（変化後ランク別）",
		}, []string{"direction", "to"}),
		sessionLogFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinequiz_session_log_fail_total",
			Help: "ゲームプレイ記録の書き込み失敗数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinequiz_http_requests_total",
			Help: "HTTPメソッドとステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinequiz_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinequiz_upstream_requests_total",
			Help: "映画メタデータAPIへのリクエスト数（ステータスコード別）",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinequiz_upstream_latency_seconds",
			Help:    "映画メタデータAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.gamesPlayed,
		c.experienceGained,
		c.scoreGained,
		c.rankChanges,
		c.sessionLogFail,
		c.httpRequests,
		c.httpLatency,
		c.upstreamRequests,
		c.upstreamLatency,
	)

	return c
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// OtherGameType は既知でないゲーム種別をまとめるラベル値。
const OtherGameType = "other"

// knownGameTypes はgame_typeラベルとしてそのまま使うゲーム種別。
// クライアントが送る値は任意の文字列のため、系列数はこの集合に限定する。
var knownGameTypes = map[string]struct{}{
	"quiz":        {},
	"trivia":      {},
	"guess_movie": {},
	"poster":      {},
	"cast":        {},
	"timeline":    {},
}

// gameTypeLabel はゲーム種別をラベル値に変換する。未知の値はOtherGameTypeになる。
func gameTypeLabel(gameType string) string {
	if _, ok := knownGameTypes[gameType]; ok {
		return gameType
	}
	return OtherGameType
}

// RecordGameResult はゲーム結果の反映を記録する。
func (c *Collector) RecordGameResult(gameType string, experience, score int64) {
	c.gamesPlayed.WithLabelValues(gameTypeLabel(gameType)).Inc()
	c.experienceGained.Add(float64(experience))
	c.scoreGained.Add(float64(score))
}

// RecordRankChange はランクの変化を記録する。
func (c *Collector) RecordRankChange(from, to int) {
	direction := "up"
	if to < from {
		direction = "down"
	}
	c.rankChanges.WithLabelValues(direction, strconv.Itoa(to)).Inc()
}

// RecordSessionLogFailure はゲームプレイ記録の書き込み失敗を記録する。
func (c *Collector) RecordSessionLogFailure() {
	c.sessionLogFail.Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordUpstreamRequest は映画メタデータAPIの呼び出し結果を記録する。
// 通信エラーの場合はstatusCodeに0を渡す。
func (c *Collector) RecordUpstreamRequest(statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordRegistration()                          {}
func (NopCollector) RecordLogin(bool)                             {}
func (NopCollector) RecordGameResult(string, int64, int64)        {}
func (NopCollector) RecordRankChange(int, int)                    {}
func (NopCollector) RecordSessionLogFailure()                     {}
func (NopCollector) RecordHTTPRequest(string, int, time.Duration) {}
func (NopCollector) RecordUpstreamRequest(int, time.Duration)     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
