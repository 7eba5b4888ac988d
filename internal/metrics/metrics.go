// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GraphQL操作の結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// GraphQLリゾルバー、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordOperation(operation, outcome string)
	RecordOperationLatency(operation string, duration time.Duration)
	RecordItemCreated(itemType string)
	RecordHTTPStatus(statusCode int)
	RecordOrphansSwept(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	itemsCreated     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	orphansSwept     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souhyou_graphql_operations_total",
			Help: "GraphQL操作の実行数（操作名・結果別）",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "souhyou_graphql_operation_duration_seconds",
			Help:    "GraphQL操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		itemsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souhyou_items_created_total",
			Help: "作成されたアイテム数（種別別）",
		}, []string{"type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souhyou_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		orphansSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "souhyou_orphans_swept_total",
			Help: "孤立アイテムの削除数",
		}),
	}

	reg.MustRegister(
		c.operations,
		c.operationLatency,
		c.itemsCreated,
		c.httpStatus,
		c.orphansSwept,
	)

	return c
}

// RecordOperation はGraphQL操作の実行結果を記録する。
func (c *Collector) RecordOperation(operation, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordOperationLatency はGraphQL操作のレイテンシを記録する。
func (c *Collector) RecordOperationLatency(operation string, duration time.Duration) {
	c.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordItemCreated はアイテム作成を記録する。
func (c *Collector) RecordItemCreated(itemType string) {
	c.itemsCreated.WithLabelValues(itemType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordOrphansSwept は孤立アイテムの削除数を記録する。
func (c *Collector) RecordOrphansSwept(count int64) {
	c.orphansSwept.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordOperation(string, string)               {}
func (NopCollector) RecordOperationLatency(string, time.Duration) {}
func (NopCollector) RecordItemCreated(string)                     {}
func (NopCollector) RecordHTTPStatus(int)                         {}
func (NopCollector) RecordOrphansSwept(int64)                     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
