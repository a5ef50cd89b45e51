// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は更新処理のPrometheusメトリクスを収集する。
// refreshパッケージのRecorderインターフェースを実装する。
type Collector struct {
	refreshSuccess prometheus.Counter
	refreshFail    prometheus.Counter
	itemsInserted  prometheus.Counter
	itemsUpdated   prometheus.Counter
	fetchLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedtree_refresh_success_total",
			Help: "コレクション更新成功の合計数",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedtree_refresh_fail_total",
			Help: "コレクション更新失敗の合計数",
		}),
		itemsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedtree_items_inserted_total",
			Help: "挿入された記事の合計数",
		}),
		itemsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedtree_items_updated_total",
			Help: "上書き更新された記事の合計数",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedtree_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.refreshSuccess,
		c.refreshFail,
		c.itemsInserted,
		c.itemsUpdated,
		c.fetchLatency,
	)

	return c
}

// RefreshSucceeded はコレクション更新成功を記録する。
func (c *Collector) RefreshSucceeded() {
	c.refreshSuccess.Inc()
}

// RefreshFailed はコレクション更新失敗を記録する。
func (c *Collector) RefreshFailed() {
	c.refreshFail.Inc()
}

// ItemsReconciled は照合結果の記事数を記録する。
func (c *Collector) ItemsReconciled(inserted, updated int) {
	c.itemsInserted.Add(float64(inserted))
	c.itemsUpdated.Add(float64(updated))
}

// FetchDuration はフェッチのレイテンシを記録する。
func (c *Collector) FetchDuration(seconds float64) {
	c.fetchLatency.Observe(seconds)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
