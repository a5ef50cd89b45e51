package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestRefreshCounters は更新成功・失敗カウンタが増加することを検証する。
func TestRefreshCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RefreshSucceeded()
	c.RefreshSucceeded()
	c.RefreshFailed()

	if got := counterValue(t, reg, "feedtree_refresh_success_total"); got != 2 {
		t.Errorf("refresh_success_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "feedtree_refresh_fail_total"); got != 1 {
		t.Errorf("refresh_fail_total = %v, want 1", got)
	}
}

// TestItemsReconciled は記事カウンタが挿入・更新別に加算されることを検証する。
func TestItemsReconciled(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ItemsReconciled(3, 1)
	c.ItemsReconciled(2, 0)

	if got := counterValue(t, reg, "feedtree_items_inserted_total"); got != 5 {
		t.Errorf("items_inserted_total = %v, want 5", got)
	}
	if got := counterValue(t, reg, "feedtree_items_updated_total"); got != 1 {
		t.Errorf("items_updated_total = %v, want 1", got)
	}
}

// TestFetchDuration はレイテンシヒストグラムに観測が記録されることを検証する。
func TestFetchDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.FetchDuration(0.25)
	c.FetchDuration(1.5)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == "feedtree_fetch_latency_seconds" {
			count := mf.GetMetric()[0].GetHistogram().GetSampleCount()
			if count != 2 {
				t.Errorf("sample count = %d, want 2", count)
			}
			return
		}
	}
	t.Error("feedtree_fetch_latency_seconds metric not found")
}

// TestHandler_ServesMetrics はPrometheusハンドラーがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RefreshSucceeded()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "feedtree_refresh_success_total") {
		t.Error("response should expose feedtree_refresh_success_total")
	}
}
