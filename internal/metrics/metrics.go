package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_requests_total",
		Help: "Total scoring requests by message type",
	}, []string{"type"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scout_request_duration_ms",
		Help:    "Scoring request duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"type", "backend"})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_errors_total",
		Help: "Total request-scoped errors by stage",
	}, []string{"stage"})
	BackendTier = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scout_backend_tier",
		Help: "Current backend tier (0=fallback, 1=single, 2=parallel)",
	})
	TierRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_tier_requests_total",
		Help: "Requests executed per backend tier",
	}, []string{"backend"})
	TierFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_tier_fallbacks_total",
		Help: "Per-request downgrades to a lower tier after a compute failure",
	})
	ParallelInitMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scout_parallel_init_ms",
		Help: "Wall time of the background parallel pool initialization",
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_cache_hits_total",
		Help: "Result cache hits per layer",
	}, []string{"layer"})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_cache_misses_total",
		Help: "Result cache misses across all layers",
	})
	CitiesScoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_cities_scored_total",
		Help: "Total candidate cities pushed through the scoring pipeline",
	})
	BBoxSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_bbox_skipped_total",
		Help: "Line distance calculations skipped by bounding-box prefilter",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(BackendTier)
	prometheus.MustRegister(TierRequestsTotal)
	prometheus.MustRegister(TierFallbacksTotal)
	prometheus.MustRegister(ParallelInitMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CitiesScoredTotal)
	prometheus.MustRegister(BBoxSkippedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
