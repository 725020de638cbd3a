// Package metrics 车队服务的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleetgazer"

// Manager 管理全部指标
type Manager struct {
	registry *prometheus.Registry

	fleetVehicles  prometheus.Gauge
	staleVehicles  prometheus.Gauge
	ingestEvents   *prometheus.CounterVec
	ingestQueueLen prometheus.Gauge
	ingestApply    prometheus.Histogram

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	predictionRequests *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec

	wsClients prometheus.Gauge
}

// NewManager 在给定 registry 上注册全部指标
func NewManager(registry *prometheus.Registry) *Manager {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	auto := promauto.With(registry)

	return &Manager{
		registry: registry,
		fleetVehicles: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "vehicles",
			Help:      "Number of vehicles currently held in the fleet store",
		}),
		staleVehicles: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "stale_vehicles",
			Help:      "Number of vehicles without a heartbeat inside the stale window",
		}),
		ingestEvents: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Ingested update events by source and result",
		}, []string{"source", "result"}),
		ingestQueueLen: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_length",
			Help:      "Pending mutations waiting for the fleet writer",
		}),
		ingestApply: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one mutation to the fleet store",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status_code"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		predictionRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "requests_total",
			Help:      "Prediction calls by kind and outcome",
		}, []string{"kind", "result"}),
		predictionDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "duration_seconds",
			Help:      "Prediction call latency by kind",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		wsClients: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

// 全局指标实例，使用独立 registry 避免默认 Go 指标
var global = NewManager(prometheus.NewRegistry())

// Registry 返回全局 registry
func Registry() *prometheus.Registry { return global.registry }

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(global.registry, promhttp.HandlerOpts{})
}

// SetFleetVehicles 更新车辆数量
func SetFleetVehicles(n int) { global.fleetVehicles.Set(float64(n)) }

// SetStaleVehicles 更新失联车辆数量
func SetStaleVehicles(n int) { global.staleVehicles.Set(float64(n)) }

// RecordIngest 记录一次摄取结果
func RecordIngest(source, result string) { global.ingestEvents.WithLabelValues(source, result).Inc() }

// SetIngestQueueLength 更新写队列长度
func SetIngestQueueLength(n int) { global.ingestQueueLen.Set(float64(n)) }

// ObserveIngestApply 记录单次写入耗时（秒）
func ObserveIngestApply(seconds float64) { global.ingestApply.Observe(seconds) }

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(route, method, statusCode string, seconds float64) {
	global.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	global.httpRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordPrediction 记录预测调用
func RecordPrediction(kind, result string, seconds float64) {
	global.predictionRequests.WithLabelValues(kind, result).Inc()
	global.predictionDuration.WithLabelValues(kind).Observe(seconds)
}

// SetWSClients 更新 WebSocket 客户端数量
func SetWSClients(n int) { global.wsClients.Set(float64(n)) }
