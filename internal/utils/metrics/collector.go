// internal/utils/metrics/collector.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricType представляет тип метрики
type MetricType string

const (
	AttemptCounterType    MetricType = "attempt_counter"
	AttemptLatencyType    MetricType = "attempt_latency"
	RaceCounterType       MetricType = "race_counter"
	RaceDurationType      MetricType = "race_duration"
	RaceAttemptsType      MetricType = "race_attempts"
	RotationCounterType   MetricType = "rotation_counter"
	EndpointLatencyType   MetricType = "endpoint_latency"
	EndpointPenaltyType   MetricType = "endpoint_penalty"
	EndpointBackedOffType MetricType = "endpoint_backed_off"
)

const namespace = "solana_rpc"

// Collector управляет набором метрик движка гонок.
// Каждый экземпляр регистрирует метрики в собственном реестре.
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptLatency  *prometheus.HistogramVec
	races           *prometheus.CounterVec
	raceDuration    *prometheus.HistogramVec
	raceAttempts    *prometheus.HistogramVec
	rotations       *prometheus.CounterVec
	endpointLatency *prometheus.GaugeVec
	endpointPenalty *prometheus.GaugeVec
	endpointBackoff *prometheus.GaugeVec
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	c.attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of single-endpoint attempts",
		},
		[]string{"class", "method", "endpoint", "status"},
	)
	c.attemptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_latency_seconds",
			Help:      "Single-endpoint attempt latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"class", "method", "endpoint"},
	)
	c.races = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "races_total",
			Help:      "Total number of races by outcome",
		},
		[]string{"class", "method", "status"},
	)
	c.raceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "race_duration_seconds",
			Help:      "Race duration from start to the first winner or total failure",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"class", "method"},
	)
	c.raceAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "race_attempts",
			Help:      "Attempts launched per race",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		},
		[]string{"class", "method"},
	)
	c.rotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "Active endpoint rotations",
		},
		[]string{"from", "to", "reason"},
	)
	c.endpointLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_latency_ewma_seconds",
			Help:      "Smoothed endpoint latency as seen by the health loop",
		},
		[]string{"endpoint"},
	)
	c.endpointPenalty = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_penalty",
			Help:      "Current endpoint penalty",
		},
		[]string{"endpoint"},
	)
	c.endpointBackoff = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_backed_off",
			Help:      "1 when the endpoint is inside its backoff window",
		},
		[]string{"endpoint"},
	)

	metricsMap := map[MetricType]prometheus.Collector{
		AttemptCounterType:    c.attempts,
		AttemptLatencyType:    c.attemptLatency,
		RaceCounterType:       c.races,
		RaceDurationType:      c.raceDuration,
		RaceAttemptsType:      c.raceAttempts,
		RotationCounterType:   c.rotations,
		EndpointLatencyType:   c.endpointLatency,
		EndpointPenaltyType:   c.endpointPenalty,
		EndpointBackedOffType: c.endpointBackoff,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry возвращает реестр для экспорта через promhttp
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}
