// internal/utils/metrics/metrics.go
package metrics

import (
	"time"
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

// ObserveAttempt записывает результат одной попытки на одном узле
func (c *Collector) ObserveAttempt(class, method, endpoint string, latency time.Duration, success bool) {
	c.attempts.WithLabelValues(class, method, endpoint, status(success)).Inc()
	c.attemptLatency.WithLabelValues(class, method, endpoint).Observe(latency.Seconds())
}

// ObserveRace записывает итог гонки
func (c *Collector) ObserveRace(class, method string, latency time.Duration, attempts int, success bool) {
	c.races.WithLabelValues(class, method, status(success)).Inc()
	c.raceDuration.WithLabelValues(class, method).Observe(latency.Seconds())
	c.raceAttempts.WithLabelValues(class, method).Observe(float64(attempts))
}

// ObserveRotation считает смену активного узла
func (c *Collector) ObserveRotation(from, to, reason string) {
	c.rotations.WithLabelValues(from, to, reason).Inc()
}

// ObserveEndpoint обновляет состояние узла после проверки здоровья
func (c *Collector) ObserveEndpoint(endpoint string, ewma time.Duration, penalty float64, backedOff bool) {
	c.endpointLatency.WithLabelValues(endpoint).Set(ewma.Seconds())
	c.endpointPenalty.WithLabelValues(endpoint).Set(penalty)
	backoff := 0.0
	if backedOff {
		backoff = 1
	}
	c.endpointBackoff.WithLabelValues(endpoint).Set(backoff)
}
