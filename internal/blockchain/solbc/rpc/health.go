// internal/blockchain/solbc/rpc/health.go
package rpc

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	ewmaAlpha      = 0.3
	recentCapacity = 20
	maxPenalty     = 10
	baseBackoff    = 250 * time.Millisecond
	maxBackoff     = 60 * time.Second
)

// EndpointStats снимок состояния здоровья узла
type EndpointStats struct {
	URL          string
	EWMALatency  *time.Duration
	LastLatency  *time.Duration
	Recent       []time.Duration
	Successes    int
	Failures     int
	Penalty      float64
	BackoffUntil time.Time

	LastSuccessAt time.Time
	LastErrorAt   time.Time
	LastError     string

	RaceWins         int
	LastRaceAt       time.Time
	LastRaceLatency  time.Duration
	LastRaceAttempts int
}

// Percentile возвращает перцентиль по последним замерам (nearest-rank)
func (s EndpointStats) Percentile(p float64) (time.Duration, bool) {
	return percentile(s.Recent, p)
}

// BackedOff сообщает, находится ли узел в окне отсрочки
func (s EndpointStats) BackedOff(now time.Time) bool {
	return !s.BackoffUntil.IsZero() && now.Before(s.BackoffUntil)
}

// latencyRing кольцевой буфер последних задержек
type latencyRing struct {
	buf  [recentCapacity]time.Duration
	head int
	size int
}

func (r *latencyRing) push(d time.Duration) {
	r.buf[r.head] = d
	r.head = (r.head + 1) % recentCapacity
	if r.size < recentCapacity {
		r.size++
	}
}

// values возвращает замеры от старых к новым
func (r *latencyRing) values() []time.Duration {
	out := make([]time.Duration, 0, r.size)
	start := (r.head - r.size + recentCapacity) % recentCapacity
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%recentCapacity])
	}
	return out
}

type endpointHealth struct {
	stats  EndpointStats
	recent latencyRing
}

// healthStore единственный владелец статистики узлов
type healthStore struct {
	mu    sync.Mutex
	stats map[string]*endpointHealth
	now   func() time.Time
}

func newHealthStore(now func() time.Time) *healthStore {
	return &healthStore{
		stats: make(map[string]*endpointHealth),
		now:   now,
	}
}

// entry лениво создаёт запись; вызывается под мьютексом
func (h *healthStore) entry(url string) *endpointHealth {
	e, ok := h.stats[url]
	if !ok {
		e = &endpointHealth{stats: EndpointStats{URL: url}}
		h.stats[url] = e
	}
	return e
}

func (e *endpointHealth) sample(latency time.Duration) {
	last := latency
	e.stats.LastLatency = &last
	e.recent.push(latency)

	if e.stats.EWMALatency == nil {
		ewma := latency
		e.stats.EWMALatency = &ewma
		return
	}
	ewma := time.Duration(ewmaAlpha*float64(latency) + (1-ewmaAlpha)*float64(*e.stats.EWMALatency))
	e.stats.EWMALatency = &ewma
}

func (h *healthStore) recordSuccess(url string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(url)
	e.stats.Successes++
	e.stats.Failures /= 2
	e.stats.Penalty /= 2
	e.stats.LastSuccessAt = h.now()
	e.stats.BackoffUntil = time.Time{}
	e.sample(latency)
}

func (h *healthStore) recordFailure(url string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(url)
	now := h.now()
	e.stats.Failures++
	e.stats.Penalty = math.Min(e.stats.Penalty+1, maxPenalty)
	e.stats.LastErrorAt = now
	if err != nil {
		e.stats.LastError = err.Error()
	}
	e.stats.BackoffUntil = now.Add(backoffFor(e.stats.Failures))
}

// recordProbeSuccess учитывает удачную пробу: замер идёт в EWMA, штраф и
// счётчик сбоев гаснут так же, как при успехе, отсрочка снимается.
// Successes считает только вызовы гонок и не меняется.
func (h *healthStore) recordProbeSuccess(url string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(url)
	e.stats.Failures /= 2
	e.stats.Penalty /= 2
	e.stats.LastSuccessAt = h.now()
	e.stats.BackoffUntil = time.Time{}
	e.sample(latency)
}

func (h *healthStore) recordRaceWin(url string, latency time.Duration, attempts int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(url)
	e.stats.RaceWins++
	e.stats.LastRaceAt = h.now()
	e.stats.LastRaceLatency = latency
	e.stats.LastRaceAttempts = attempts
}

// snapshot возвращает копию статистики; для неизвестного узла нулевую запись
func (h *healthStore) snapshot(url string) EndpointStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.stats[url]
	if !ok {
		return EndpointStats{URL: url}
	}
	out := e.stats
	if e.stats.EWMALatency != nil {
		v := *e.stats.EWMALatency
		out.EWMALatency = &v
	}
	if e.stats.LastLatency != nil {
		v := *e.stats.LastLatency
		out.LastLatency = &v
	}
	out.Recent = e.recent.values()
	return out
}

func (h *healthStore) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = make(map[string]*endpointHealth)
}

// backoffFor 250ms·2^(n-1), не больше минуты
func backoffFor(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	if failures > 16 {
		return maxBackoff
	}
	d := baseBackoff << (failures - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func percentile(samples []time.Duration, p float64) (time.Duration, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank], true
}
