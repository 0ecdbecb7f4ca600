// internal/blockchain/solbc/rpc/status.go
package rpc

import "time"

// EndpointStatus состояние одного узла для дашборда
type EndpointStatus struct {
	URL                string     `json:"url"`
	Active             bool       `json:"active"`
	LatencyEWMAMs      *float64   `json:"latencyEwmaMs"`
	LastLatencyMs      *float64   `json:"lastLatencyMs"`
	Successes          int        `json:"successes"`
	Failures           int        `json:"failures"`
	Penalty            float64    `json:"penalty"`
	BackoffRemainingMs int64      `json:"backoffRemainingMs"`
	P50Ms              *float64   `json:"p50Ms"`
	P95Ms              *float64   `json:"p95Ms"`
	RaceWins           int        `json:"raceWins"`
	LastRaceLatencyMs  *float64   `json:"lastRaceLatencyMs"`
	LastRaceAttempts   int        `json:"lastRaceAttempts"`
	LastRaceAt         *time.Time `json:"lastRaceAt"`
	LastSuccessAt      *time.Time `json:"lastSuccessAt"`
	LastErrorAt        *time.Time `json:"lastErrorAt"`
	LastError          string     `json:"lastError,omitempty"`
}

// StatusSummary сводка по самому быстрому узлу
type StatusSummary struct {
	FastestEndpoint string    `json:"fastestEndpoint"`
	FastestP50Ms    *float64  `json:"fastestP50Ms"`
	FastestP95Ms    *float64  `json:"fastestP95Ms"`
	LastRotation    *Rotation `json:"lastRotation"`
}

// Status полный снимок состояния движка
type Status struct {
	Active       string           `json:"active"`
	Endpoints    []EndpointStatus `json:"endpoints"`
	Summary      StatusSummary    `json:"summary"`
	LastSendRace *RaceMeta        `json:"lastSendRace"`
	LastReadRace *RaceMeta        `json:"lastReadRace"`
}

// GetStatus возвращает снимок состояния без побочных эффектов.
// Порядок узлов совпадает с порядком реестра.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	endpoints := make([]string, len(e.endpoints))
	copy(endpoints, e.endpoints)
	active := ""
	if len(e.endpoints) > 0 {
		active = e.endpoints[e.activeIdx]
	}
	var lastRotation *Rotation
	if e.lastRotation != nil {
		rot := *e.lastRotation
		lastRotation = &rot
	}
	sendMeta, hasSend := e.raceMeta[ClassSend]
	readMeta, hasRead := e.raceMeta[ClassRead]
	e.mu.RUnlock()

	now := e.now()
	status := Status{
		Active:    active,
		Endpoints: make([]EndpointStatus, 0, len(endpoints)),
		Summary:   StatusSummary{LastRotation: lastRotation},
	}
	if hasSend {
		status.LastSendRace = &sendMeta
	}
	if hasRead {
		status.LastReadRace = &readMeta
	}

	var fastestP50 time.Duration
	for _, url := range endpoints {
		s := e.health.snapshot(url)
		es := EndpointStatus{
			URL:              url,
			Active:           url == active,
			LatencyEWMAMs:    msPtr(s.EWMALatency),
			LastLatencyMs:    msPtr(s.LastLatency),
			Successes:        s.Successes,
			Failures:         s.Failures,
			Penalty:          s.Penalty,
			RaceWins:         s.RaceWins,
			LastRaceAttempts: s.LastRaceAttempts,
			LastRaceAt:       timePtr(s.LastRaceAt),
			LastSuccessAt:    timePtr(s.LastSuccessAt),
			LastErrorAt:      timePtr(s.LastErrorAt),
			LastError:        s.LastError,
		}
		if s.RaceWins > 0 {
			v := durationMs(s.LastRaceLatency)
			es.LastRaceLatencyMs = &v
		}
		if s.BackedOff(now) {
			es.BackoffRemainingMs = s.BackoffUntil.Sub(now).Milliseconds()
		}

		p50, ok := s.Percentile(50)
		if ok {
			es.P50Ms = msPtr(&p50)
			p95, _ := s.Percentile(95)
			es.P95Ms = msPtr(&p95)

			if status.Summary.FastestEndpoint == "" || p50 < fastestP50 {
				fastestP50 = p50
				status.Summary.FastestEndpoint = url
				status.Summary.FastestP50Ms = es.P50Ms
				status.Summary.FastestP95Ms = es.P95Ms
			}
		}

		status.Endpoints = append(status.Endpoints, es)
	}
	return status
}

func msPtr(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := durationMs(*d)
	return &v
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
