// internal/blockchain/solbc/rpc/registry.go
package rpc

import (
	"strings"

	"go.uber.org/zap"
)

// ParseEndpoints разбирает список узлов через запятую; при пустом списке
// возвращает fallback (если он задан)
func ParseEndpoints(list, fallback string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if url := strings.TrimSpace(part); url != "" {
			out = append(out, url)
		}
	}
	if len(out) == 0 {
		if fb := strings.TrimSpace(fallback); fb != "" {
			out = append(out, fb)
		}
	}
	return out
}

// Initialize заменяет реестр узлов. Дубликаты и пустые строки отбрасываются.
func (e *Engine) Initialize(endpoints []string) error {
	seen := make(map[string]struct{}, len(endpoints))
	clean := make([]string, 0, len(endpoints))
	for _, raw := range endpoints {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		clean = append(clean, url)
	}
	if len(clean) == 0 {
		return ErrNoEndpointsConfigured
	}

	e.mu.Lock()
	e.endpoints = clean
	e.activeIdx = 0
	e.mu.Unlock()
	return nil
}

// AddEndpoint добавляет узел в конец реестра; повторное добавление игнорируется
func (e *Engine) AddEndpoint(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.endpoints {
		if existing == url {
			return false
		}
	}
	e.endpoints = append(e.endpoints, url)
	e.logger.Info("RPC endpoint added", zap.String("url", url))
	return true
}

// ListEndpoints возвращает копию упорядоченного реестра
func (e *Engine) ListEndpoints() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, len(e.endpoints))
	copy(out, e.endpoints)
	return out
}

// ActiveEndpoint возвращает текущий активный узел или пустую строку
func (e *Engine) ActiveEndpoint() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.endpoints) == 0 {
		return ""
	}
	return e.endpoints[e.activeIdx]
}

// RotateActive переключает активный узел на следующий по кругу
func (e *Engine) RotateActive(reason string) string {
	e.mu.Lock()
	if len(e.endpoints) == 0 {
		e.mu.Unlock()
		return ""
	}
	next := (e.activeIdx + 1) % len(e.endpoints)
	rot := e.setActiveLocked(next, reason)
	e.mu.Unlock()

	e.afterRotation(rot)
	return rot.To
}

// rotateTo делает активным конкретный узел; false, если он уже активен или неизвестен
func (e *Engine) rotateTo(url, reason string) bool {
	e.mu.Lock()
	idx := -1
	for i, existing := range e.endpoints {
		if existing == url {
			idx = i
			break
		}
	}
	if idx < 0 || idx == e.activeIdx {
		e.mu.Unlock()
		return false
	}
	rot := e.setActiveLocked(idx, reason)
	e.mu.Unlock()

	e.afterRotation(rot)
	return true
}

func (e *Engine) setActiveLocked(idx int, reason string) Rotation {
	rot := Rotation{
		From:   e.endpoints[e.activeIdx],
		To:     e.endpoints[idx],
		Reason: reason,
		At:     e.now(),
	}
	e.activeIdx = idx
	e.lastRotation = &rot
	return rot
}

func (e *Engine) afterRotation(rot Rotation) {
	e.recorder.ObserveRotation(rot.From, rot.To, rot.Reason)
	e.logger.Info("Active RPC endpoint rotated",
		zap.String("from", rot.From),
		zap.String("to", rot.To),
		zap.String("reason", rot.Reason))
}

// GetActiveConnection возвращает соединение с активным узлом
func (e *Engine) GetActiveConnection() (Conn, error) {
	url := e.ActiveEndpoint()
	if url == "" {
		return nil, ErrNoEndpointsConfigured
	}
	return e.dial(url), nil
}

// Reset очищает реестр, статистику и метаданные гонок, останавливая фоновую проверку
func (e *Engine) Reset() {
	e.StopHealthLoop()

	e.mu.Lock()
	e.endpoints = nil
	e.activeIdx = 0
	e.lastRotation = nil
	e.raceMeta = make(map[RaceClass]RaceMeta)
	e.mu.Unlock()

	e.health.reset()
}

func (e *Engine) recordRaceMeta(class RaceClass, meta RaceMeta) {
	e.mu.Lock()
	e.raceMeta[class] = meta
	e.mu.Unlock()
}
