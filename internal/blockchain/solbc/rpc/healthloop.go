// internal/blockchain/solbc/rpc/healthloop.go
package rpc

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthLoopOptions параметры фоновой проверки здоровья
type HealthLoopOptions struct {
	Interval time.Duration
	// Measure подменяет замер; по умолчанию используется замер движка
	Measure MeasureFunc
}

// StartHealthLoop запускает фоновую проверку. Одновременно работает только один
// экземпляр: повторный запуск ничего не делает и возвращает false.
func (e *Engine) StartHealthLoop(opts HealthLoopOptions) bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.loopCancel != nil {
		return false
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = e.cfg.HealthInterval
	}
	measure := opts.Measure
	if measure == nil {
		measure = e.measure
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.loopCancel = cancel
	e.loopDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.checkEndpoints(ctx, measure)
			}
		}
	}()

	e.logger.Info("Health loop started", zap.Duration("interval", interval))
	return true
}

// StopHealthLoop останавливает фоновую проверку; повторный вызов безопасен
func (e *Engine) StopHealthLoop() {
	e.loopMu.Lock()
	cancel, done := e.loopCancel, e.loopDone
	e.loopCancel, e.loopDone = nil, nil
	e.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("Health loop stopped")
}

// HealthLoopRunning сообщает, запущена ли фоновая проверка
func (e *Engine) HealthLoopRunning() bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	return e.loopCancel != nil
}

// RunHealthCheck выполняет один такт проверки синхронно
func (e *Engine) RunHealthCheck(ctx context.Context) {
	e.checkEndpoints(ctx, e.measure)
}

// checkEndpoints замеряет все узлы, обновляет статистику и при необходимости
// переключает активный узел на лучший здоровый
func (e *Engine) checkEndpoints(ctx context.Context, measure MeasureFunc) {
	endpoints := e.ListEndpoints()
	if len(endpoints) == 0 {
		return
	}

	ms := measure(ctx, endpoints)
	for _, m := range ms {
		if m.Err != nil {
			e.health.recordFailure(m.URL, m.Err)
			e.logger.Debug("Health probe failed", zap.String("url", m.URL), zap.Error(m.Err))
			continue
		}
		e.health.recordProbeSuccess(m.URL, m.Latency)
	}

	now := e.now()
	for _, url := range endpoints {
		stats := e.health.snapshot(url)
		var ewma time.Duration
		if stats.EWMALatency != nil {
			ewma = *stats.EWMALatency
		}
		e.recorder.ObserveEndpoint(url, ewma, stats.Penalty, stats.BackedOff(now))
	}

	ranked := e.rank(endpoints, ms, true)
	if len(ranked) == 0 {
		e.logger.Warn("No healthy RPC endpoints after health check", zap.Int("endpoints", len(endpoints)))
		return
	}
	e.rotateTo(ranked[0], ReasonHealthLoop)
}
