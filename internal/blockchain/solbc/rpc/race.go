// internal/blockchain/solbc/rpc/race.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallFunc выполняет одну попытку против конкретного узла
type CallFunc[T any] func(ctx context.Context, url string) (T, error)

// RaceRequest параметры одной гонки
type RaceRequest[T any] struct {
	Class  RaceClass
	Method string
	// Endpoints уже ранжированный план; если пуст, план строится через PlanOrder
	Endpoints  []string
	Call       CallFunc[T]
	MicroBatch int
	// Timeout на одну попытку; по умолчанию берётся из конфигурации класса
	Timeout time.Duration
}

type attemptResult[T any] struct {
	url     string
	value   T
	err     error
	latency time.Duration
	fired   bool
}

// Race запускает попытки волнами по MicroBatch узлов со ступенчатым стартом.
// Побеждает первая успешная попытка; проигравшие не отменяются и лишь
// обновляют статистику узлов. Отмена ctx прекращает ожидание и запуск новых попыток.
func Race[T any](ctx context.Context, e *Engine, req RaceRequest[T]) (T, error) {
	var zero T
	if req.Call == nil {
		return zero, fmt.Errorf("race %s: call is nil", req.Method)
	}

	order := req.Endpoints
	if len(order) == 0 {
		endpoints := e.ListEndpoints()
		if len(endpoints) == 0 {
			return zero, ErrNoEndpointsConfigured
		}
		order = e.PlanOrder(ctx, endpoints)
	}

	batch := req.MicroBatch
	if batch <= 0 {
		batch = e.cfg.MicroBatch
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.ReadTimeout
		if req.Class == ClassSend {
			timeout = e.cfg.SendTimeout
		}
	}

	logger := e.logger.With(
		zap.String("race_id", uuid.NewString()),
		zap.String("class", string(req.Class)),
		zap.String("method", req.Method))

	start := time.Now()
	attempts := 0
	var lastErr error
	var lastSource string

	waves := splitWaves(order, batch)
	for wi, wave := range waves {
		results := make(chan attemptResult[T], len(wave))
		for i, url := range wave {
			delay := time.Duration(i)*e.cfg.StaggerStep + e.jitter(e.cfg.Jitter)
			attempts++
			go runAttempt(ctx, e, req, url, delay, timeout, results)
		}

		for pending := len(wave); pending > 0; pending-- {
			select {
			case r := <-results:
				if !r.fired {
					continue
				}
				if r.err == nil {
					elapsed := time.Since(start)
					e.finishRace(req.Class, req.Method, r.url, elapsed, attempts, true)
					logger.Debug("Race won",
						zap.String("winner", r.url),
						zap.Int("wave", wi+1),
						zap.Int("attempts", attempts),
						zap.Duration("elapsed", elapsed))
					return r.value, nil
				}
				lastErr = r.err
				lastSource = r.url
			case <-ctx.Done():
				logger.Debug("Race abandoned by caller", zap.Error(ctx.Err()))
				return zero, fmt.Errorf("%s race abandoned: %w", req.Method, ctx.Err())
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s race abandoned: %w", req.Method, err)
		}

		logger.Debug("Wave failed",
			zap.Int("wave", wi+1),
			zap.Int("waves", len(waves)),
			zap.Error(lastErr))

		if wi < len(waves)-1 && e.cfg.InterWaveDelay > 0 {
			if err := sleepCtx(ctx, e.cfg.InterWaveDelay); err != nil {
				return zero, fmt.Errorf("%s race abandoned: %w", req.Method, err)
			}
		}
	}

	elapsed := time.Since(start)
	e.finishRace(req.Class, req.Method, "", elapsed, attempts, false)

	raceErr := &RaceError{
		Class:    req.Class,
		Method:   req.Method,
		Attempts: attempts,
		Source:   lastSource,
		Latency:  elapsed,
		Err:      lastErr,
	}
	logger.Warn("Race failed on all endpoints",
		zap.Int("attempts", attempts),
		zap.String("source", lastSource),
		zap.Error(lastErr))
	return zero, raceErr
}

// runAttempt ждёт свою ступень старта и выполняет вызов на контексте,
// отвязанном от отмены вызывающего, чтобы результат дошёл до статистики
func runAttempt[T any](ctx context.Context, e *Engine, req RaceRequest[T], url string, delay, timeout time.Duration, out chan<- attemptResult[T]) {
	if delay > 0 {
		if err := sleepCtx(ctx, delay); err != nil {
			out <- attemptResult[T]{url: url}
			return
		}
	} else if ctx.Err() != nil {
		out <- attemptResult[T]{url: url}
		return
	}

	started := time.Now()
	value, err := WithTimeout(context.WithoutCancel(ctx), timeout, func(actx context.Context) (T, error) {
		return req.Call(actx, url)
	})
	latency := time.Since(started)

	if err != nil {
		err = &AttemptError{Err: err, NodeURL: url, Method: req.Method}
		e.health.recordFailure(url, err)
	} else {
		e.health.recordSuccess(url, latency)
	}
	e.recorder.ObserveAttempt(string(req.Class), req.Method, url, latency, err == nil)

	out <- attemptResult[T]{url: url, value: value, err: err, latency: latency, fired: true}
}

func (e *Engine) finishRace(class RaceClass, method, winner string, elapsed time.Duration, attempts int, success bool) {
	if success {
		e.health.recordRaceWin(winner, elapsed, attempts)
	}
	e.recordRaceMeta(class, RaceMeta{
		Winner:    winner,
		Attempts:  attempts,
		LatencyMs: durationMs(elapsed),
		At:        e.now(),
	})
	e.recorder.ObserveRace(string(class), method, elapsed, attempts, success)
}

func splitWaves(order []string, batch int) [][]string {
	if batch <= 0 {
		batch = 1
	}
	waves := make([][]string, 0, (len(order)+batch-1)/batch)
	for i := 0; i < len(order); i += batch {
		end := i + batch
		if end > len(order) {
			end = len(order)
		}
		waves = append(waves, order[i:end])
	}
	return waves
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRaceError сообщает, что ошибка означает исчерпание всех волн
func IsRaceError(err error) bool {
	var raceErr *RaceError
	return errors.As(err, &raceErr)
}
