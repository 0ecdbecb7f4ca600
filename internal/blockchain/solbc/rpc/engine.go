// internal/blockchain/solbc/rpc/engine.go
package rpc

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Recorder принимает телеметрию движка (метрики Prometheus и т.п.)
type Recorder interface {
	ObserveAttempt(class, method, endpoint string, latency time.Duration, success bool)
	ObserveRace(class, method string, latency time.Duration, attempts int, success bool)
	ObserveRotation(from, to, reason string)
	ObserveEndpoint(endpoint string, ewma time.Duration, penalty float64, backedOff bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, string, time.Duration, bool) {}
func (nopRecorder) ObserveRace(string, string, time.Duration, int, bool)       {}
func (nopRecorder) ObserveRotation(string, string, string)                     {}
func (nopRecorder) ObserveEndpoint(string, time.Duration, float64, bool)       {}

// MeasureFunc измеряет задержку всех узлов; заменяется в тестах
type MeasureFunc func(ctx context.Context, urls []string) []Measurement

// Engine владеет реестром узлов, статистикой здоровья и фоновой проверкой.
// Один экземпляр на процесс; для тестов достаточно создать новый.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	health    *healthStore
	transport *transportPool
	dial      Dialer
	measure   MeasureFunc
	recorder  Recorder
	now       func() time.Time
	jitter    func(max time.Duration) time.Duration

	probes singleflight.Group

	mu           sync.RWMutex
	endpoints    []string
	activeIdx    int
	lastRotation *Rotation
	raceMeta     map[RaceClass]RaceMeta

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// Option настраивает Engine
type Option func(*Engine)

// WithDialer подменяет создание соединений
func WithDialer(d Dialer) Option {
	return func(e *Engine) { e.dial = d }
}

// WithMeasure подменяет функцию замера задержек
func WithMeasure(m MeasureFunc) Option {
	return func(e *Engine) { e.measure = m }
}

// WithClock подменяет источник времени для статистики здоровья
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder подключает приёмник метрик
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithJitter подменяет генератор случайной задержки
func WithJitter(j func(max time.Duration) time.Duration) Option {
	return func(e *Engine) { e.jitter = j }
}

// NewEngine создает движок и инициализирует реестр из cfg.Endpoints,
// либо из cfg.FallbackURL, если список пуст
func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:      cfg,
		logger:   logger.Named("rpc-engine"),
		now:      time.Now,
		recorder: nopRecorder{},
		jitter:   randomJitter,
		raceMeta: make(map[RaceClass]RaceMeta),
	}
	e.transport = newTransportPool(cfg.MaxPerSecond)
	e.dial = e.transport.dial
	e.measure = e.probeLatencies

	for _, opt := range opts {
		opt(e)
	}
	e.health = newHealthStore(e.now)

	endpoints := cfg.Endpoints
	if len(endpoints) == 0 && cfg.FallbackURL != "" {
		endpoints = []string{cfg.FallbackURL}
	}
	if err := e.Initialize(endpoints); err != nil {
		return nil, err
	}

	e.logger.Info("RPC engine initialized",
		zap.Int("endpoints", len(e.endpoints)),
		zap.Int("micro_batch", cfg.MicroBatch),
		zap.Bool("relay", cfg.Relay != nil))
	return e, nil
}

// Config возвращает действующую конфигурацию движка
func (e *Engine) Config() Config {
	return e.cfg
}

// Close останавливает фоновую проверку и освобождает соединения
func (e *Engine) Close() {
	e.StopHealthLoop()
	e.transport.closeIdle()
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}
