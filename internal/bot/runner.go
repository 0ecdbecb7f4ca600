// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/relay"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/config"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/dashboard"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/utils/logger"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/utils/metrics"
)

const (
	statusLogInterval = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Runner собирает движок гонок, метрики и дашборд в один процесс
type Runner struct {
	logger    *logger.Logger
	config    *config.Config
	engine    *rpc.Engine
	metrics   *metrics.Collector
	dashboard *dashboard.Server
	shutdown  *ShutdownHandler
}

// NewRunner NewRunner: принимает cfg и logger; opts пробрасываются в движок
func NewRunner(cfg *config.Config, log *logger.Logger, opts ...rpc.Option) (*Runner, error) {
	collector := metrics.NewCollector()

	engineCfg := cfg.EngineConfig()
	if cfg.RelayEnabled() {
		r, err := newRelay(cfg, log)
		if err != nil {
			return nil, err
		}
		engineCfg.Relay = r
	}

	engineOpts := append([]rpc.Option{rpc.WithRecorder(collector)}, opts...)
	engine, err := rpc.NewEngine(engineCfg, log.Logger, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc engine: %w", err)
	}

	runner := &Runner{
		logger:   log,
		config:   cfg,
		engine:   engine,
		metrics:  collector,
		shutdown: NewShutdownHandler(log.Named("shutdown"), shutdownTimeout),
	}
	if cfg.DashboardListen != "" {
		runner.dashboard = dashboard.NewServer(cfg.DashboardListen, engine, collector.Registry(), log.Logger)
	}
	return runner, nil
}

func newRelay(cfg *config.Config, log *logger.Logger) (relay.Relay, error) {
	vendor, err := relay.ParseVendor(cfg.Relay.Vendor)
	if err != nil {
		return nil, err
	}
	r, err := relay.New(relay.Config{
		URL:        cfg.Relay.URL,
		APIKey:     cfg.Relay.APIKey,
		Vendor:     vendor,
		SlotsAhead: cfg.Relay.SlotsAhead,
		Logger:     log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure relay: %w", err)
	}
	log.Info("Private relay configured",
		zap.String("vendor", string(r.Vendor())),
		zap.Bool("prefer", cfg.Relay.Prefer))
	return r, nil
}

// Engine возвращает движок для встраивания (TUI, торговые модули)
func (r *Runner) Engine() *rpc.Engine {
	return r.engine
}

// Metrics возвращает коллектор метрик процесса
func (r *Runner) Metrics() *metrics.Collector {
	return r.metrics
}

// Run выполняет стартовый замер, запускает проверку здоровья и дашборд и
// блокируется до отмены ctx. Перед возвратом все сервисы закрываются.
func (r *Runner) Run(ctx context.Context) error {
	opLog := r.logger.WithOperation("run")
	r.shutdown.AddFunc("logger", r.logger.Sync)
	r.shutdown.AddFunc("rpc-engine", func() error {
		r.engine.Close()
		return nil
	})

	endProbe := r.logger.TrackPerformance("initial_probe")
	r.engine.RunHealthCheck(ctx)
	endProbe()

	r.warmUp(ctx, opLog)
	r.engine.StartHealthLoop(rpc.HealthLoopOptions{})

	serveErr := make(chan error, 1)
	if r.dashboard != nil {
		go func() { serveErr <- r.dashboard.Start() }()
		r.shutdown.AddFunc("dashboard", func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return r.dashboard.Shutdown(shutdownCtx)
		})
	}

	opLog.Info("🚀 RPC racer started",
		zap.Strings("endpoints", r.engine.ListEndpoints()),
		zap.String("active", r.engine.ActiveEndpoint()))

	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			opLog.Info("📡 Stop requested", zap.Error(ctx.Err()))
			break loop
		case err := <-serveErr:
			if err != nil {
				runErr = fmt.Errorf("dashboard stopped: %w", err)
				break loop
			}
		case <-ticker.C:
			r.logStatus(opLog)
		}
	}

	if err := r.shutdown.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// warmUp проверяет связность одним гоночным чтением слота
func (r *Runner) warmUp(ctx context.Context, log *zap.Logger) {
	slot, err := r.engine.GetSlotRaced(ctx, rpc.ReadOptions[uint64]{})
	if err != nil {
		log.Warn("Warm-up slot read failed", zap.Error(err))
		return
	}
	log.Info("Warm-up slot read", zap.Uint64("slot", slot))
}

func (r *Runner) logStatus(log *zap.Logger) {
	status := r.engine.GetStatus()

	healthy := 0
	for _, ep := range status.Endpoints {
		if ep.BackoffRemainingMs == 0 {
			healthy++
		}
	}

	fields := []zap.Field{
		zap.String("active", status.Active),
		zap.Int("endpoints", len(status.Endpoints)),
		zap.Int("healthy", healthy),
		zap.String("fastest", status.Summary.FastestEndpoint),
	}
	if status.Summary.FastestP50Ms != nil {
		fields = append(fields, zap.Float64("fastest_p50_ms", *status.Summary.FastestP50Ms))
	}
	log.Info("RPC status", fields...)
}
