package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/bot"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/config"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/ui"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/utils/logger"
)

const logBufferSize = 200

func main() {
	// Parse command line flags
	remote := flag.String("remote", "", "Dashboard base URL of a running bot (e.g. http://127.0.0.1:8089); empty runs the engine in-process")
	configPath := flag.String("config", "", "Path to config file for the in-process engine")
	envPath := flag.String("env", ".env", "Path to .env file")
	interval := flag.Duration("interval", time.Second, "Status poll interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var model *ui.Model
	runDone := make(chan error, 1)

	if *remote != "" {
		model = ui.NewModel(ui.NewRemoteSource(*remote), *interval)
		close(runDone)
	} else {
		logs := logger.NewLogBuffer(logBufferSize)
		runner := startEngine(ctx, *configPath, *envPath, logs, runDone)
		model = ui.NewModel(ui.EngineSource{Engine: runner.Engine()}, *interval)
		model.SetLogs(logs)
	}

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		log.Printf("TUI error: %v", err)
	}

	stop()
	if err := <-runDone; err != nil {
		log.Printf("engine stopped with error: %v", err)
	}
}

// startEngine поднимает движок в фоне; консольный вывод логов отключён, чтобы не ломать экран
func startEngine(ctx context.Context, configPath, envPath string, logs *logger.LogBuffer, done chan<- error) *bot.Runner {
	if err := config.LoadDotEnv(envPath); err != nil {
		log.Fatalf("failed to load env: %v", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	logCfg.Console = false
	logCfg.Buffer = logs
	appLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	runner, err := bot.NewRunner(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize engine", zap.Error(err))
	}

	go func() { done <- runner.Run(ctx) }()
	return runner
}
