// internal/blockchain/solbc/rpc/types.go
package rpc

import (
	"time"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/relay"
)

const (
	DefaultSendTimeout    = 4000 * time.Millisecond
	DefaultReadTimeout    = 2500 * time.Millisecond
	DefaultRelayTimeout   = 7000 * time.Millisecond
	DefaultProbeTimeout   = 1500 * time.Millisecond
	DefaultStaggerStep    = 35 * time.Millisecond
	DefaultJitter         = 15 * time.Millisecond
	DefaultInterWaveDelay = 120 * time.Millisecond
	DefaultMicroBatch     = 2
	DefaultReadRetries    = 2
	DefaultHealthInterval = 3000 * time.Millisecond

	// ReasonHealthLoop помечает ротации, выполненные фоновой проверкой здоровья
	ReasonHealthLoop = "health_loop"
)

// RaceClass разделяет гонки отправки и чтения
type RaceClass string

const (
	ClassSend RaceClass = "send"
	ClassRead RaceClass = "read"
)

// Strategy задаёт ширину волны для чтений
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyBalanced     Strategy = "balanced"
	StrategyAggressive   Strategy = "aggressive"
)

// BatchForStrategy возвращает ширину волны для стратегии
func BatchForStrategy(s Strategy) int {
	switch s {
	case StrategyConservative:
		return 1
	case StrategyAggressive:
		return 3
	default:
		return 2
	}
}

// Config содержит параметры движка гонок
type Config struct {
	Endpoints   []string
	FallbackURL string

	SendTimeout  time.Duration
	ReadTimeout  time.Duration
	RelayTimeout time.Duration
	ProbeTimeout time.Duration

	StaggerStep    time.Duration
	Jitter         time.Duration
	InterWaveDelay time.Duration

	MicroBatch     int
	ReadRetries    int
	HealthInterval time.Duration

	// MaxPerSecond ограничивает частоту запросов к одному узлу, 0 отключает лимит
	MaxPerSecond float64

	// Relay опционален; nil означает отсутствие приватного канала
	Relay       relay.Relay
	RelayPrefer bool
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию
func DefaultConfig() Config {
	return Config{
		SendTimeout:    DefaultSendTimeout,
		ReadTimeout:    DefaultReadTimeout,
		RelayTimeout:   DefaultRelayTimeout,
		ProbeTimeout:   DefaultProbeTimeout,
		StaggerStep:    DefaultStaggerStep,
		Jitter:         DefaultJitter,
		InterWaveDelay: DefaultInterWaveDelay,
		MicroBatch:     DefaultMicroBatch,
		ReadRetries:    DefaultReadRetries,
		HealthInterval: DefaultHealthInterval,
	}
}

// withDefaults заполняет нулевые поля значениями по умолчанию.
// Stagger, jitter и межволновая пауза могут быть нулевыми намеренно, поэтому
// заменяются только отрицательные значения.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = d.RelayTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.StaggerStep < 0 {
		c.StaggerStep = d.StaggerStep
	}
	if c.Jitter < 0 {
		c.Jitter = d.Jitter
	}
	if c.InterWaveDelay < 0 {
		c.InterWaveDelay = d.InterWaveDelay
	}
	if c.MicroBatch <= 0 {
		c.MicroBatch = d.MicroBatch
	}
	if c.ReadRetries < 0 {
		c.ReadRetries = d.ReadRetries
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	return c
}

// RaceMeta описывает последнюю завершённую гонку класса
type RaceMeta struct {
	Winner    string    `json:"winner"`
	Attempts  int       `json:"attempts"`
	LatencyMs float64   `json:"latencyMs"`
	At        time.Time `json:"at"`
}

// Rotation фиксирует смену активного узла
type Rotation struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Measurement результат одной пробы задержки
type Measurement struct {
	URL     string
	Latency time.Duration
	Err     error
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
