// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/relay"
	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
)

type RelayConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Vendor     string `mapstructure:"vendor"`
	Prefer     bool   `mapstructure:"prefer"`
	SlotsAhead uint64 `mapstructure:"slots_ahead"`
}

type Config struct {
	RPCList          []string    `mapstructure:"rpc_list"`
	RPCURL           string      `mapstructure:"rpc_url"`
	SendTimeoutMs    int         `mapstructure:"send_timeout_ms"`
	ReadTimeoutMs    int         `mapstructure:"read_timeout_ms"`
	RelayTimeoutMs   int         `mapstructure:"relay_timeout_ms"`
	ProbeTimeoutMs   int         `mapstructure:"probe_timeout_ms"`
	StaggerMs        int         `mapstructure:"stagger_ms"`
	JitterMs         int         `mapstructure:"jitter_ms"`
	InterWaveDelayMs int         `mapstructure:"inter_wave_delay_ms"`
	MicroBatch       int         `mapstructure:"micro_batch"`
	ReadRetries      int         `mapstructure:"read_retries"`
	HealthIntervalMs int         `mapstructure:"health_interval_ms"`
	RPCMaxPerSecond  float64     `mapstructure:"rpc_max_per_second"`
	Relay            RelayConfig `mapstructure:"relay"`
	DashboardListen  string      `mapstructure:"dashboard_listen"`
	DebugLogging     bool        `mapstructure:"debug_logging"`
	LogFile          string      `mapstructure:"log_file"`
}

const (
	EnvPrefix              = "SOLANA_BOT"
	DefaultDashboardListen = ":8089"
	DefaultLogFile         = "bot.log"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"rpc_list":            []string{},
		"rpc_url":             "",
		"send_timeout_ms":     rpc.DefaultSendTimeout.Milliseconds(),
		"read_timeout_ms":     rpc.DefaultReadTimeout.Milliseconds(),
		"relay_timeout_ms":    rpc.DefaultRelayTimeout.Milliseconds(),
		"probe_timeout_ms":    rpc.DefaultProbeTimeout.Milliseconds(),
		"stagger_ms":          rpc.DefaultStaggerStep.Milliseconds(),
		"jitter_ms":           rpc.DefaultJitter.Milliseconds(),
		"inter_wave_delay_ms": rpc.DefaultInterWaveDelay.Milliseconds(),
		"micro_batch":         rpc.DefaultMicroBatch,
		"read_retries":        rpc.DefaultReadRetries,
		"health_interval_ms":  rpc.DefaultHealthInterval.Milliseconds(),
		"rpc_max_per_second":  0.0,
		"relay.url":           "",
		"relay.api_key":       "",
		"relay.vendor":        string(relay.VendorAuto),
		"relay.prefer":        false,
		"relay.slots_ahead":   0,
		"dashboard_listen":    DefaultDashboardListen,
		"debug_logging":       false,
		"log_file":            DefaultLogFile,
	}
}

// LoadDotEnv подгружает переменные из .env файлов; отсутствующие файлы пропускаются
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig читает файл конфигурации (если путь задан) и переменные окружения
// с префиксом SOLANA_BOT. Окружение перекрывает значения из файла.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := bindEnvironment(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func bindEnvironment(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// без префикса тоже принимаем, как в .env примерах
	if err := v.BindEnv("rpc_list", EnvPrefix+"_RPC_LIST", "RPC_LIST"); err != nil {
		return err
	}
	return v.BindEnv("rpc_url", EnvPrefix+"_RPC_URL", "RPC_URL")
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	if envRPCList := v.GetString("rpc_list"); envRPCList != "" {
		cfg.RPCList = strings.Split(envRPCList, ",")
	}
	cfg.RPCList = cleanList(cfg.RPCList)
	cfg.RPCURL = strings.TrimSpace(cfg.RPCURL)
}

func cleanList(list []string) []string {
	var clean []string
	for _, item := range list {
		if s := strings.TrimSpace(item); s != "" {
			clean = append(clean, s)
		}
	}
	return clean
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 && cfg.RPCURL == "" {
		return fmt.Errorf("%w: rpc_list is empty and rpc_url is not set", rpc.ErrNoEndpointsConfigured)
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.RPCURL != "" {
		if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
			return fmt.Errorf("invalid rpc_url: %w", err)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if _, err := relay.ParseVendor(cfg.Relay.Vendor); err != nil {
		return err
	}
	if cfg.Relay.URL != "" {
		if err := validateURLWithCache(cfg.Relay.URL, "http"); err != nil {
			return fmt.Errorf("invalid relay url: %w", err)
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.SendTimeoutMs <= 0 {
		return errors.New("invalid send_timeout_ms")
	}
	if cfg.ReadTimeoutMs <= 0 {
		return errors.New("invalid read_timeout_ms")
	}
	if cfg.RelayTimeoutMs <= 0 {
		return errors.New("invalid relay_timeout_ms")
	}
	if cfg.ProbeTimeoutMs <= 0 {
		return errors.New("invalid probe_timeout_ms")
	}
	if cfg.HealthIntervalMs <= 0 {
		return errors.New("invalid health_interval_ms")
	}
	if cfg.StaggerMs < 0 || cfg.JitterMs < 0 || cfg.InterWaveDelayMs < 0 {
		return errors.New("stagger_ms, jitter_ms and inter_wave_delay_ms must not be negative")
	}
	if cfg.MicroBatch < 1 {
		return errors.New("invalid micro_batch")
	}
	if cfg.ReadRetries < 0 {
		return errors.New("invalid read_retries count")
	}
	if cfg.RPCMaxPerSecond < 0 {
		return errors.New("invalid rpc_max_per_second")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// EngineConfig переводит настройки в конфигурацию движка; relay подключается отдельно
func (c *Config) EngineConfig() rpc.Config {
	return rpc.Config{
		Endpoints:      append([]string(nil), c.RPCList...),
		FallbackURL:    c.RPCURL,
		SendTimeout:    millis(c.SendTimeoutMs),
		ReadTimeout:    millis(c.ReadTimeoutMs),
		RelayTimeout:   millis(c.RelayTimeoutMs),
		ProbeTimeout:   millis(c.ProbeTimeoutMs),
		StaggerStep:    millis(c.StaggerMs),
		Jitter:         millis(c.JitterMs),
		InterWaveDelay: millis(c.InterWaveDelayMs),
		MicroBatch:     c.MicroBatch,
		ReadRetries:    c.ReadRetries,
		HealthInterval: millis(c.HealthIntervalMs),
		MaxPerSecond:   c.RPCMaxPerSecond,
		RelayPrefer:    c.Relay.Prefer,
	}
}

// RelayEnabled true, если указан адрес приватного канала
func (c *Config) RelayEnabled() bool {
	return strings.TrimSpace(c.Relay.URL) != ""
}
