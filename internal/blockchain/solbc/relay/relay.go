// internal/blockchain/solbc/relay/relay.go
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrRelay любая ошибка приватной отправки
	ErrRelay = errors.New("relay submission failed")
	// ErrInvalidResponse ответ без флага успеха или без подписи
	ErrInvalidResponse = errors.New("invalid relay response")
	// ErrUnknownVendor неизвестное значение vendor в конфигурации
	ErrUnknownVendor = errors.New("unknown relay vendor")
)

// Vendor закрытый набор протоколов приватной отправки
type Vendor string

const (
	VendorAuto      Vendor = "auto"
	VendorJito      Vendor = "jito"
	VendorBloxroute Vendor = "bloxroute"
	VendorFlashbots Vendor = "flashbots"
	VendorGeneric   Vendor = "generic"
)

// ParseVendor разбирает значение из конфигурации; пустая строка означает auto
func ParseVendor(s string) (Vendor, error) {
	switch v := Vendor(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VendorAuto, nil
	case VendorAuto, VendorJito, VendorBloxroute, VendorFlashbots, VendorGeneric:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVendor, s)
	}
}

// ResolveVendor определяет конкретный протокол. Для auto протокол выводится из URL.
func ResolveVendor(v Vendor, url string) Vendor {
	if v != VendorAuto && v != "" {
		return v
	}
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "jito"), strings.Contains(lower, "block-engine"):
		return VendorJito
	case strings.Contains(lower, "bloxroute"), strings.Contains(lower, "blxrbdn"):
		return VendorBloxroute
	case strings.Contains(lower, "flashbots"), strings.Contains(lower, "submit-bundle"):
		return VendorFlashbots
	default:
		return VendorGeneric
	}
}

// Request данные для одной приватной отправки
type Request struct {
	// Raw сериализованная подписанная транзакция
	Raw []byte
	// Signature первая подпись транзакции в base58, если известна
	Signature string
	// CurrentSlot возвращает текущий слот; нужен для нацеливания бандлов
	CurrentSlot func(ctx context.Context) (uint64, error)
}

// Result нормализованный ответ любого протокола
type Result struct {
	Vendor    Vendor
	Success   bool
	Signature string
	BundleID  string
}

// Accepted успешен только ответ с явным флагом успеха и подписью
func (r Result) Accepted() bool {
	return r.Success && r.Signature != ""
}

// Relay приватный канал отправки транзакций
type Relay interface {
	Vendor() Vendor
	Submit(ctx context.Context, req Request) (Result, error)
}

// Config параметры приватного канала
type Config struct {
	URL        string
	APIKey     string
	Vendor     Vendor
	SlotsAhead uint64
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New создает реализацию для протокола, выбранного один раз при конфигурации
func New(cfg Config) (Relay, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("relay url is empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	vendor := ResolveVendor(cfg.Vendor, cfg.URL)
	logger := cfg.Logger.Named("relay").With(zap.String("vendor", string(vendor)))

	switch vendor {
	case VendorJito:
		return newJito(cfg.URL, cfg.SlotsAhead, cfg.HTTPClient, logger), nil
	case VendorBloxroute:
		return newBloxroute(cfg.URL, cfg.APIKey, cfg.HTTPClient, logger), nil
	case VendorFlashbots:
		return newFlashbots(cfg.URL, cfg.APIKey, cfg.HTTPClient, logger), nil
	case VendorGeneric:
		return newGeneric(cfg.URL, cfg.APIKey, cfg.HTTPClient, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
}
