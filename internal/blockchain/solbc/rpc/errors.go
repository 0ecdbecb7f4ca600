// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrNoEndpointsConfigured возникает, когда после разбора конфигурации не осталось ни одного RPC узла
	ErrNoEndpointsConfigured = errors.New("no RPC endpoints configured")

	// ErrAttemptTimeout возникает, когда отдельная попытка не уложилась в отведённое время
	ErrAttemptTimeout = errors.New("attempt timeout")

	// ErrRateLimit возникает при превышении лимита запросов
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrNilTransaction возникает при попытке отправить пустую транзакцию
	ErrNilTransaction = errors.New("transaction is nil")
)

// AttemptError представляет ошибку одной попытки гонки с контекстом узла
type AttemptError struct {
	Err     error
	NodeURL string
	Method  string
}

// Error реализует интерфейс error
func (e *AttemptError) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// RaceError возвращается, когда ни одна попытка гонки не завершилась успешно.
// Err содержит последнюю наблюдённую ошибку попытки.
type RaceError struct {
	Class    RaceClass
	Method   string
	Attempts int
	Source   string
	Latency  time.Duration
	// SendLatency заполняется только для отправки транзакций
	SendLatency time.Duration
	Err         error
}

func (e *RaceError) Error() string {
	prefix := fmt.Sprintf("all %s attempts failed", e.Method)
	if e.Class == ClassSend {
		prefix = "all broadcasts failed"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (attempts=%d)", prefix, e.Attempts)
	}
	return fmt.Sprintf("%s (attempts=%d, source=%s): %v", prefix, e.Attempts, e.Source, e.Err)
}

func (e *RaceError) Unwrap() error {
	return e.Err
}

// IsRetryableError определяет, является ли ошибка временной.
// Ошибки JSON-RPC узла классифицируются по коду, остальные по типу и тексту.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrAttemptTimeout),
		errors.Is(err, ErrRateLimit),
		errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled):
		return false
	}

	if nodeErr, ok := AnalyzeNodeError(err); ok {
		return nodeErr.Transient()
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code == http.StatusTooManyRequests || httpErr.Code >= http.StatusInternalServerError {
			return true
		}
	}

	// Проверяем текст ошибки для общих сетевых проблем
	errStr := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"econnreset",
	"eof",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
}
