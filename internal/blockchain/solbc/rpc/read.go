// internal/blockchain/solbc/rpc/read.go
package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	readRetryInitial = 150 * time.Millisecond
	readRetryMax     = 2 * time.Second
)

// ReadOptions параметры гоночного чтения
type ReadOptions[T any] struct {
	MicroBatch int
	// Strategy используется, если MicroBatch не задан
	Strategy Strategy
	Timeout  time.Duration
	// Retries число повторов всей последовательности волн; nil означает значение из конфигурации
	Retries *int
	// Call подменяет вызов по умолчанию
	Call CallFunc[T]
}

// Retries вспомогательная функция для ReadOptions.Retries
func Retries(n int) *int {
	return &n
}

// raceRead выполняет гонку чтения с внешним повтором при временных ошибках
func raceRead[T any](ctx context.Context, e *Engine, method string, opts ReadOptions[T], def CallFunc[T]) (T, error) {
	call := opts.Call
	if call == nil {
		call = def
	}
	batch := opts.MicroBatch
	if batch <= 0 && opts.Strategy != "" {
		batch = BatchForStrategy(opts.Strategy)
	}
	retries := e.cfg.ReadRetries
	if opts.Retries != nil && *opts.Retries >= 0 {
		retries = *opts.Retries
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = readRetryInitial
	policy.Multiplier = 2
	policy.MaxInterval = readRetryMax
	policy.RandomizationFactor = 0.2

	pass := 0
	value, err := backoff.Retry(ctx, func() (T, error) {
		pass++
		v, err := Race(ctx, e, RaceRequest[T]{
			Class:      ClassRead,
			Method:     method,
			Call:       call,
			MicroBatch: batch,
			Timeout:    opts.Timeout,
		})
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsRetryableError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			e.logger.Debug("Read race failed with transient error, retrying",
				zap.String("method", method),
				zap.Int("pass", pass),
				zap.Duration("backoff", d),
				zap.Error(err))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return value, err
	}
	return value, nil
}

// GetLatestBlockhashRaced возвращает последний blockhash от самого быстрого узла
func (e *Engine) GetLatestBlockhashRaced(ctx context.Context, commitment solanarpc.CommitmentType, opts ReadOptions[*solanarpc.GetLatestBlockhashResult]) (*solanarpc.GetLatestBlockhashResult, error) {
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	return raceRead(ctx, e, "getLatestBlockhash", opts, func(ctx context.Context, url string) (*solanarpc.GetLatestBlockhashResult, error) {
		return e.dial(url).GetLatestBlockhash(ctx, commitment)
	})
}

// SimulateTransactionRaced симулирует транзакцию
func (e *Engine) SimulateTransactionRaced(ctx context.Context, tx *solana.Transaction, simOpts *solanarpc.SimulateTransactionOpts, opts ReadOptions[*solanarpc.SimulateTransactionResponse]) (*solanarpc.SimulateTransactionResponse, error) {
	if tx == nil && opts.Call == nil {
		return nil, ErrNilTransaction
	}
	if simOpts == nil {
		simOpts = &solanarpc.SimulateTransactionOpts{
			SigVerify:  false,
			Commitment: solanarpc.CommitmentProcessed,
		}
	}
	return raceRead(ctx, e, "simulateTransaction", opts, func(ctx context.Context, url string) (*solanarpc.SimulateTransactionResponse, error) {
		return e.dial(url).SimulateTransaction(ctx, tx, simOpts)
	})
}

// GetParsedTokenAccountsByOwnerRaced возвращает токен-аккаунты владельца в jsonParsed
func (e *Engine) GetParsedTokenAccountsByOwnerRaced(ctx context.Context, owner solana.PublicKey, conf *solanarpc.GetTokenAccountsConfig, opts ReadOptions[*solanarpc.GetTokenAccountsResult]) (*solanarpc.GetTokenAccountsResult, error) {
	if conf == nil {
		programID := solana.TokenProgramID
		conf = &solanarpc.GetTokenAccountsConfig{ProgramId: &programID}
	}
	accOpts := &solanarpc.GetTokenAccountsOpts{
		Commitment: solanarpc.CommitmentConfirmed,
		Encoding:   solana.EncodingJSONParsed,
	}
	return raceRead(ctx, e, "getTokenAccountsByOwner", opts, func(ctx context.Context, url string) (*solanarpc.GetTokenAccountsResult, error) {
		return e.dial(url).GetTokenAccountsByOwner(ctx, owner, conf, accOpts)
	})
}

// GetSignaturesForAddressRaced возвращает подписи транзакций по адресу
func (e *Engine) GetSignaturesForAddressRaced(ctx context.Context, address solana.PublicKey, sigOpts *solanarpc.GetSignaturesForAddressOpts, opts ReadOptions[[]*solanarpc.TransactionSignature]) ([]*solanarpc.TransactionSignature, error) {
	return raceRead(ctx, e, "getSignaturesForAddress", opts, func(ctx context.Context, url string) ([]*solanarpc.TransactionSignature, error) {
		return e.dial(url).GetSignaturesForAddress(ctx, address, sigOpts)
	})
}

// GetTransactionRaced возвращает транзакцию по подписи
func (e *Engine) GetTransactionRaced(ctx context.Context, sig solana.Signature, txOpts *solanarpc.GetTransactionOpts, opts ReadOptions[*solanarpc.GetTransactionResult]) (*solanarpc.GetTransactionResult, error) {
	if txOpts == nil {
		txOpts = &solanarpc.GetTransactionOpts{
			Commitment:                     solanarpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: solanarpc.NewTransactionVersion(0),
		}
	}
	return raceRead(ctx, e, "getTransaction", opts, func(ctx context.Context, url string) (*solanarpc.GetTransactionResult, error) {
		return e.dial(url).GetTransaction(ctx, sig, txOpts)
	})
}

// GetSlotRaced возвращает текущий слот (commitment processed)
func (e *Engine) GetSlotRaced(ctx context.Context, opts ReadOptions[uint64]) (uint64, error) {
	return raceRead(ctx, e, "getSlot", opts, func(ctx context.Context, url string) (uint64, error) {
		return e.dial(url).GetSlot(ctx, solanarpc.CommitmentProcessed)
	})
}

// GetBalance читает баланс через активный узел без гонки
func (e *Engine) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	conn, err := e.GetActiveConnection()
	if err != nil {
		return 0, err
	}
	balance, err := WithTimeout(ctx, e.cfg.ReadTimeout, func(ctx context.Context) (uint64, error) {
		return conn.GetBalance(ctx, account, solanarpc.CommitmentConfirmed)
	})
	if err != nil {
		return 0, &AttemptError{Err: err, NodeURL: conn.URL(), Method: "getBalance"}
	}
	return balance, nil
}

