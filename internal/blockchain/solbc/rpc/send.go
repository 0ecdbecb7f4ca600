// internal/blockchain/solbc/rpc/send.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/relay"
)

// Transaction сериализуемая подписанная транзакция (*solana.Transaction подходит)
type Transaction interface {
	MarshalBinary() ([]byte, error)
}

// BroadcastFunc отправляет сырые байты транзакции на конкретный узел
type BroadcastFunc func(ctx context.Context, url string, raw []byte) (string, error)

// SendOptions параметры отправки транзакции
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment solanarpc.CommitmentType
	MaxRetries          *uint
	// UseRelay запрашивает приватную отправку перед публичной гонкой
	UseRelay   bool
	MicroBatch int
	Timeout    time.Duration
	// Broadcast подменяет вызов sendTransaction на узле
	Broadcast BroadcastFunc
}

// SendTransactionRaced отправляет транзакцию: сначала через приватный канал
// (если он настроен и запрошен), затем гонкой по публичным узлам.
// Возвращает подпись транзакции в base58.
func (e *Engine) SendTransactionRaced(ctx context.Context, tx Transaction, opts SendOptions) (string, error) {
	if tx == nil {
		return "", ErrNilTransaction
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	start := time.Now()

	if e.cfg.Relay != nil && (opts.UseRelay || e.cfg.RelayPrefer) {
		if sig, ok := e.submitViaRelay(ctx, raw, firstSignature(tx)); ok {
			return sig, nil
		}
	}

	broadcast := opts.Broadcast
	if broadcast == nil {
		txOpts := solanarpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: opts.PreflightCommitment,
			MaxRetries:          opts.MaxRetries,
		}
		broadcast = func(ctx context.Context, url string, raw []byte) (string, error) {
			sig, err := e.dial(url).SendRawTransaction(ctx, raw, txOpts)
			if err != nil {
				return "", err
			}
			return sig.String(), nil
		}
	}

	sig, err := Race(ctx, e, RaceRequest[string]{
		Class:  ClassSend,
		Method: "sendTransaction",
		Call: func(ctx context.Context, url string) (string, error) {
			return broadcast(ctx, url, raw)
		},
		MicroBatch: opts.MicroBatch,
		Timeout:    opts.Timeout,
	})
	if err != nil {
		var raceErr *RaceError
		if errors.As(err, &raceErr) {
			raceErr.SendLatency = time.Since(start)
		}
		if nodeErr, ok := AnalyzeNodeError(err); ok && nodeErr.SimulationFailed {
			e.logger.Warn("Transaction rejected by preflight simulation",
				zap.String("error", nodeErr.Summary()),
				zap.Strings("logs", nodeErr.Logs))
		}
		return "", err
	}
	return sig, nil
}

// submitViaRelay одна попытка приватной отправки. Любая ошибка или ответ без
// флага успеха и подписи логируется и приводит к публичной гонке.
func (e *Engine) submitViaRelay(ctx context.Context, raw []byte, signature string) (string, bool) {
	r := e.cfg.Relay
	logger := e.logger.With(zap.String("vendor", string(r.Vendor())))

	res, err := WithTimeout(ctx, e.cfg.RelayTimeout, func(rctx context.Context) (relay.Result, error) {
		return r.Submit(rctx, relay.Request{
			Raw:         raw,
			Signature:   signature,
			CurrentSlot: e.currentSlot,
		})
	})
	if err != nil {
		logger.Warn("Relay submission failed, falling back to public race", zap.Error(err))
		return "", false
	}
	if !res.Accepted() {
		logger.Warn("Relay response rejected, falling back to public race",
			zap.Error(relay.ErrInvalidResponse),
			zap.Bool("success", res.Success),
			zap.String("signature", res.Signature))
		return "", false
	}

	logger.Info("Transaction submitted via relay",
		zap.String("signature", res.Signature),
		zap.String("bundle_id", res.BundleID))
	return res.Signature, true
}

// currentSlot один замер слота у активного узла для нацеливания бандла.
// Это служебный запрос relay: он не участвует в гонках и статистике.
func (e *Engine) currentSlot(ctx context.Context) (uint64, error) {
	conn, err := e.GetActiveConnection()
	if err != nil {
		return 0, err
	}
	return WithTimeout(ctx, e.cfg.ProbeTimeout, func(sctx context.Context) (uint64, error) {
		return conn.GetSlot(sctx, solanarpc.CommitmentProcessed)
	})
}

func firstSignature(tx Transaction) string {
	st, ok := tx.(*solana.Transaction)
	if !ok || len(st.Signatures) == 0 {
		return ""
	}
	return st.Signatures[0].String()
}
