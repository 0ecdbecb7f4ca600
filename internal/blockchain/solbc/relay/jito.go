// internal/blockchain/solbc/relay/jito.go
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	jitorpc "github.com/jito-labs/jito-go-rpc"
	"go.uber.org/zap"
)

const (
	defaultSlotsAhead = 2
	slotWaitBudget    = time.Second
	slotPollInterval  = 100 * time.Millisecond
	bundleMaxTries    = 3
	bundleRetryDelay  = 100 * time.Millisecond
)

// bundleSender отправляет бандл из base64 транзакций и возвращает сырой ответ
type bundleSender func(ctx context.Context, txs []string) (json.RawMessage, error)

// jitoRelay отправка одиночного бандла в Jito Block Engine с нацеливанием на слот
type jitoRelay struct {
	send       bundleSender
	slotsAhead uint64
	waitBudget time.Duration
	pollEvery  time.Duration
	logger     *zap.Logger
}

func newJito(url string, slotsAhead uint64, httpClient *http.Client, logger *zap.Logger) *jitoRelay {
	return newJitoWithSender(func(ctx context.Context, txs []string) (json.RawMessage, error) {
		// SendBundle не принимает контекст: срок ctx переносится в таймаут клиента
		client := jitorpc.NewJitoJsonRpcClient(url, "")
		client.Client = clientForContext(ctx, httpClient)
		return callWithContext(ctx, func() (json.RawMessage, error) {
			return client.SendBundle([][]string{txs})
		})
	}, slotsAhead, logger)
}

// clientForContext копия клиента с таймаутом не дольше оставшегося срока ctx
func clientForContext(ctx context.Context, base *http.Client) *http.Client {
	c := *base
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < time.Millisecond {
			remaining = time.Millisecond
		}
		if c.Timeout == 0 || remaining < c.Timeout {
			c.Timeout = remaining
		}
	}
	return &c
}

// callWithContext возвращается при отмене ctx; сам вызов ограничен таймаутом клиента
func callWithContext(ctx context.Context, call func() (json.RawMessage, error)) (json.RawMessage, error) {
	type result struct {
		raw json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := call()
		done <- result{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newJitoWithSender(send bundleSender, slotsAhead uint64, logger *zap.Logger) *jitoRelay {
	if slotsAhead == 0 {
		slotsAhead = defaultSlotsAhead
	}
	return &jitoRelay{
		send:       send,
		slotsAhead: slotsAhead,
		waitBudget: slotWaitBudget,
		pollEvery:  slotPollInterval,
		logger:     logger,
	}
}

func (j *jitoRelay) Vendor() Vendor { return VendorJito }

func (j *jitoRelay) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Signature == "" {
		return Result{}, fmt.Errorf("%w: transaction has no signature", ErrInvalidResponse)
	}

	if req.CurrentSlot != nil {
		j.waitForTargetSlot(ctx, req.CurrentSlot)
	}

	encoded := base64.StdEncoding.EncodeToString(req.Raw)
	bundleID, err := backoff.Retry(ctx, func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(err)
		}
		raw, err := j.send(ctx, []string{encoded})
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if err != nil {
			return "", err
		}
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", backoff.Permanent(fmt.Errorf("%w: bundle id: %v", ErrInvalidResponse, err))
		}
		return id, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(bundleRetryDelay)),
		backoff.WithMaxTries(bundleMaxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			j.logger.Debug("Retrying bundle submission", zap.Error(err), zap.Duration("backoff", d))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return Result{}, fmt.Errorf("%w: send bundle: %v", ErrRelay, err)
	}

	j.logger.Debug("Bundle accepted", zap.String("bundle_id", bundleID), zap.String("signature", req.Signature))
	return Result{
		Vendor:    VendorJito,
		Success:   bundleID != "",
		Signature: req.Signature,
		BundleID:  bundleID,
	}, nil
}

// waitForTargetSlot ждёт, пока сеть не окажется в одном слоте от цели.
// Весь цикл, включая чтения слота, ограничен waitBudget; ошибки чтения
// слота не прерывают отправку.
func (j *jitoRelay) waitForTargetSlot(ctx context.Context, currentSlot func(context.Context) (uint64, error)) {
	wctx, cancel := context.WithTimeout(ctx, j.waitBudget)
	defer cancel()

	start, err := currentSlot(wctx)
	if err != nil {
		j.logger.Debug("Slot lookup failed, submitting without targeting", zap.Error(err))
		return
	}
	target := start + j.slotsAhead

	ticker := time.NewTicker(j.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-wctx.Done():
			if ctx.Err() == nil {
				j.logger.Debug("Target slot not reached in time", zap.Uint64("target", target))
			}
			return
		case <-ticker.C:
			slot, err := currentSlot(wctx)
			if err != nil {
				continue
			}
			if slot+1 >= target {
				return
			}
		}
	}
}
