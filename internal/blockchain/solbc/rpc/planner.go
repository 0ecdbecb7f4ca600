// internal/blockchain/solbc/rpc/planner.go
package rpc

import (
	"context"
	"sort"
	"strings"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
)

// fallbackLatency используется, когда нет ни свежего замера, ни EWMA
const fallbackLatency = 9999 * time.Millisecond

const maxParallelProbes = 16

// probeLatencies замер по умолчанию: getSlot с commitment processed на каждом узле
func (e *Engine) probeLatencies(ctx context.Context, urls []string) []Measurement {
	results := make([]Measurement, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for i, url := range urls {
		g.Go(func() error {
			start := time.Now()
			_, err := WithTimeout(gctx, e.cfg.ProbeTimeout, func(pctx context.Context) (uint64, error) {
				return e.dial(url).GetSlot(pctx, solanarpc.CommitmentProcessed)
			})
			results[i] = Measurement{URL: url, Latency: time.Since(start), Err: err}
			// ошибка пробы не должна отменять соседние замеры
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// measureShared объединяет одновременные замеры одного и того же набора узлов
func (e *Engine) measureShared(ctx context.Context, urls []string) []Measurement {
	key := strings.Join(urls, ",")
	v, _, _ := e.probes.Do(key, func() (any, error) {
		return e.measure(context.WithoutCancel(ctx), urls), nil
	})
	ms, _ := v.([]Measurement)
	return ms
}

type candidate struct {
	url       string
	score     float64
	backedOff bool
}

// PlanOrder ранжирует узлы по задержке с учётом штрафа. Узлы в отсрочке
// исключаются, если только в отсрочке не находятся все узлы.
func (e *Engine) PlanOrder(ctx context.Context, endpoints []string) []string {
	if len(endpoints) == 0 {
		return nil
	}
	return e.rank(endpoints, e.measureShared(ctx, endpoints), false)
}

// rank упорядочивает узлы по score = latency × (1 + penalty).
// При healthyOnly в результат попадают только узлы с успешной пробой и без отсрочки.
func (e *Engine) rank(endpoints []string, ms []Measurement, healthyOnly bool) []string {
	measured := make(map[string]Measurement, len(ms))
	for _, m := range ms {
		measured[m.URL] = m
	}

	now := e.now()
	all := make([]candidate, 0, len(endpoints))
	eligible := make([]candidate, 0, len(endpoints))
	for _, url := range endpoints {
		stats := e.health.snapshot(url)
		m, ok := measured[url]
		probeOK := ok && m.Err == nil

		latency := fallbackLatency
		switch {
		case probeOK:
			latency = m.Latency
		case stats.EWMALatency != nil:
			latency = *stats.EWMALatency
		}

		c := candidate{
			url:       url,
			score:     float64(latency) * (1 + stats.Penalty),
			backedOff: stats.BackedOff(now),
		}
		if healthyOnly && !probeOK {
			continue
		}
		all = append(all, c)
		if !c.backedOff {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 && !healthyOnly {
		eligible = all
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].score < eligible[j].score
	})

	out := make([]string, len(eligible))
	for i, c := range eligible {
		out[i] = c.url
	}
	return out
}
