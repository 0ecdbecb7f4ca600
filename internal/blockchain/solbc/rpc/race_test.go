package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRace_FastestInWaveWins(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B", "C"))

	got, err := Race(context.Background(), e, RaceRequest[string]{
		Class:      ClassRead,
		Method:     "test",
		MicroBatch: 3,
		Call: scripted(map[string]outcome{
			"A": {delay: 500 * time.Millisecond, value: "a"},
			"B": {delay: 50 * time.Millisecond, value: "b"},
			"C": {delay: 80 * time.Millisecond, value: "c"},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	meta := e.GetStatus().LastReadRace
	require.NotNil(t, meta)
	assert.Equal(t, "B", meta.Winner)
	assert.Equal(t, 3, meta.Attempts)
	assert.InDelta(t, 50, meta.LatencyMs, 40)
}

func TestRace_FailoverToSlowerEndpoint(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B"))

	got, err := Race(context.Background(), e, RaceRequest[string]{
		Class:      ClassRead,
		Method:     "test",
		MicroBatch: 2,
		Call: scripted(map[string]outcome{
			"A": {delay: 5 * time.Millisecond, err: errors.New("a failed")},
			"B": {delay: 15 * time.Millisecond, value: "b"},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	assert.Equal(t, 1, e.health.snapshot("A").Failures)
	assert.Equal(t, 1, e.health.snapshot("B").Successes)
	assert.Equal(t, 1, e.health.snapshot("B").RaceWins)
	assert.GreaterOrEqual(t, e.GetStatus().LastReadRace.Attempts, 2)
}

func TestRace_NextWaveAfterWaveFailure(t *testing.T) {
	cfg := testConfig("A", "B", "C")
	cfg.InterWaveDelay = 10 * time.Millisecond
	e := newTestEngine(t, cfg)

	got, err := Race(context.Background(), e, RaceRequest[string]{
		Class:      ClassRead,
		Method:     "test",
		MicroBatch: 2,
		Call: scripted(map[string]outcome{
			"A": {err: errors.New("a failed")},
			"B": {err: errors.New("b failed")},
			"C": {delay: time.Millisecond, value: "c"},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "c", got)
	assert.Equal(t, 3, e.GetStatus().LastReadRace.Attempts)
}

func TestRace_LaterWavesNotStartedAfterWin(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B", "C", "D"))

	var calls atomic.Int32
	_, err := Race(context.Background(), e, RaceRequest[string]{
		Class:      ClassRead,
		Method:     "test",
		MicroBatch: 2,
		Call: func(ctx context.Context, url string) (string, error) {
			calls.Add(1)
			return url, nil
		},
	})
	require.NoError(t, err)

	// проигравший из первой волны может ещё выполняться
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRace_AllEndpointsFail(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B"))

	_, err := Race(context.Background(), e, RaceRequest[string]{
		Class:      ClassRead,
		Method:     "getThing",
		MicroBatch: 1,
		Call: scripted(map[string]outcome{
			"A": {err: errors.New("a exploded")},
			"B": {delay: 5 * time.Millisecond, err: errors.New("b exploded")},
		}),
	})
	require.Error(t, err)

	var raceErr *RaceError
	require.ErrorAs(t, err, &raceErr)
	assert.GreaterOrEqual(t, raceErr.Attempts, 2)
	assert.Equal(t, "B", raceErr.Source)
	assert.Contains(t, err.Error(), "b exploded")

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, "B", attemptErr.NodeURL)

	meta := e.GetStatus().LastReadRace
	require.NotNil(t, meta)
	assert.Empty(t, meta.Winner)
}

func TestRace_AttemptTimeout(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	_, err := Race(context.Background(), e, RaceRequest[string]{
		Class:   ClassRead,
		Method:  "stall",
		Timeout: 20 * time.Millisecond,
		Call: func(ctx context.Context, url string) (string, error) {
			time.Sleep(200 * time.Millisecond)
			return "late", nil
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptTimeout)
	assert.Equal(t, 1, e.health.snapshot("A").Failures)
}

func TestRace_SingleEndpoint(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	got, err := Race(context.Background(), e, RaceRequest[int]{
		Class:  ClassRead,
		Method: "one",
		Call: func(context.Context, string) (int, error) {
			return 42, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, e.GetStatus().LastReadRace.Attempts)
}

func TestRace_CallerCancellation(t *testing.T) {
	cfg := testConfig("A", "B")
	cfg.StaggerStep = 200 * time.Millisecond
	e := newTestEngine(t, cfg)

	var started atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := Race(ctx, e, RaceRequest[string]{
		Class:      ClassRead,
		Method:     "slow",
		MicroBatch: 2,
		Call: func(ctx context.Context, url string) (string, error) {
			started.Add(1)
			time.Sleep(100 * time.Millisecond)
			return url, nil
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// B стоял в очереди со ступенью 200ms и не должен был стартовать
	time.Sleep(250 * time.Millisecond)
	assert.EqualValues(t, 1, started.Load())

	// A не отменяется и доходит до статистики
	assert.Eventually(t, func() bool {
		return e.health.snapshot("A").Successes == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRace_NoEndpoints(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))
	e.Reset()

	_, err := Race(context.Background(), e, RaceRequest[string]{
		Class:  ClassRead,
		Method: "none",
		Call:   func(context.Context, string) (string, error) { return "", nil },
	})
	assert.ErrorIs(t, err, ErrNoEndpointsConfigured)
}

func TestSplitWaves(t *testing.T) {
	assert.Equal(t, [][]string{{"A", "B"}, {"C"}}, splitWaves([]string{"A", "B", "C"}, 2))
	assert.Equal(t, [][]string{{"A"}, {"B"}}, splitWaves([]string{"A", "B"}, 0))
	assert.Empty(t, splitWaves(nil, 3))
}
