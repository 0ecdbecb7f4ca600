package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatus_Idempotent(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, testConfig("A", "B"), WithClock(clock.now))

	e.health.recordSuccess("A", 30*time.Millisecond)
	e.health.recordFailure("B", errors.New("down"))
	e.RotateActive("manual")

	first, err := json.Marshal(e.GetStatus())
	require.NoError(t, err)
	second, err := json.Marshal(e.GetStatus())
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestGetStatus_Content(t *testing.T) {
	clock := newManualClock()
	e := newTestEngine(t, testConfig("A", "B", "C"), WithClock(clock.now))

	for _, d := range []time.Duration{10, 20, 30, 40} {
		e.health.recordSuccess("A", d*time.Millisecond)
	}
	for _, d := range []time.Duration{5, 6, 7} {
		e.health.recordSuccess("B", d*time.Millisecond)
	}
	e.health.recordFailure("C", errors.New("connection refused"))

	clock.advance(100 * time.Millisecond)
	status := e.GetStatus()

	assert.Equal(t, "A", status.Active)
	require.Len(t, status.Endpoints, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{status.Endpoints[0].URL, status.Endpoints[1].URL, status.Endpoints[2].URL})
	assert.True(t, status.Endpoints[0].Active)

	a := status.Endpoints[0]
	assert.Equal(t, 4, a.Successes)
	require.NotNil(t, a.P50Ms)
	assert.Equal(t, 20.0, *a.P50Ms)
	require.NotNil(t, a.P95Ms)
	assert.Equal(t, 40.0, *a.P95Ms)

	c := status.Endpoints[2]
	assert.Equal(t, 1, c.Failures)
	assert.Equal(t, 1.0, c.Penalty)
	assert.EqualValues(t, 150, c.BackoffRemainingMs)
	assert.Nil(t, c.LatencyEWMAMs)
	assert.Nil(t, c.P50Ms)
	assert.Contains(t, c.LastError, "connection refused")

	assert.Equal(t, "B", status.Summary.FastestEndpoint)
	require.NotNil(t, status.Summary.FastestP50Ms)
	assert.Equal(t, 6.0, *status.Summary.FastestP50Ms)
	assert.Nil(t, status.LastSendRace)
	assert.Nil(t, status.LastReadRace)
}

func TestGetStatus_JSONShape(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	_, err := Race(context.Background(), e, RaceRequest[string]{
		Class:  ClassRead,
		Method: "test",
		Call:   func(context.Context, string) (string, error) { return "ok", nil },
	})
	require.NoError(t, err)

	raw, err := json.Marshal(e.GetStatus())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"active", "endpoints", "summary", "lastSendRace", "lastReadRace"} {
		assert.Contains(t, decoded, key)
	}

	endpoint := decoded["endpoints"].([]any)[0].(map[string]any)
	for _, key := range []string{"url", "latencyEwmaMs", "lastLatencyMs", "successes", "failures", "penalty", "backoffRemainingMs", "p50Ms", "p95Ms", "raceWins"} {
		assert.Contains(t, endpoint, key)
	}
	assert.Equal(t, "A", decoded["lastReadRace"].(map[string]any)["winner"])
}

func TestGetStatus_DoesNotTouchStats(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B"))

	_ = e.GetStatus()

	e.health.mu.Lock()
	defer e.health.mu.Unlock()
	assert.Empty(t, e.health.stats)
}
