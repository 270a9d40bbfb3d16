package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/resilience"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestBreakerTransitions(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)}
	b := resilience.NewBreaker(resilience.Config{Target: "transitions", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute, Now: clk.now})
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))

	clk.t = clk.t.Add(time.Minute)
	require.True(t, b.Allow(ctx), "probe after cool-off")
	require.Equal(t, resilience.HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe at a time")

	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.DependencyTrips.WithLabelValues("transitions")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.DependencyTransitions.WithLabelValues("transitions", "half_open", "closed")))
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.DependencyState.WithLabelValues("transitions")))
}

func TestFailedProbeReopens(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := resilience.NewBreaker(resilience.Config{Target: "reopen", MinRequests: 1, OpenFor: time.Second, Now: clk.now})
	ctx := context.Background()

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())

	clk.t = clk.t.Add(2 * time.Second)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))
}

func TestDo(t *testing.T) {
	b := resilience.NewBreaker(resilience.Config{Target: "do", MinRequests: 1, OpenFor: time.Hour})
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return boom }), boom)

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.False(t, called)

	var nilBreaker *resilience.Breaker
	require.NoError(t, nilBreaker.Do(ctx, func(context.Context) error { return nil }))
}

func TestMostlyHealthyStaysClosed(t *testing.T) {
	b := resilience.NewBreaker(resilience.Config{Target: "healthy", MinRequests: 4, FailureRatio: 0.5})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		b.Report(ctx, i%4 != 0)
	}
	require.Equal(t, resilience.Closed, b.State())
}
