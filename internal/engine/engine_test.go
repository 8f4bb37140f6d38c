package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngineRunsMaxTicks(t *testing.T) {
	e := NewEngine(60, 0)
	e.ReportEvery = 20

	var ticks, reports []uint64
	e.OnTick = func(tick uint64) { ticks = append(ticks, tick) }
	e.OnReport = func(tick uint64) { reports = append(reports, tick) }

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, ticks, 60)
	assert.Equal(t, uint64(1), ticks[0])
	assert.Equal(t, uint64(60), e.Tick())
	assert.Equal(t, []uint64{20, 40, 60}, reports)
	assert.False(t, e.Running())
}

func TestEngineStop(t *testing.T) {
	e := NewEngine(0, 0)
	e.OnTick = func(tick uint64) {
		if tick == 7 {
			e.Stop()
		}
	}
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(7), e.Tick())
}

func TestEngineCancel(t *testing.T) {
	e := NewEngine(0, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	e.OnTick = func(tick uint64) {
		if tick == 3 {
			cancel()
		}
	}

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(3), e.Tick())
}

func TestEngineCancelledBeforeStart(t *testing.T) {
	e := NewEngine(10, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	assert.Zero(t, e.Tick())
}
