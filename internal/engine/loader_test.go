package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine"
)

var errLoadBoom = errors.New("load boom")

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "engine-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := log.Close()
		if closeErr != nil {
			t.Logf("failed to close logger: %v", closeErr)
		}
	})

	return log
}

type stubEngine struct{}

func (s *stubEngine) Generate(_ context.Context, _ core.GenerateRequest) ([]float32, int, error) {
	return []float32{0}, 24000, nil
}

func TestEngineLoadsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	factory := func(_ context.Context, _ string) (core.GenerativeEngine, error) {
		calls.Add(1)

		return &stubEngine{}, nil
	}

	loader := engine.NewLoaderWithDevice(factory, engine.DeviceCPU, newTestLogger(t))
	require.False(t, loader.Loaded())

	const concurrency = 8

	var group sync.WaitGroup

	for range concurrency {
		group.Add(1)

		go func() {
			defer group.Done()

			loaded, loadErr := loader.Engine(context.Background())
			assert.NoError(t, loadErr)
			assert.NotNil(t, loaded)
		}()
	}

	group.Wait()

	assert.Equal(t, int64(1), calls.Load())
	assert.True(t, loader.Loaded())
}

func TestEngineFailureLeavesUnloadedAndRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	factory := func(_ context.Context, _ string) (core.GenerativeEngine, error) {
		if calls.Add(1) == 1 {
			return nil, errLoadBoom
		}

		return &stubEngine{}, nil
	}

	loader := engine.NewLoaderWithDevice(factory, engine.DeviceCPU, newTestLogger(t))

	_, firstErr := loader.Engine(context.Background())
	require.Error(t, firstErr)
	require.ErrorIs(t, firstErr, core.ErrEngine)
	assert.False(t, loader.Loaded())

	loaded, retryErr := loader.Engine(context.Background())
	require.NoError(t, retryErr)
	require.NotNil(t, loaded)
	assert.True(t, loader.Loaded())
	assert.Equal(t, int64(2), calls.Load())
}

func TestLoaderReportsDeviceAndMemory(t *testing.T) {
	t.Parallel()

	factory := func(_ context.Context, _ string) (core.GenerativeEngine, error) {
		return &stubEngine{}, nil
	}

	loader := engine.NewLoaderWithDevice(factory, engine.DeviceCPU, newTestLogger(t))
	assert.Equal(t, engine.DeviceCPU, loader.Device())
	assert.InDelta(t, 0.0, loader.MemoryUsedGB(), 0.0001)

	_, loadErr := loader.Engine(context.Background())
	require.NoError(t, loadErr)

	// CPU path never reports accelerator memory.
	assert.InDelta(t, 0.0, loader.MemoryUsedGB(), 0.0001)
}
