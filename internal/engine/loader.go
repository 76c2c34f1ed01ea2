// Package engine provides the lazy model loader and the subprocess-backed
// codec and generative engine implementations.
package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// Compute device identifiers.
const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

const (
	acceleratorProbe = "nvidia-smi"
	megabytesPerGB   = 1024.0
)

// Factory builds and warms a generative engine for the selected device.
// It is invoked at most once per successful load.
type Factory func(ctx context.Context, device string) (core.GenerativeEngine, error)

// Loader performs guarded one-time initialization of the generative
// engine. It has two states, Unloaded and Loaded; a load failure is
// returned to the triggering request and leaves the loader Unloaded so a
// later request may retry. There is no unload.
type Loader struct {
	factory Factory
	log     *logger.Logger

	mu       sync.Mutex
	engine   core.GenerativeEngine
	device   string
	memoryGB float64
	loadTime time.Duration
}

// NewLoader creates an Unloaded loader. The compute device is selected
// once, up front: accelerated when the accelerator probe is present, else
// CPU fallback.
func NewLoader(factory Factory, log *logger.Logger) *Loader {
	return NewLoaderWithDevice(factory, DetectDevice(), log)
}

// NewLoaderWithDevice creates a loader pinned to an explicit device. This
// constructor exists for tests; production callers use NewLoader.
func NewLoaderWithDevice(factory Factory, device string, log *logger.Logger) *Loader {
	return &Loader{
		factory: factory,
		log:     log,
		device:  device,
	}
}

// Engine returns the loaded generative engine, loading it on first use.
// Concurrent first requests are serialized; only one load runs.
func (l *Loader) Engine(ctx context.Context) (core.GenerativeEngine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		return l.engine, nil
	}

	l.log.Info("Loading generative model on %s...", l.device)

	start := time.Now()

	loaded, loadErr := l.factory(ctx, l.device)
	if loadErr != nil {
		return nil, fmt.Errorf("%w: model load on %s failed: %w", core.ErrEngine, l.device, loadErr)
	}

	l.engine = loaded
	l.loadTime = time.Since(start)
	l.memoryGB = QueryDeviceMemoryGB(ctx, l.device)

	l.log.Info("Model loaded in %.1fs on %s (VRAM: %.1fGB)",
		l.loadTime.Seconds(), l.device, l.memoryGB)

	return l.engine, nil
}

// Loaded reports whether the engine has been initialized.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.engine != nil
}

// Device returns the selected compute device.
func (l *Loader) Device() string {
	return l.device
}

// MemoryUsedGB returns the device memory footprint recorded at load time,
// zero before loading or on the CPU path.
func (l *Loader) MemoryUsedGB() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.memoryGB
}

// DetectDevice probes for an accelerator and falls back to CPU. Selection
// is automatic; no override is exposed.
func DetectDevice() string {
	_, lookErr := exec.LookPath(acceleratorProbe)
	if lookErr != nil {
		return DeviceCPU
	}

	return DeviceCUDA
}

// QueryDeviceMemoryGB reads the accelerator's used memory in gigabytes.
// Probe failures are reported as zero; memory accounting is observability,
// not correctness.
func QueryDeviceMemoryGB(ctx context.Context, device string) float64 {
	if device != DeviceCUDA {
		return 0
	}

	cmd := exec.CommandContext(ctx, acceleratorProbe,
		"--query-gpu=memory.used", "--format=csv,noheader,nounits")

	output, runErr := cmd.Output()
	if runErr != nil {
		return 0
	}

	firstLine := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])

	usedMB, parseErr := strconv.ParseFloat(firstLine, 64)
	if parseErr != nil {
		return 0
	}

	return usedMB / megabytesPerGB
}
