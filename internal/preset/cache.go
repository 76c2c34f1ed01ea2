package preset

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// Locator resolves profile names to their on-disk locations. Satisfied by
// the profile store.
type Locator interface {
	Dir(name string) string
	LocateReferenceAudio(name string) (string, bool)
}

// Cache memoizes decoded prompts per profile name so synthesis does not
// re-read or re-derive them from disk on every request.
type Cache struct {
	mu       sync.RWMutex
	presets  map[string]*core.VoicePreset
	locator  Locator
	pipeline *Pipeline
	log      *logger.Logger
}

// NewCache creates an empty prompt cache backed by the given locator and
// derivation pipeline.
func NewCache(locator Locator, pipeline *Pipeline, log *logger.Logger) *Cache {
	return &Cache{
		presets:  make(map[string]*core.VoicePreset),
		locator:  locator,
		pipeline: pipeline,
		log:      log,
	}
}

// GetOrDerive resolves a prompt for a profile name: memory first, then the
// persisted artifact, then lazy derivation from reference audio. Derivation
// failure is logged and reported as absence, never as an error.
func (c *Cache) GetOrDerive(ctx context.Context, name string) (*core.VoicePreset, bool) {
	c.mu.RLock()
	cached, ok := c.presets[name]
	c.mu.RUnlock()

	if ok {
		return cached, true
	}

	profileDir := c.locator.Dir(name)

	_, statErr := os.Stat(filepath.Join(profileDir, core.PresetArtifactName))
	if statErr == nil {
		loaded, loadErr := LoadArtifact(profileDir)
		if loadErr == nil {
			c.Put(name, loaded)

			return loaded, true
		}

		c.log.Warn("Failed to load preset artifact for '%s': %v", name, loadErr)
	}

	refPath, found := c.locator.LocateReferenceAudio(name)
	if !found {
		return nil, false
	}

	derived, deriveErr := c.pipeline.DeriveAndPersist(ctx, refPath, profileDir)
	if deriveErr != nil {
		c.log.Error("Failed to derive voice preset for '%s': %v", name, deriveErr)

		return nil, false
	}

	c.Put(name, derived)

	return derived, true
}

// Put stores a prompt in memory for a profile name.
func (c *Cache) Put(name string, preset *core.VoicePreset) {
	c.mu.Lock()
	c.presets[name] = preset
	c.mu.Unlock()
}

// Invalidate drops the in-memory prompt for a profile name, forcing the
// next lookup back to disk.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.presets, name)
	c.mu.Unlock()
}
