// Package profile implements the filesystem-backed voice profile store.
//
// A profile is a directory under the voices root named by its sanitized
// profile name, holding reference audio, a meta.json metadata file, and the
// derived acoustic prompt artifact. Profile names are the sole identity;
// saving under an existing name overwrites in place.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/core"
)

const (
	metadataFileName  = "meta.json"
	referenceBaseName = "reference"
	dirPermissions    = 0o750
	filePermissions   = 0o600
	defaultLanguage   = "fr"
	extWAV            = ".wav"
	extMP3            = ".mp3"
)

// referenceExtensionPriority fixes the lookup order for reference audio.
var referenceExtensionPriority = []string{extWAV, extMP3}

// Static errors.
var (
	// ErrEmptyName indicates a profile name that sanitizes to nothing.
	ErrEmptyName = errors.New("profile name is empty after sanitization")
	// ErrNameCollision indicates two distinct requested names sanitize to
	// the same stored directory.
	ErrNameCollision = errors.New("profile name collides with an existing profile")
)

// Metadata is the persisted meta.json content of a profile.
type Metadata struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	Created         string `json:"created"`
	SourceFile      string `json:"source_file,omitempty"`
	SourceSize      int64  `json:"source_size,omitempty"`
	ExtractStart    string `json:"extract_start,omitempty"`
	ExtractDuration string `json:"extract_duration,omitempty"`
}

// Summary is the listing view of a profile.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	AudioFiles  int    `json:"audio_files"`
	HasPreset   bool   `json:"has_preset"`
	Created     string `json:"created"`
}

// Store is the filesystem-backed voice profile repository. It also owns the
// process-wide active-profile pointer and the per-name critical sections
// around profile writes.
type Store struct {
	root string
	log  *logger.Logger

	activeMu sync.RWMutex
	active   string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates a Store rooted at the given directory, creating it if
// absent.
func NewStore(root string, log *logger.Logger) (*Store, error) {
	mkdirErr := os.MkdirAll(root, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create voices directory %s: %w", root, mkdirErr)
	}

	return &Store{
		root:  root,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// SanitizeName reduces a requested profile name to the allowed character
// set: ASCII letters, digits, '-' and '_'. The function is idempotent.
func SanitizeName(name string) string {
	var builder strings.Builder

	for _, r := range name {
		isAllowed := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_'
		if isAllowed {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// Dir returns the directory a profile name maps to.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, SanitizeName(name))
}

// ReferenceWAVPath returns the canonical reference audio path for a
// profile, whether or not the file exists yet.
func (s *Store) ReferenceWAVPath(name string) string {
	return filepath.Join(s.Dir(name), referenceBaseName+extWAV)
}

// Exists reports whether a profile directory exists for the name.
func (s *Store) Exists(name string) bool {
	safe := SanitizeName(name)
	if safe == "" {
		return false
	}

	info, statErr := os.Stat(filepath.Join(s.root, safe))

	return statErr == nil && info.IsDir()
}

// List scans the voices root and returns profile summaries ordered by
// name. Missing or corrupt metadata yields defaults, never an error.
func (s *Store) List() []Summary {
	entries, readErr := os.ReadDir(s.root)
	if readErr != nil {
		s.log.Warn("Failed to scan voices directory %s: %v", s.root, readErr)

		return []Summary{}
	}

	summaries := make([]Summary, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		summaries = append(summaries, s.summarize(entry.Name()))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})

	return summaries
}

// Count returns the number of stored profiles.
func (s *Store) Count() int {
	return len(s.List())
}

// LocateReferenceAudio returns the first reference audio file for a
// profile, following the fixed extension priority (wav before mp3).
// Absence is not an error; the boolean reports whether a file was found.
func (s *Store) LocateReferenceAudio(name string) (string, bool) {
	dir := s.Dir(name)

	for _, ext := range referenceExtensionPriority {
		matches, globErr := filepath.Glob(filepath.Join(dir, "*"+ext))
		if globErr != nil || len(matches) == 0 {
			continue
		}

		sort.Strings(matches)

		return matches[0], true
	}

	return "", false
}

// Save sanitizes the name, creates the profile directory, and writes the
// raw reference audio and metadata. Prior content under the same name is
// overwritten. It returns the profile directory.
//
// Save fails with ErrNameCollision when the target directory belongs to a
// profile stored under a different requested name, so two distinct names
// never silently merge.
func (s *Store) Save(name string, reference []byte, ext string, meta Metadata) (string, error) {
	safe := SanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyName, name)
	}

	dir := filepath.Join(s.root, safe)

	collisionErr := s.checkCollision(dir, name)
	if collisionErr != nil {
		return "", collisionErr
	}

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create profile directory %s: %w", dir, mkdirErr)
	}

	if ext == "" {
		ext = extWAV
	}

	refPath := filepath.Join(dir, referenceBaseName+ext)

	writeErr := os.WriteFile(refPath, reference, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write reference audio %s: %w", refPath, writeErr)
	}

	metaErr := s.WriteMetadata(name, meta)
	if metaErr != nil {
		return "", metaErr
	}

	s.log.Info("Saved reference audio for profile '%s' (%d bytes)", safe, len(reference))

	return dir, nil
}

// EnsureDir creates the profile directory without writing any content and
// returns its path. Used when reference audio is produced in place by the
// transcoder.
func (s *Store) EnsureDir(name string) (string, error) {
	safe := SanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyName, name)
	}

	dir := filepath.Join(s.root, safe)

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create profile directory %s: %w", dir, mkdirErr)
	}

	return dir, nil
}

// WriteMetadata persists meta.json for a profile, defaulting absent fields.
func (s *Store) WriteMetadata(name string, meta Metadata) error {
	safe := SanitizeName(name)
	if safe == "" {
		return fmt.Errorf("%w: %q", ErrEmptyName, name)
	}

	if meta.Name == "" {
		meta.Name = name
	}

	if meta.Language == "" {
		meta.Language = defaultLanguage
	}

	data, marshalErr := json.MarshalIndent(meta, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal metadata for '%s': %w", safe, marshalErr)
	}

	metaPath := filepath.Join(s.root, safe, metadataFileName)

	writeErr := os.WriteFile(metaPath, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write metadata %s: %w", metaPath, writeErr)
	}

	return nil
}

// SetActive marks a profile as the process-wide default voice. It fails
// with core.ErrProfileNotFound when the profile directory does not exist
// and never mutates the active pointer on failure.
func (s *Store) SetActive(name string) error {
	if !s.Exists(name) {
		return fmt.Errorf("%w: '%s'", core.ErrProfileNotFound, name)
	}

	s.activeMu.Lock()
	s.active = SanitizeName(name)
	s.activeMu.Unlock()

	s.log.Info("Active voice set to: %s", SanitizeName(name))

	return nil
}

// Active returns the current active profile name, or empty when none is
// set.
func (s *Store) Active() string {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	return s.active
}

// Delete removes a profile directory including its reference audio and
// preset artifact. Deleting the active profile clears the active pointer.
func (s *Store) Delete(name string) error {
	safe := SanitizeName(name)
	if safe == "" || !s.Exists(name) {
		return fmt.Errorf("%w: '%s'", core.ErrProfileNotFound, name)
	}

	removeErr := os.RemoveAll(filepath.Join(s.root, safe))
	if removeErr != nil {
		return fmt.Errorf("failed to delete profile '%s': %w", safe, removeErr)
	}

	s.activeMu.Lock()
	if s.active == safe {
		s.active = ""
	}
	s.activeMu.Unlock()

	s.log.Info("Deleted voice profile: %s", safe)

	return nil
}

// Lock acquires the per-profile-name mutex guarding the
// write-then-derive-preset sequence and returns the unlock function.
func (s *Store) Lock(name string) func() {
	safe := SanitizeName(name)

	s.locksMu.Lock()

	mu, ok := s.locks[safe]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[safe] = mu
	}

	s.locksMu.Unlock()

	mu.Lock()

	return mu.Unlock
}

// HasPreset reports whether the prompt artifact persists on disk for a
// profile.
func (s *Store) HasPreset(name string) bool {
	_, statErr := os.Stat(filepath.Join(s.Dir(name), core.PresetArtifactName))

	return statErr == nil
}

// checkCollision rejects a save whose sanitized directory is already owned
// by a profile with a different requested name.
func (s *Store) checkCollision(dir, requestedName string) error {
	data, readErr := os.ReadFile(filepath.Join(dir, metadataFileName))
	if readErr != nil {
		// No prior metadata means the directory is free or re-owned.
		return nil
	}

	var existing Metadata

	unmarshalErr := json.Unmarshal(data, &existing)
	if unmarshalErr != nil {
		return nil
	}

	if existing.Name != "" && existing.Name != requestedName {
		return fmt.Errorf("%w: '%s' vs '%s'", ErrNameCollision, requestedName, existing.Name)
	}

	return nil
}

// summarize builds a Summary for one profile directory.
func (s *Store) summarize(dirName string) Summary {
	summary := Summary{
		Name:        dirName,
		Description: "",
		Language:    defaultLanguage,
		AudioFiles:  0,
		HasPreset:   false,
		Created:     "",
	}

	dir := filepath.Join(s.root, dirName)

	data, readErr := os.ReadFile(filepath.Join(dir, metadataFileName))
	if readErr == nil {
		var meta Metadata

		unmarshalErr := json.Unmarshal(data, &meta)
		if unmarshalErr == nil {
			summary.Description = meta.Description
			summary.Created = meta.Created

			if meta.Language != "" {
				summary.Language = meta.Language
			}
		}
	}

	for _, pattern := range []string{"*" + extWAV, "*" + extMP3} {
		matches, globErr := filepath.Glob(filepath.Join(dir, pattern))
		if globErr == nil {
			summary.AudioFiles += len(matches)
		}
	}

	summary.HasPreset = s.HasPreset(dirName)

	// The derived prompt artifact counts as a stored voice asset
	// alongside the raw references; meta.json does not.
	if summary.HasPreset {
		summary.AudioFiles++
	}

	return summary
}
