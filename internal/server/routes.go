package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/profile"
	"github.com/book-expert/voice-clone-service/internal/synth"
)

// defaultExtractSeconds bounds an extraction whose form omits a duration.
const defaultExtractSeconds = 30

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/voices", s.handleVoices)
	s.router.DELETE("/voices/:name", s.handleDeleteVoice)
	s.router.POST("/use", s.handleUse)
	s.router.POST("/tts", s.handleTTS)
	s.router.POST("/clone", s.handleClone)
	s.router.POST("/extract-audio", s.handleExtractAudio)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"model_loaded": s.status.Loaded(),
		"device":       s.status.Device(),
		"vram_used_gb": s.status.MemoryUsedGB(),
		"active_voice": s.profiles.Active(),
		"voices":       s.profiles.Count(),
	})
}

func (s *Server) handleVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"voices": s.profiles.List(),
		"active": s.profiles.Active(),
	})
}

func (s *Server) handleDeleteVoice(c *gin.Context) {
	name := c.Param("name")

	deleteErr := s.profiles.Delete(name)
	if deleteErr != nil {
		s.respondError(c, mapError(deleteErr), deleteErr.Error())

		return
	}

	s.presets.Invalidate(name)

	c.JSON(http.StatusOK, gin.H{"deleted": profile.SanitizeName(name)})
}

func (s *Server) handleUse(c *gin.Context) {
	var req struct {
		Voice string `form:"voice" json:"voice" binding:"required"`
	}

	bindErr := c.ShouldBind(&req)
	if bindErr != nil {
		s.respondError(c, http.StatusBadRequest, "voice is required")

		return
	}

	activateErr := s.profiles.SetActive(req.Voice)
	if activateErr != nil {
		s.respondError(c, mapError(activateErr), activateErr.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{"active": s.profiles.Active()})
}

func (s *Server) handleTTS(c *gin.Context) {
	var req struct {
		Text     string `form:"text" json:"text" binding:"required"`
		Voice    string `form:"voice" json:"voice"`
		Language string `form:"language" json:"language"`
	}

	bindErr := c.ShouldBind(&req)
	if bindErr != nil {
		s.respondError(c, http.StatusBadRequest, "text is required")

		return
	}

	result, synthErr := s.synthesizer.Synthesize(c.Request.Context(), synth.Request{
		Text:     req.Text,
		Voice:    req.Voice,
		Language: req.Language,
	})
	if synthErr != nil {
		s.log.Error("Synthesis failed: %v", synthErr)
		s.respondError(c, mapError(synthErr), synthErr.Error())

		return
	}

	data, readErr := os.ReadFile(result.OutputPath)
	if readErr != nil {
		s.log.Error("Failed to read synthesis output: %v", readErr)
		s.respondError(c, http.StatusInternalServerError, "failed to read synthesis output")

		return
	}

	c.Header("X-Generation-Time", fmt.Sprintf("%.2f", result.Elapsed.Seconds()))
	c.Header("Content-Disposition",
		"attachment; filename="+filepath.Base(result.OutputPath))
	c.Data(http.StatusOK, "audio/wav", data)
}

func (s *Server) handleClone(c *gin.Context) {
	name := c.PostForm("name")
	if profile.SanitizeName(name) == "" {
		s.respondError(c, http.StatusBadRequest, "a usable profile name is required")

		return
	}

	file, header, formErr := c.Request.FormFile("audio")
	if formErr != nil {
		s.respondError(c, http.StatusBadRequest, "an audio file is required")

		return
	}

	defer closeQuietly(file)

	raw, readErr := io.ReadAll(file)
	if readErr != nil || len(raw) == 0 {
		s.respondError(c, http.StatusBadRequest, "failed to read uploaded audio")

		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".wav"
	}

	unlock := s.profiles.Lock(name)
	defer unlock()

	meta := profile.Metadata{
		Name:            name,
		Description:     c.PostForm("description"),
		Language:        c.PostForm("language"),
		Created:         time.Now().UTC().Format(time.RFC3339),
		SourceFile:      header.Filename,
		SourceSize:      header.Size,
		ExtractStart:    "",
		ExtractDuration: "",
	}

	dir, saveErr := s.profiles.Save(name, raw, ext, meta)
	if saveErr != nil {
		s.respondError(c, mapError(saveErr), saveErr.Error())

		return
	}

	degraded, transcodeErr := s.canonicalizeReference(c, name, ext)
	if transcodeErr != nil {
		s.respondError(c, mapError(transcodeErr), transcodeErr.Error())

		return
	}

	s.derivePreset(c, name, dir)

	activateErr := s.profiles.SetActive(name)
	if activateErr != nil {
		s.respondError(c, mapError(activateErr), activateErr.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       profile.SanitizeName(name),
		"active":     s.profiles.Active(),
		"has_preset": s.profiles.HasPreset(name),
		"degraded":   degraded,
	})
}

func (s *Server) handleExtractAudio(c *gin.Context) {
	name := c.PostForm("voice_name")
	if profile.SanitizeName(name) == "" {
		s.respondError(c, http.StatusBadRequest, "a usable profile name is required")

		return
	}

	start, duration, rangeErr := parseExtractRange(c.PostForm("start_time"), c.PostForm("duration"))
	if rangeErr != nil {
		s.respondError(c, http.StatusBadRequest, rangeErr.Error())

		return
	}

	file, header, formErr := c.Request.FormFile("video")
	if formErr != nil {
		s.respondError(c, http.StatusBadRequest, "a media file is required")

		return
	}

	defer closeQuietly(file)

	uploadPath, uploadErr := s.spoolUpload(file, header.Filename)
	if uploadErr != nil {
		s.respondError(c, http.StatusInternalServerError, "failed to store uploaded media")

		return
	}

	defer s.removeTemp(uploadPath)

	unlock := s.profiles.Lock(name)
	defer unlock()

	dir, dirErr := s.profiles.EnsureDir(name)
	if dirErr != nil {
		s.respondError(c, mapError(dirErr), dirErr.Error())

		return
	}

	wavPath := s.profiles.ReferenceWAVPath(name)

	transcodeErr := s.transcoder.Normalize(c.Request.Context(), uploadPath, wavPath, start, duration)
	if transcodeErr != nil {
		s.respondError(c, mapError(transcodeErr), transcodeErr.Error())

		return
	}

	meta := profile.Metadata{
		Name:            name,
		Description:     c.PostForm("description"),
		Language:        c.PostForm("language"),
		Created:         time.Now().UTC().Format(time.RFC3339),
		SourceFile:      header.Filename,
		SourceSize:      header.Size,
		ExtractStart:    formatSeconds(start),
		ExtractDuration: formatSeconds(duration),
	}

	metaErr := s.profiles.WriteMetadata(name, meta)
	if metaErr != nil {
		s.respondError(c, mapError(metaErr), metaErr.Error())

		return
	}

	s.derivePreset(c, name, dir)

	activateErr := s.profiles.SetActive(name)
	if activateErr != nil {
		s.respondError(c, mapError(activateErr), activateErr.Error())

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       profile.SanitizeName(name),
		"active":     s.profiles.Active(),
		"has_preset": s.profiles.HasPreset(name),
	})
}

// canonicalizeReference converts the raw saved reference into mono WAV at
// the engine rate. A WAV upload that fails conversion is kept as-is in
// degraded form; any other format must convert or the clone fails.
func (s *Server) canonicalizeReference(c *gin.Context, name, rawExt string) (bool, error) {
	rawPath, found := s.profiles.LocateReferenceAudio(name)
	if !found {
		return false, fmt.Errorf("%w: reference audio missing after save", core.ErrValidation)
	}

	wavPath := s.profiles.ReferenceWAVPath(name)

	if rawExt == ".wav" {
		tempPath := wavPath + ".tmp"

		normErr := s.transcoder.Normalize(c.Request.Context(), rawPath, tempPath, 0, 0)
		if normErr != nil {
			s.log.Warn("Reference normalization failed for '%s', keeping raw WAV: %v", name, normErr)

			return true, nil
		}

		renameErr := os.Rename(tempPath, wavPath)
		if renameErr != nil {
			s.log.Warn("Failed to install normalized reference for '%s': %v", name, renameErr)

			return true, nil
		}

		return false, nil
	}

	normErr := s.transcoder.Normalize(c.Request.Context(), rawPath, wavPath, 0, 0)
	if normErr != nil {
		return false, normErr
	}

	return false, nil
}

// derivePreset eagerly derives the acoustic prompt after a profile write.
// Failure degrades the profile to preset-less synthesis, never the request.
func (s *Server) derivePreset(c *gin.Context, name, dir string) {
	refPath, found := s.profiles.LocateReferenceAudio(name)
	if !found {
		return
	}

	derived, deriveErr := s.pipeline.DeriveAndPersist(c.Request.Context(), refPath, dir)
	if deriveErr != nil {
		s.log.Warn("Preset derivation failed for '%s': %v", name, deriveErr)
		s.presets.Invalidate(name)

		return
	}

	s.presets.Put(profile.SanitizeName(name), derived)
}

// spoolUpload writes an uploaded stream to a temp file, preserving the
// extension so the transcoder can sniff the container.
func (s *Server) spoolUpload(file multipart.File, originalName string) (string, error) {
	ext := filepath.Ext(originalName)

	temp, createErr := os.CreateTemp("", "upload-*"+ext)
	if createErr != nil {
		return "", fmt.Errorf("failed to create spool file: %w", createErr)
	}

	_, copyErr := io.Copy(temp, file)

	closeErr := temp.Close()
	if copyErr != nil {
		return "", fmt.Errorf("failed to spool upload: %w", copyErr)
	}

	if closeErr != nil {
		return "", fmt.Errorf("failed to finalize spool file: %w", closeErr)
	}

	return temp.Name(), nil
}

func parseExtractRange(startForm, durationForm string) (float64, float64, error) {
	var (
		start    float64
		duration float64
	)

	if startForm != "" {
		parsed, parseErr := strconv.ParseFloat(startForm, 64)
		if parseErr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("%w: invalid start offset %q", core.ErrValidation, startForm)
		}

		start = parsed
	}

	duration = defaultExtractSeconds
	if durationForm != "" {
		parsed, parseErr := strconv.ParseFloat(durationForm, 64)
		if parseErr != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("%w: invalid duration %q", core.ErrValidation, durationForm)
		}

		duration = parsed
	}

	return start, duration, nil
}

func formatSeconds(seconds float64) string {
	if seconds == 0 {
		return ""
	}

	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func closeQuietly(closer io.Closer) {
	_ = closer.Close()
}

func (s *Server) removeTemp(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil {
		s.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}
